package ingest

import (
	"context"
	"time"
)

// IngestOptions configures a single folder sync run.
type IngestOptions struct {
	FolderID          string
	LocalDir          string
	IncludePatterns   []string
	ExcludePatterns   []string
	ExportFormats     map[string]string
	ReconcileDeletes  bool
}

// IngestResult reports the Document and Reference rows a folder sync
// registered; files whose row write failed are left out.
type IngestResult struct {
	Documents  []Document
	References []Reference
}

// runIngestStage mirrors a remote folder into scratch storage and upserts a
// Document row per materialized file, or a Reference row for files that
// match an exclude pattern or an ignored export type. A sync failure aborts
// the run before any file is registered and returns an empty result; a
// failed per-file write is logged and skipped. ReconcileDeletes is not read
// here: documents missing from the remote folder are kept.
func runIngestStage(ctx context.Context, deps Dependencies, opts IngestOptions) (IngestResult, error) {
	files, err := deps.Drive.Sync(ctx, opts.FolderID, opts.LocalDir, opts.IncludePatterns, opts.ExcludePatterns, opts.ExportFormats)
	if err != nil {
		return IngestResult{}, Temporary("drive folder sync failed", err)
	}

	var result IngestResult
	for _, f := range files {
		if f.Reference {
			ref := Reference{
				Description: f.Name,
				URL:         f.LinkURL,
				FileType:    f.MimeType,
				FileName:    f.Name,
				CreatedAt:   time.Now(),
			}
			if err := deps.References.Create(ctx, &ref); err != nil {
				deps.Logger.Warn("reference create failed, continuing", "drive_id", f.DriveID, "error", err)
				continue
			}
			result.References = append(result.References, ref)
			continue
		}

		existing, found, err := deps.Documents.GetByDriveID(ctx, f.DriveID)
		doc := existing
		if !found || err != nil {
			doc = Document{DriveID: &f.DriveID, Status: DocumentStatusPending}
		}
		doc.DriveID = &f.DriveID
		doc.DriveName = f.Name
		doc.Path = f.LocalPath
		doc.MimeType = f.MimeType
		doc.DocType = extensionDocType(f.Name)
		doc.TimeDecayDate = f.EditedAt
		if doc.Status == "" {
			doc.Status = DocumentStatusPending
		}
		doc.CurrentStep = 1

		if err := deps.Documents.Upsert(ctx, &doc); err != nil {
			deps.Logger.Error("document upsert failed during ingest", "drive_id", f.DriveID, "error", err)
			continue
		}
		result.Documents = append(result.Documents, doc)
	}
	return result, nil
}
