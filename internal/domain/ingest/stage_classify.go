package ingest

import "context"

// runClassifyStage assigns doc_category, an optional meeting_subtype, and a
// standardized display name. The regex pass always runs first; the LLM
// adapter is only consulted when it comes back ambiguous.
func runClassifyStage(ctx context.Context, deps Dependencies, doc *Document) error {
	category, subtype, ok := regexClassify(doc.DriveName, doc.Path)
	standardizedName := doc.DriveName

	if !ok {
		result, err := deps.Vision.Classify(ctx, doc.DriveName, doc.Path)
		if err != nil {
			return Temporary("llm classify call failed", err)
		}
		if isValidCategory(result.Category) {
			category = result.Category
			subtype = result.MeetingSubtype
		} else {
			category = DocCategoryOther
			subtype = nil
		}
		if result.StandardizedName != "" {
			standardizedName = result.StandardizedName
		}
	}

	doc.Category = category
	doc.MeetingSubtype = subtype
	doc.StandardizedName = standardizedName
	doc.CurrentStep = 2
	return nil
}

func isValidCategory(c DocCategory) bool {
	switch c {
	case DocCategoryMeeting, DocCategoryWork, DocCategoryOther:
		return true
	default:
		return false
	}
}
