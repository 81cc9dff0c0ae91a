package ingest

import (
	"errors"

	apperrors "github.com/yanqian/meridian/pkg/errors"
)

// Error kinds that cross component boundaries (spec'd in the pipeline design
// as InputInvalid / ExternalTemporary / ExternalPermanent / StageFailed).
const (
	CodeInputInvalid      = "input_invalid"
	CodeExternalTemporary = "external_temporary"
	CodeExternalPermanent = "external_permanent"
	CodeStageFailed       = "stage_failed"
	CodeParseEmpty        = "parse_empty"
	CodeNotFound          = "not_found"
)

// ErrParseEmpty is raised when both markdown and HTML come back empty from
// DocParser; the document is marked failed rather than retried.
var ErrParseEmpty = apperrors.Wrap(CodeParseEmpty, "parser returned no extractable content", nil)

// Temporary wraps an error as ExternalTemporary: retried with bounded
// exponential backoff inside a stage before escalating to StageFailed.
func Temporary(message string, err error) error {
	return apperrors.Wrap(CodeExternalTemporary, message, err)
}

// Permanent wraps an error as ExternalPermanent: escalates to StageFailed
// immediately, no retry.
func Permanent(message string, err error) error {
	return apperrors.Wrap(CodeExternalPermanent, message, err)
}

// InputInvalid wraps an error as InputInvalid: surfaced to the caller as 4xx,
// never retried.
func InputInvalid(message string, err error) error {
	return apperrors.Wrap(CodeInputInvalid, message, err)
}

// StageFailed wraps an error as the per-document fatal kind.
func StageFailed(message string, err error) error {
	return apperrors.Wrap(CodeStageFailed, message, err)
}

// IsTemporary reports whether err should be retried within the owning stage.
func IsTemporary(err error) bool {
	return apperrors.IsCode(err, CodeExternalTemporary)
}

// IsPermanent reports whether err should escalate to StageFailed without retry.
func IsPermanent(err error) bool {
	return apperrors.IsCode(err, CodeExternalPermanent) || errors.Is(err, ErrParseEmpty)
}
