package fetchclient

import (
	"fmt"

	"github.com/corvidae/webcrawler/internal/metadata"
	"github.com/corvidae/webcrawler/internal/taxonomy"
	"github.com/corvidae/webcrawler/pkg/failure"
)

// FetchError is the HTTP boundary's error type. Its taxonomy.Kind is
// the single source of truth for retry eligibility (IsRetryable) and
// logging severity (Severity): fetchclient never hand-rolls a second
// classification, it only decides which Kind applies.
type FetchError struct {
	Message string
	Kind    taxonomy.Kind
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error (%s): %s", e.Kind, e.Message)
}

func (e *FetchError) Severity() failure.Severity {
	if e.Kind.Retryable() {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *FetchError) IsRetryable() bool {
	return e.Kind.Retryable()
}

// mapFetchErrorToMetadataCause maps a fetch error's Kind to the
// canonical metadata.ErrorCause table. Observational only.
func mapFetchErrorToMetadataCause(err *FetchError) metadata.ErrorCause {
	switch err.Kind {
	case taxonomy.Network, taxonomy.Transient:
		return metadata.CauseNetworkFailure
	case taxonomy.Permanent:
		return metadata.CausePolicyDisallow
	case taxonomy.Parse:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
