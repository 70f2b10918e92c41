package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/mbd888/ledger/internal/apperr"
)

// SourceLoader reads one day's worth of external transactions from a
// particular kind of source. Each variant implements this narrow
// interface instead of inheriting from a shared base type.
type SourceLoader interface {
	Load(ctx context.Context, date time.Time, params LoadParams) ([]ExternalTxn, error)
}

// SourceTag names a supported SourceLoader variant, used both as the
// `source` request/CLI parameter and as the recon_jobs.source_name value.
type SourceTag string

const (
	SourceCSV              SourceTag = "csv"
	SourceBankCSV          SourceTag = "bank_csv"
	SourceAPI              SourceTag = "api"
	SourcePaymentProcessor SourceTag = "payment_processor"
)

// SupportedSources lists every tag the reconciliation engine can load,
// used by GET /recon/sources.
func SupportedSources() []SourceTag {
	return []SourceTag{SourceCSV, SourceBankCSV, SourceAPI, SourcePaymentProcessor}
}

// NewSourceLoader resolves a SourceTag to its concrete loader.
func NewSourceLoader(tag SourceTag) (SourceLoader, error) {
	switch tag {
	case SourceCSV:
		return NewCSVLoader(), nil
	case SourceBankCSV:
		return NewBankCSVLoader(), nil
	case SourceAPI:
		return NewAPILoader(), nil
	case SourcePaymentProcessor:
		return NewPaymentProcessorLoader(), nil
	default:
		return nil, unsupportedSourceError(tag)
	}
}

func unsupportedSourceError(tag SourceTag) error {
	return apperr.New(apperr.Validation, fmt.Sprintf("unsupported source %q", tag))
}

// ValidateParams enforces the per-source parameter requirements a run
// must supply, matching the CLI/API validation rules: file-based sources
// need a file path, API-backed sources need a base URL and/or auth token.
func ValidateParams(tag SourceTag, params LoadParams) error {
	switch tag {
	case SourceCSV, SourceBankCSV:
		if params.FilePath == "" {
			return apperr.New(apperr.Validation, fmt.Sprintf("file_path is required for source %q", tag))
		}
	case SourceAPI:
		if params.BaseURL == "" {
			return apperr.New(apperr.Validation, "base_url is required for source \"api\"")
		}
		if params.AuthToken == "" {
			return apperr.New(apperr.Validation, "auth_token is required for source \"api\"")
		}
	case SourcePaymentProcessor:
		if params.AuthToken == "" {
			return apperr.New(apperr.Validation, "auth_token is required for source \"payment_processor\"")
		}
	default:
		return unsupportedSourceError(tag)
	}
	return nil
}
