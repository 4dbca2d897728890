// Package ingest submits a scan's metadata artifacts to the catalog and
// records the scan in the ledger.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"scingest/internal/catalog"
	"scingest/internal/ledger"
	"scingest/internal/logging"
	"scingest/internal/metadata"
	"scingest/internal/metrics"
	"scingest/internal/services"
)

const component = "ingest"

// Submitter posts one metadata document to a catalog model.
type Submitter interface {
	SubmitWithRetry(ctx context.Context, model, token string, body []byte) error
}

// TokenProvider yields the run's bearer token.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Reset()
}

// ArtifactLocator resolves a scan's metadata file.
type ArtifactLocator interface {
	Locate(ctx context.Context, scan string, kind metadata.Kind) (*metadata.Artifact, error)
}

// Result describes one scan's ingestion.
type Result struct {
	Scan      string
	Submitted []metadata.Kind
	Skipped   []metadata.Kind
	Failed    map[metadata.Kind]error
}

// Partial reports whether at least one artifact failed to submit.
func (r Result) Partial() bool { return len(r.Failed) > 0 }

// Ingestor processes scans one at a time.
type Ingestor struct {
	locator    ArtifactLocator
	submitter  Submitter
	tokens     TokenProvider
	ledgerPath string
	logger     *slog.Logger
	metrics    *metrics.Recorder
}

// Option customizes an Ingestor.
type Option func(*Ingestor)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingestor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(i *Ingestor) { i.metrics = r }
}

// New builds an Ingestor appending to the ledger at ledgerPath.
func New(locator ArtifactLocator, submitter Submitter, tokens TokenProvider, ledgerPath string, opts ...Option) *Ingestor {
	i := &Ingestor{
		locator:    locator,
		submitter:  submitter,
		tokens:     tokens,
		ledgerPath: ledgerPath,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = logging.NewComponentLogger(i.logger, component)
	return i
}

// IngestScan submits the dataset and then the datablock artifact of scan and
// appends scan to the ledger. Submission failures are logged and reported in
// the Result; the scan is recorded regardless. An authentication failure
// returns before anything is submitted or recorded, and so does a ctx that
// ends before or during the submissions. A ledger write failure is returned
// as is.
func (i *Ingestor) IngestScan(ctx context.Context, scan string) (Result, error) {
	ctx = services.WithScan(ctx, scan)
	logger := logging.WithContext(ctx, i.logger)
	result := Result{Scan: scan}
	if err := ctx.Err(); err != nil {
		return result, services.Wrap(services.ErrTransport, component, "ingest", "cancelled before submission", err)
	}

	token, err := i.tokens.Token(ctx)
	if err != nil {
		logging.ErrorWithContext(logger, "catalog login failed; scan left for next pass", "token_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check catalog.username, credential_file or token_file"),
		)
		return result, err
	}

	for _, kind := range []metadata.Kind{metadata.KindDataset, metadata.KindDatablock} {
		outcome, err := i.submitKind(ctx, logger, scan, kind, token)
		switch outcome {
		case metrics.OutcomeSuccess:
			result.Submitted = append(result.Submitted, kind)
		case metrics.OutcomeSkipped:
			result.Skipped = append(result.Skipped, kind)
		default:
			if result.Failed == nil {
				result.Failed = make(map[metadata.Kind]error)
			}
			result.Failed[kind] = err
		}
		i.metrics.ObserveSubmission(kind.Model(), outcome)
	}

	if err := ctx.Err(); err != nil {
		logging.WarnWithContext(logger, "scan interrupted; left out of the ledger", "scan_interrupted",
			logging.Error(err),
			logging.Int("submitted", len(result.Submitted)),
			logging.String(logging.FieldImpact, "the scan is submitted again on the next run"),
		)
		return result, services.Wrap(services.ErrTransport, component, "ingest", "cancelled during submission", err)
	}

	if err := ledger.Append(i.ledgerPath, scan); err != nil {
		logging.ErrorWithContext(logger, "ledger append failed", "ledger_write_failed",
			logging.Error(err),
			logging.String("ledger", i.ledgerPath),
			logging.String(logging.FieldErrorHint, "check free space and permissions of the ledger file"),
		)
		return result, err
	}
	i.metrics.ScanIngested()

	if result.Partial() {
		logging.WarnWithContext(logger, "scan recorded with failed submissions", "scan_partial",
			logging.Bool("partial", true),
			logging.Int("failed", len(result.Failed)),
			logging.String(logging.FieldImpact, "catalog is missing records for this scan"),
			logging.String(logging.FieldErrorHint, "resubmit with scingest ingest once the catalog is healthy"),
		)
	} else {
		logger.Info("scan ingested",
			logging.String(logging.FieldEventType, "scan_ingested"),
			logging.Int("submitted", len(result.Submitted)),
			logging.Int("skipped", len(result.Skipped)),
		)
	}
	return result, nil
}

func (i *Ingestor) submitKind(ctx context.Context, logger *slog.Logger, scan string, kind metadata.Kind, token string) (string, error) {
	model := kind.Model()
	art, err := i.locator.Locate(ctx, scan, kind)
	if err != nil {
		logging.WarnWithContext(logger, "metadata artifact unreadable", "artifact_read_failed",
			logging.String(logging.FieldModel, model),
			logging.Error(err),
			logging.String(logging.FieldImpact, "artifact not submitted"),
		)
		return metrics.OutcomeFailure, err
	}
	if art == nil {
		logger.Info("no metadata artifact; submission skipped",
			logging.String(logging.FieldEventType, "artifact_missing"),
			logging.String(logging.FieldModel, model),
		)
		return metrics.OutcomeSkipped, nil
	}

	if err := i.submitter.SubmitWithRetry(ctx, model, token, art.Data); err != nil {
		i.resetOnExpiredToken(err)
		logging.ErrorWithContext(logger, "catalog submission failed", "submission_failed",
			logging.String(logging.FieldModel, model),
			logging.String("artifact", art.Path),
			logging.String("error_kind", services.Kind(err)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the catalog response above"),
		)
		return metrics.OutcomeFailure, err
	}
	logger.Info("metadata submitted",
		logging.String(logging.FieldEventType, "artifact_submitted"),
		logging.String(logging.FieldModel, model),
		logging.String("artifact", art.Path),
		logging.Bool("generated", art.Generated),
	)
	return metrics.OutcomeSuccess, nil
}

// resetOnExpiredToken forces a fresh login on the next pass when the catalog
// rejects the token.
func (i *Ingestor) resetOnExpiredToken(err error) {
	var resp *catalog.ResponseError
	if errors.As(err, &resp) && resp.StatusCode == http.StatusUnauthorized {
		i.tokens.Reset()
	}
}

// IngestFiles posts each file's contents to model and returns how many
// succeeded. It does not touch the ledger.
func (i *Ingestor) IngestFiles(ctx context.Context, model string, files []string) (int, error) {
	token, err := i.tokens.Token(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	ok := 0
	for _, path := range files {
		logger := i.logger.With(logging.String(logging.FieldModel, model), logging.String("file", path))
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", path, err))
			logging.ErrorWithContext(logger, "metadata file unreadable", "file_read_failed", logging.Error(err))
			continue
		}
		if err := i.submitter.SubmitWithRetry(ctx, model, token, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			i.metrics.ObserveSubmission(model, metrics.OutcomeFailure)
			logging.ErrorWithContext(logger, "catalog submission failed", "submission_failed", logging.Error(err))
			continue
		}
		i.metrics.ObserveSubmission(model, metrics.OutcomeSuccess)
		logger.Info("metadata submitted", logging.String(logging.FieldEventType, "file_submitted"))
		ok++
	}
	return ok, errors.Join(errs...)
}
