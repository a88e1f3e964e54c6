package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fitlab/promptsync/internal/mapper"
	"github.com/fitlab/promptsync/internal/remote"
	"github.com/fitlab/promptsync/internal/store"
	"github.com/fitlab/promptsync/internal/syncerr"
)

const importJob = "import"

// Outcome is what the importer did with a single document.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeCreated
	OutcomeUpdated
	OutcomeUnchanged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUnchanged:
		return "unchanged"
	default:
		return "failed"
	}
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Documents int // documents attempted, including unreadable files
	Created   int
	Updated   int
	Unchanged int
	Failures  []syncerr.ItemFailure
	Duration  time.Duration
}

// Succeeded returns the number of documents that were created, updated or
// already up to date.
func (r *ImportResult) Succeeded() int {
	return r.Created + r.Updated + r.Unchanged
}

// Importer pushes every local template document into the remote database.
type Importer struct {
	client remote.Client
	store  *store.Store
	logger *slog.Logger
}

// NewImporter creates an importer. If logger is nil, slog.Default is used.
func NewImporter(client remote.Client, st *store.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		client: client,
		store:  st,
		logger: logger.With("job", importJob),
	}
}

// Run imports every document of the template directory.
//
// A document that fails is recorded and the run continues with the next one.
// The returned result is always non-nil; the error is a *syncerr.SyncFailedError
// when at least one document failed or the run was cut short.
func (i *Importer) Run(ctx context.Context) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{}
	i.logger.Info("starting import", "dir", i.store.Dir())

	entries, loadFailures, err := i.store.Load()
	if err != nil {
		result.Duration = time.Since(start)
		return result, &syncerr.SyncFailedError{Job: importJob, Cause: err}
	}
	result.Documents = len(entries) + len(loadFailures)
	result.Failures = append(result.Failures, loadFailures...)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			i.logger.Warn("import interrupted", "remaining", result.Documents-result.Succeeded()-len(result.Failures))
			return result, &syncerr.SyncFailedError{
				Job:      importJob,
				Cause:    err,
				Failures: result.Failures,
				Total:    result.Documents,
			}
		}

		outcome, err := i.ImportEntry(ctx, entry)
		switch outcome {
		case OutcomeCreated:
			result.Created++
		case OutcomeUpdated:
			result.Updated++
		case OutcomeUnchanged:
			result.Unchanged++
		default:
			result.Failures = append(result.Failures, syncerr.ItemFailure{Item: entry.Doc.Name, Err: err})
		}
	}

	result.Duration = time.Since(start)
	i.logger.Info("import complete",
		"documents", result.Documents,
		"created", result.Created,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"failed", len(result.Failures),
		"duration", result.Duration.Round(time.Millisecond))

	if len(result.Failures) > 0 {
		return result, &syncerr.SyncFailedError{
			Job:      importJob,
			Failures: result.Failures,
			Total:    result.Documents,
		}
	}
	return result, nil
}

// ImportEntry upserts a single loaded document. A document whose remote record
// already maps to an equal document is left alone.
func (i *Importer) ImportEntry(ctx context.Context, entry store.Entry) (Outcome, error) {
	doc := entry.Doc
	logger := i.logger.With("name", doc.Name, "path", entry.Path)

	existing, found, err := i.client.FindByName(ctx, doc.Name)
	if err != nil {
		logger.Error("failed to look up remote record", "error", err, "retryable", syncerr.IsRetryable(err))
		return OutcomeFailed, fmt.Errorf("look up: %w", err)
	}
	if found && mapper.Equal(existing.Fields, doc) {
		logger.Debug("remote record up to date", "id", existing.ID)
		return OutcomeUnchanged, nil
	}

	rec, err := i.client.Upsert(ctx, doc.Name, mapper.ToRecord(doc))
	if err != nil {
		logger.Error("failed to upsert remote record", "error", err, "retryable", syncerr.IsRetryable(err))
		return OutcomeFailed, fmt.Errorf("upsert: %w", err)
	}

	outcome := OutcomeCreated
	if found {
		outcome = OutcomeUpdated
	}
	logger.Info("imported document", "id", rec.ID, "outcome", outcome.String())
	return outcome, nil
}
