package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fitlab/promptsync/internal/mapper"
	"github.com/fitlab/promptsync/internal/remote"
	"github.com/fitlab/promptsync/internal/schema"
	"github.com/fitlab/promptsync/internal/store"
	"github.com/fitlab/promptsync/internal/syncerr"
)

const exportJob = "export"

// Publisher persists the exported directory, e.g. as a version-control commit.
// It is called after every successful write, so it must itself detect that
// there is nothing to persist; it reports whether it persisted anything.
type Publisher interface {
	Publish(ctx context.Context, dir string, changes store.ChangeSet) (bool, error)
}

// ExportResult summarizes an export run.
type ExportResult struct {
	Records   int
	Changes   store.ChangeSet
	Published bool
	Duration  time.Duration
}

// Exporter materializes the remote collection as the local template directory.
type Exporter struct {
	client    remote.Client
	store     *store.Store
	publisher Publisher
	logger    *slog.Logger
}

// NewExporter creates an exporter. publisher may be nil to skip publishing.
// If logger is nil, slog.Default is used.
func NewExporter(client remote.Client, st *store.Store, publisher Publisher, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		client:    client,
		store:     st,
		publisher: publisher,
		logger:    logger.With("job", exportJob),
	}
}

// Run reads every remote record and replaces the template directory with the
// result. Nothing is written unless the complete collection was read and
// mapped successfully.
func (e *Exporter) Run(ctx context.Context) (*ExportResult, error) {
	start := time.Now()
	e.logger.Info("starting export", "dir", e.store.Dir())

	docs, err := e.snapshot(ctx)
	if err != nil {
		e.logger.Error("export aborted, template directory left untouched", "error", err)
		return nil, &syncerr.SyncFailedError{Job: exportJob, Cause: err}
	}

	changes, err := e.store.Replace(docs)
	if err != nil {
		e.logger.Error("failed to replace template directory", "error", err)
		return nil, &syncerr.SyncFailedError{Job: exportJob, Cause: err, Total: len(docs)}
	}

	result := &ExportResult{Records: len(docs), Changes: changes}

	// An empty change set still publishes: a previous run may have written
	// the directory and then failed to publish it.
	if e.publisher != nil {
		published, err := e.publisher.Publish(ctx, e.store.Dir(), changes)
		if err != nil {
			e.logger.Error("failed to publish export", "error", err)
			result.Duration = time.Since(start)
			return result, &syncerr.SyncFailedError{Job: exportJob, Cause: fmt.Errorf("publish: %w", err), Total: len(docs)}
		}
		result.Published = published
	}

	result.Duration = time.Since(start)
	e.logger.Info("export complete",
		"records", result.Records,
		"added", len(changes.Added),
		"updated", len(changes.Updated),
		"removed", len(changes.Removed),
		"published", result.Published,
		"duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

// snapshot reads and maps the full remote collection. Two records with the
// same template name make the snapshot ambiguous and fail it.
func (e *Exporter) snapshot(ctx context.Context) ([]*schema.Document, error) {
	var docs []*schema.Document
	owner := make(map[string]string) // template name -> record ID

	for rec, err := range e.client.ListAll(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list remote records after %d: %w", len(docs), err)
		}

		doc, err := mapper.ToDocument(rec.Fields)
		if err != nil {
			return nil, syncerr.ItemFailure{Item: recordLabel(rec), Err: err}
		}
		if prev, dup := owner[doc.Name]; dup {
			return nil, syncerr.ItemFailure{
				Item: doc.Name,
				Err:  syncerr.Mismatch("name", "records %s and %s share the name", prev, rec.ID),
			}
		}
		owner[doc.Name] = rec.ID

		e.logger.Debug("read record", "id", rec.ID, "name", doc.Name)
		docs = append(docs, doc)
	}
	return docs, nil
}

// recordLabel identifies a record in logs and errors.
func recordLabel(rec remote.Record) string {
	if name := rec.Name(); name != "" {
		return fmt.Sprintf("%s (record %s)", name, rec.ID)
	}
	return "record " + rec.ID
}
