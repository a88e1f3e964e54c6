// Package sync provides the two one-directional jobs that keep the local
// template directory and the remote prompt database consistent.
//
// Overview
//
// Neither job is bidirectional on its own; run together they converge both
// sides, with the job that runs last winning for any template edited on both:
//
//	Remote database                       Template directory
//	     │                                       │
//	     │  ListAll ──► Exporter ──► Store.Replace ──► Publisher (git)
//	     │                                       │
//	     ◄── FindByName/Upsert ◄── Importer ◄── Store.Load
//
// Both jobs translate with internal/mapper and talk to the database only
// through the remote.Client interface.
//
// Usage
//
//	client, err := notion.New(cfg.Notion, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	exporter := sync.NewExporter(client, store.New("prompts", logger), nil, logger)
//	result, err := exporter.Run(ctx)
//
// Error Handling
//
// The exporter is all-or-nothing: any failure while reading the remote
// collection or mapping a record aborts the run before the template directory
// is touched.
//
// The importer isolates failures per document: a file that does not parse or
// a record the remote rejects is logged and recorded, and the remaining
// documents are still processed. Both jobs report failure as a
// *syncerr.SyncFailedError.
//
// Idempotence
//
//   - Exporting twice without remote changes leaves the directory untouched.
//   - Importing twice without local changes issues no remote writes: documents
//     whose remote record already maps to an equal document are skipped.
//
// Concurrency
//
// Jobs are single-threaded and run to completion. A job owns its client
// session for the duration of the run; running the exporter and importer at
// the same time is not coordinated.
package sync
