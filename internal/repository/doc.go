// Package repository turns a local checkout into a searchable index.
//
// Build walks the checkout once to load and chunk source files, scrubs
// credentials from the chunks, embeds them in bounded parallel batches and
// hands the vectors to a vectorstore.Builder. A second walk summarizes the
// checkout as metadata.RepoMetadata.
//
// # File selection
//
// A file is indexed when all of the following hold:
//   - no built-in skip pattern or .gitignore rule excludes it
//   - its extension is in the configured allow-list (case-insensitive)
//   - it is no larger than the configured maximum size
//   - its content is valid UTF-8 and not blank
//
// # Usage
//
//	idx := repository.NewIndexer(repository.FromSettings(cfg.Indexing),
//	    loader, embedder, builder, scrubber, logger)
//	entry, err := idx.Build(ctx, "flask", "/data/repos/flask",
//	    repository.WithChunkedHook(func(n int) { log.Printf("%d chunks", n) }))
//	if errors.Is(err, repository.ErrNoSupportedFiles) {
//	    // nothing indexable in the checkout
//	}
package repository
