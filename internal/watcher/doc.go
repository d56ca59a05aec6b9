// Package watcher provides real-time file system watching with automatic
// debouncing, used to watch a LiveIndex shard's WAL directory for the
// InSetup to Ready transition.
//
// The package implements a hybrid watching strategy:
//   - Primary: fsnotify for efficient event-based watching
//   - Fallback: polling for environments where fsnotify fails (network mounts, container volumes)
//
// Events are debounced to coalesce rapid writes from an incremental
// indexer flushing WAL segments.
//
// Usage:
//
//	opts := watcher.DefaultOptions()
//	w, err := watcher.NewHybridWatcher(opts)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	if err := w.Start(ctx, walDir); err != nil {
//	    return err
//	}
//
//	for batch := range w.Events() {
//	    for _, event := range batch {
//	        switch event.Operation {
//	        case watcher.OpCreate:
//	            // new WAL segment appeared
//	        case watcher.OpModify:
//	            // segment still being written
//	        }
//	    }
//	}
package watcher
