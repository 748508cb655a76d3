// Package watcher re-lints formula files as they change on disk.
//
// The Watcher subscribes to filesystem events for a tap's formula
// directory. Bursts of writes to the same file (editors saving through a
// temp file, git checkouts) are coalesced: a file is only re-parsed once it
// has been quiet for the debounce interval. Each result is delivered to a
// Handler as an Event.
//
// Example usage:
//
//	w, err := watcher.New(tp.Dir, lint.New(logger), func(ev watcher.Event) {
//		fmt.Println(ev.Path, len(ev.Issues))
//	}, logger)
//	if err != nil {
//		return err
//	}
//	return w.Run(ctx)
//
// Run may also be driven from a detached process; see StartDaemon.
package watcher
