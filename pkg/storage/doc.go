// Package storage lays out downloaded artworks on disk and writes them
// atomically.
//
// Layout under the batch directory:
//
//	<id>.<ext>                     single image
//	<id>(<count>)/<id>_<n>.<ext>   multi-page work, n from 0
//	<id>.gif                       assembled ugoira
//	_black/...                     the same layout for quarantined items
//
// Every file is written to "<path>.part" first and renamed into place only
// after the writer succeeded, so an interrupted transfer never leaves a file
// that looks complete.
//
// Usage:
//
//	layout := storage.NewLayout("picture/20240101")
//	manager, err := storage.NewManager(layout.Base())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	path := layout.Single(false, 101, "png")
//	err = manager.Save(path, func(w io.Writer) error {
//	    _, err := client.Download(ctx, url, w)
//	    return err
//	})
package storage
