// Package all wires every built-in storage backend into the storage
// registry. It exists purely for side effects: a blank import runs each
// backend's init, making these kinds available to storage.Open:
//
//   - "mssql"    (dataloader/internal/storage/mssql)
//   - "postgres" (dataloader/internal/storage/postgres)
//
// Typical usage in the wiring layer:
//
//	import (
//	    _ "dataloader/internal/storage/all"
//
//	    "dataloader/internal/storage"
//	)
//
//	db, dialect, err := storage.Open(ctx, cfg.Driver, cfg.Connection)
//
// A binary that needs only one engine can import that backend directly instead.
package all

import (
	_ "dataloader/internal/storage/mssql"
	_ "dataloader/internal/storage/postgres"
)
