// Package stores keeps the resolution history of a project in SQLite.
//
// Every check or menu session that resolves a configuration can be recorded
// as a Record: the mode and features it ran with, how it ended, the
// diagnostics it produced and the values it resolved to. The schema is
// managed with embedded golang-migrate migrations and the database runs
// in WAL mode with foreign keys enabled, so pruning a record removes its
// diagnostics and values too.
//
//	store, err := stores.NewSQLiteStore(stores.Config{Path: ".cfgtree/history.db"})
//	if err != nil {
//	    return err
//	}
//	if err := store.Init(ctx); err != nil {
//	    return err
//	}
//	defer store.Close()
//	if err := store.Migrate(ctx); err != nil {
//	    return err
//	}
//	err = store.RecordResolution(ctx, stores.NewRecord("check", res, features, took))
package stores
