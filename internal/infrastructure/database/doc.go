// Package database provides SQLite connectivity for the printrelay rule store.
//
// This package manages:
//   - Connections with WAL mode and a busy timeout
//   - Versioned schema migrations read from an fs.FS (embedded in the binary)
//   - Transaction helpers
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/printrelay.db", WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
