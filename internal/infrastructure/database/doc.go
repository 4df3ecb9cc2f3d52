// Package database provides SQLite database connectivity for rxcore.
//
// This package manages:
//   - Database connection with WAL mode and enforced foreign keys
//   - Schema migrations from an embedded filesystem
//   - Transaction helper and constraint-violation classification
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Source()); err != nil {
//	    return err
//	}
package database
