package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema_mysql.sql
var mysqlSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// Migrate creates the auction tables when they do not exist.  Statements
// are executed one at a time because the MySQL driver rejects multi
// statement batches unless the DSN opts in.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	schema := mysqlSchema
	if driver == DriverSQLite {
		schema = sqliteSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
