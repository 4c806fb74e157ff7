package repo

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schema string

// Migrate applies schema.sql. Every statement is idempotent.
func Migrate(ctx context.Context, db DB) error {
	ctx, cancel := context.WithTimeout(ctx, 30*defaultQueryTimeout)
	defer cancel()
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
