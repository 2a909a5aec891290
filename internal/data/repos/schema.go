package repos

import (
	"context"
	_ "embed"

	"github.com/wonny/eodsignals/pkg/database"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL applied by `quant db migrate`
func Schema() string {
	return schemaSQL
}

// Migrate applies the embedded schema
func Migrate(ctx context.Context, db *database.DB) error {
	return db.Migrate(ctx, schemaSQL)
}
