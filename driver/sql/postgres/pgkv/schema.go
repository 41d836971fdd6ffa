package pgkv

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/subaru-pfs/seqno/driver/sql/postgres/internal/commonschema"
)

//go:embed schema.sql
var schema string

// CreateSchema creates the PostgreSQL schema elements required by
// [BinaryStore].
func CreateSchema(
	ctx context.Context,
	db *sql.DB,
) error {
	return commonschema.Create(ctx, db, schema)
}
