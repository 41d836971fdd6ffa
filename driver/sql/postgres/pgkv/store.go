// Package pgkv provides a [kv.BinaryStore] backed by PostgreSQL.
package pgkv

import (
	"context"
	"database/sql"

	"github.com/subaru-pfs/seqno/kv"
)

// BinaryStore is an implementation of [kv.BinaryStore] that stores keyspaces
// in a PostgreSQL database.
//
// The schema must be created with [CreateSchema] before use.
type BinaryStore struct {
	DB *sql.DB
}

// Open returns the keyspace with the given name.
func (s *BinaryStore) Open(ctx context.Context, name string) (kv.BinaryKeyspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &keyspace{
		db:   s.DB,
		name: name,
	}, nil
}
