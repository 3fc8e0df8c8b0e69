package store

import (
	"context"
	"errors"

	"tbot/internal/ledger"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("record already exists")
	// ErrConflict means the stored version moved since the record was read.
	ErrConflict = errors.New("record version conflict")
)

// Store keeps one reward record per canonical user id.
//
// Update is a compare-and-swap: it succeeds only when the stored version equals rec.Version,
// and persists the record with Version+1.
type Store interface {
	Get(ctx context.Context, userID string) (ledger.Record, error)
	Insert(ctx context.Context, rec ledger.Record) error
	Update(ctx context.Context, rec ledger.Record) error
}
