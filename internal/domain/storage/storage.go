package storage

import (
	"context"
	"errors"
)

var (
	// ErrConflict reports that the store rejected a write or a commit because
	// of a concurrent transaction. Workflows that receive it must restart
	// from their first read, since every snapshot taken so far may be stale.
	ErrConflict = errors.New("storage: transaction conflict")

	// ErrTxClosed reports a commit, rollback, or write on a finished transaction.
	ErrTxClosed = errors.New("storage: transaction already closed")

	// ErrForeignTx reports a handle that was opened by a different store.
	ErrForeignTx = errors.New("storage: transaction handle belongs to another store")
)

// Tx is an opaque handle for one transactional scope. Every order and stock
// write is issued against an explicit handle; there is no ambient session.
type Tx interface {
	// StoreName identifies the store that opened the handle, so repositories
	// can reject handles that crossed between stores.
	StoreName() string
}

// Manager opens and resolves transactional scopes. Rollback must undo every
// write issued against the handle; the checkout workflow relies on this as
// its single compensation mechanism and never double-restores stock inside
// an open transaction.
type Manager interface {
	Begin(ctx context.Context) (Tx, error)
	Commit(ctx context.Context, tx Tx) error
	Rollback(ctx context.Context, tx Tx) error
}
