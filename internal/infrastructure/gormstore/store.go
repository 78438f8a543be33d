package gormstore

import (
	"context"
	"errors"
	"fmt"

	sqlmysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/storefront-go/storefront/internal/domain/storage"
)

const storeName = "mysql"

// MySQL error numbers that signal the transaction lost to a concurrent one
// and should restart.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// Store backs the repositories with MySQL through GORM. Transactionality
// comes from real database transactions; the explicit handle contract maps
// onto one *gorm.DB per open transaction.
type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open: %w", err)
	}
	if err := db.AutoMigrate(
		&productModel{},
		&orderModel{},
		&stockReleaseModel{},
		&reconciliationModel{},
	); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

type gormTx struct {
	db     *gorm.DB
	closed bool
}

func (*gormTx) StoreName() string { return storeName }

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	// database/sql aborts the whole transaction when the context given to
	// BeginTx is cancelled. Detach it so a client disconnect cannot kill
	// writes issued after a charge is captured; individual statements still
	// honor their per-call context via resolve.
	tx := s.db.WithContext(context.WithoutCancel(ctx)).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("gormstore: begin: %w", tx.Error)
	}
	return &gormTx{db: tx}, nil
}

func (s *Store) Commit(ctx context.Context, tx storage.Tx) error {
	_ = ctx
	h, err := s.open(tx)
	if err != nil {
		return err
	}
	h.closed = true
	if err := h.db.Commit().Error; err != nil {
		return translateErr(err)
	}
	return nil
}

func (s *Store) Rollback(ctx context.Context, tx storage.Tx) error {
	_ = ctx
	h, err := s.open(tx)
	if err != nil {
		return err
	}
	h.closed = true
	if err := h.db.Rollback().Error; err != nil {
		return fmt.Errorf("gormstore: rollback: %w", err)
	}
	return nil
}

// resolve returns the database handle for a repository call. A nil tx means
// autocommit on the shared connection pool.
func (s *Store) resolve(ctx context.Context, tx storage.Tx) (*gorm.DB, error) {
	if tx == nil {
		return s.db.WithContext(ctx), nil
	}
	h, err := s.open(tx)
	if err != nil {
		return nil, err
	}
	return h.db.WithContext(ctx), nil
}

func (s *Store) open(tx storage.Tx) (*gormTx, error) {
	h, ok := tx.(*gormTx)
	if !ok {
		return nil, storage.ErrForeignTx
	}
	if h.closed {
		return nil, storage.ErrTxClosed
	}
	return h, nil
}

// translateErr maps MySQL concurrency failures onto the storage contract so
// callers can retry without knowing the driver.
func translateErr(err error) error {
	var myErr *sqlmysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrDuplicateEntry, mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return fmt.Errorf("%w: %w", storage.ErrConflict, err)
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", storage.ErrConflict, err)
	}
	return err
}
