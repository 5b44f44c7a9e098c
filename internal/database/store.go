// Package database is the Postgres store. Every mutation of a shared counter is a
// server-side increment or a conditional update; callers group steps with WithinTx.
package database

import (
	"context"

	"gorm.io/gorm"
)

// Store implements the service repositories on top of gorm
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open gorm connection
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection
func (s *Store) DB() *gorm.DB {
	return s.db
}

type txKey struct{}

// txState is the outermost transaction and the hooks queued to run once it commits
type txState struct {
	db          *gorm.DB
	afterCommit []func()
}

// WithinTx runs fn in a transaction carried by the context. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}
	state := &txState{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state.db = tx
		return fn(context.WithValue(ctx, txKey{}, state))
	})
	if err != nil {
		return err
	}
	for _, hook := range state.afterCommit {
		hook()
	}
	return nil
}

// AfterCommit defers fn until the outermost transaction in ctx commits. Outside a
// transaction fn runs immediately; on rollback it never runs.
func (s *Store) AfterCommit(ctx context.Context, fn func()) {
	if state, ok := ctx.Value(txKey{}).(*txState); ok {
		state.afterCommit = append(state.afterCommit, fn)
		return
	}
	fn()
}

// conn returns the transaction in ctx, or the pool
func (s *Store) conn(ctx context.Context) *gorm.DB {
	if state, ok := ctx.Value(txKey{}).(*txState); ok {
		return state.db.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
