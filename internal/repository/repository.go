package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	WorkItems   WorkItemRepository
	Workers     WorkerRepository
	Teams       TeamRepository
	Escalations EscalationRepository
	TimeLogs    TimeLogRepository
	Audit       AuditRepository
}

// TxFunc runs inside a transaction. Returning an error rolls it back.
type TxFunc func(ctx context.Context, repos Repositories) error

// Store gives access to repositories outside and inside transactions.
type Store interface {
	Repos() Repositories
	WithTransaction(ctx context.Context, fn TxFunc) error
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore builds a Store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) Repos() Repositories {
	return newRepositories(s.pool)
}

func (s *postgresStore) WithTransaction(ctx context.Context, fn TxFunc) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, newRepositories(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func newRepositories(db dbtx) Repositories {
	return Repositories{
		WorkItems:   &workItemRepository{db: db},
		Workers:     &workerRepository{db: db},
		Teams:       &teamRepository{db: db},
		Escalations: &escalationRepository{db: db},
		TimeLogs:    &timeLogRepository{db: db},
		Audit:       &auditRepository{db: db},
	}
}

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func expectOne(cmd pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// placeholders appends values to args and returns "$n,$n+1,...".
func placeholders[T any](args *[]any, values []T) string {
	marks := make([]string, len(values))
	for i, v := range values {
		*args = append(*args, v)
		marks[i] = fmt.Sprintf("$%d", len(*args))
	}
	return strings.Join(marks, ",")
}
