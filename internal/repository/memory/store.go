// Package memory provides an in-process implementation of repository.Store.
//
// Transactions are serialized by a store-wide lock and rolled back by
// restoring a snapshot taken when the transaction began. The unique
// constraints of the SQL schema are enforced on write.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
)

// ErrUniqueViolation mirrors a unique index violation of the SQL schema.
var ErrUniqueViolation = errors.New("memory: unique constraint violated")

type state struct {
	workItems   map[string]domain.WorkItem
	workers     map[string]domain.Worker
	teams       map[string]domain.Team
	escalations map[string]domain.EscalationLog
	timeLogs    map[string]domain.TimeLog
	audit       []domain.AuditEntry
}

func newState() *state {
	return &state{
		workItems:   map[string]domain.WorkItem{},
		workers:     map[string]domain.Worker{},
		teams:       map[string]domain.Team{},
		escalations: map[string]domain.EscalationLog{},
		timeLogs:    map[string]domain.TimeLog{},
	}
}

func (s *state) clone() *state {
	return &state{
		workItems:   maps.Clone(s.workItems),
		workers:     maps.Clone(s.workers),
		teams:       maps.Clone(s.teams),
		escalations: maps.Clone(s.escalations),
		timeLogs:    maps.Clone(s.timeLogs),
		audit:       slices.Clone(s.audit),
	}
}

// Store is a transactional in-memory repository.Store.
type Store struct {
	txMu sync.Mutex

	mu   sync.RWMutex
	data *state
	now  func() time.Time
}

// NewStore creates an empty store. now stamps UpdatedAt; nil means time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{data: newState(), now: now}
}

// Repos returns repositories operating outside any transaction.
func (s *Store) Repos() repository.Repositories {
	return repository.Repositories{
		WorkItems:   &workItems{s: s},
		Workers:     &workers{s: s},
		Teams:       &teams{s: s},
		Escalations: &escalations{s: s},
		TimeLogs:    &timeLogs{s: s},
		Audit:       &auditLog{s: s},
	}
}

// WithTransaction runs fn exclusively and restores the previous state when
// it fails.
func (s *Store) WithTransaction(ctx context.Context, fn repository.TxFunc) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(ctx, s.Repos()); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) read(fn func(d *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

func (s *Store) write(fn func(d *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}
