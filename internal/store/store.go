package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"vacuum-rental-backend/internal/model"
)

// Store defines the interface for all database operations. It is the single
// source of truth for machines, sessions and transactions; every component
// reads and writes through it.
type Store interface {
	DB() *gorm.DB

	// WithMachineLock runs fn while holding the exclusive per-machine lock.
	// All state transitions touching a machine or its sessions go through
	// this, which is what serializes concurrent starts, stops and sweeper
	// repairs on the same machine. Callers must not perform network I/O
	// inside fn.
	WithMachineLock(machineID string, fn func() error) error

	GetMachine(ctx context.Context, id string) (*model.Machine, error)
	ListMachines(ctx context.Context) ([]model.Machine, error)

	GetSession(ctx context.Context, id string) (*model.Session, error)
	ActiveSessionForMachine(ctx context.Context, machineID string) (*model.Session, error)

	// ExpiredActiveSessions returns active sessions whose start time plus
	// duration has passed as of now.
	ExpiredActiveSessions(ctx context.Context, now time.Time) ([]model.Session, error)

	// DriftedMachines returns machines marked in_use that no active session
	// references. Such rows are the residue of a transition that failed
	// partway and are repaired by the sweeper.
	DriftedMachines(ctx context.Context) ([]model.Machine, error)

	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	TransactionByExternalID(ctx context.Context, externalID string) (*model.Transaction, error)

	GetUser(ctx context.Context, id string) (*model.User, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db    *gorm.DB
	locks *machineLocks
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, locks: newMachineLocks()}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) WithMachineLock(machineID string, fn func() error) error {
	mu := s.locks.get(machineID)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

func (s *gormStore) GetMachine(ctx context.Context, id string) (*model.Machine, error) {
	var machine model.Machine
	if err := s.db.WithContext(ctx).First(&machine, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &machine, nil
}

func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Order("code").Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	return machines, nil
}

func (s *gormStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	if err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *gormStore) ActiveSessionForMachine(ctx context.Context, machineID string) (*model.Session, error) {
	var session model.Session
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND status = ?", machineID, model.SessionActive).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *gormStore) ExpiredActiveSessions(ctx context.Context, now time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := s.db.WithContext(ctx).
		Where("status = ?", model.SessionActive).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active sessions: %w", err)
	}

	// Duration is stored in minutes, so the deadline comparison is done in
	// the application rather than in dialect-specific date arithmetic.
	expired := sessions[:0]
	for _, sess := range sessions {
		if sess.StartTime != nil && !sess.Deadline().After(now) {
			expired = append(expired, sess)
		}
	}
	return expired, nil
}

func (s *gormStore) DriftedMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	err := s.db.WithContext(ctx).
		Where("status = ?", model.MachineInUse).
		Where("id NOT IN (?)", s.db.Model(&model.Session{}).
			Select("machine_id").
			Where("status = ?", model.SessionActive)).
		Find(&machines).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan for drifted machines: %w", err)
	}
	return machines, nil
}

func (s *gormStore) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	var txn model.Transaction
	if err := s.db.WithContext(ctx).First(&txn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (s *gormStore) TransactionByExternalID(ctx context.Context, externalID string) (*model.Transaction, error) {
	var txn model.Transaction
	err := s.db.WithContext(ctx).
		First(&txn, "external_payment_id = ?", externalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (s *gormStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
