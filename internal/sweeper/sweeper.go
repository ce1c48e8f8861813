package sweeper

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"vacuum-rental-backend/internal/model"
	"vacuum-rental-backend/internal/session"
	"vacuum-rental-backend/internal/store"
)

// SessionControl is the slice of the session manager the sweeper drives.
type SessionControl interface {
	StopSession(ctx context.Context, sessionID string, reason session.StopReason) (*model.Session, error)
}

// DeviceControl is the slice of the dispatcher the sweeper uses when it
// repairs a machine whose device may still be running.
type DeviceControl interface {
	EmergencyStop(machineID string) error
}

// Sweeper periodically repairs state that has silently drifted: sessions
// that outlived their duration and machines marked busy with no active
// session. Every repair moves state toward the canonical rest state; errors
// are absorbed and logged, never surfaced, and whatever a pass misses the
// next one retries.
type Sweeper struct {
	store    store.Store
	sessions SessionControl
	devices  DeviceControl
	cron     *cron.Cron
}

// New creates a sweeper.
func New(s store.Store, sessions SessionControl, devices DeviceControl) *Sweeper {
	return &Sweeper{store: s, sessions: sessions, devices: devices}
}

// Start schedules RunOnce on the given fixed interval.
func (s *Sweeper) Start(interval time.Duration) error {
	s.cron = cron.New(cron.WithLocation(time.UTC))
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweeper: %w", err)
	}
	s.cron.Start()
	log.Printf("sweeper: scheduled every %s", interval)
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// RunOnce performs a single reconciliation pass. The two repairs are
// independent and applied per row; a failure on one row never blocks the
// rest.
func (s *Sweeper) RunOnce(ctx context.Context) {
	s.expireOverdueSessions(ctx)
	s.repairDriftedMachines(ctx)
}

// expireOverdueSessions stops every active session whose start time plus
// duration has passed. Pending sessions are deliberately left alone; a
// payment that never resolves is an operator concern, not this loop's.
func (s *Sweeper) expireOverdueSessions(ctx context.Context) {
	expired, err := s.store.ExpiredActiveSessions(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("sweeper: failed to scan for expired sessions: %v", err)
		return
	}
	for _, sess := range expired {
		if _, err := s.sessions.StopSession(ctx, sess.ID, session.ReasonExpired); err != nil {
			log.Printf("sweeper: failed to expire session %s: %v", sess.ID, err)
			continue
		}
		log.Printf("sweeper: expired session %s on machine %s", sess.ID, sess.MachineID)
	}
}

// repairDriftedMachines resets machines marked in_use that no active session
// references. This is the residue of a transition that failed partway, e.g.
// a crash between the session update and the machine update. The repair uses
// the same per-machine lock as live start/stop calls so it never races one,
// and re-checks the drift under the lock before acting.
func (s *Sweeper) repairDriftedMachines(ctx context.Context) {
	drifted, err := s.store.DriftedMachines(ctx)
	if err != nil {
		log.Printf("sweeper: failed to scan for drifted machines: %v", err)
		return
	}
	for _, machine := range drifted {
		machine := machine
		err := s.store.WithMachineLock(machine.ID, func() error {
			return s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				var active int64
				if err := tx.Model(&model.Session{}).
					Where("machine_id = ? AND status = ?", machine.ID, model.SessionActive).
					Count(&active).Error; err != nil {
					return err
				}
				if active > 0 {
					// A start won the race since the scan; no drift.
					return nil
				}
				return tx.Model(&model.Machine{}).
					Where("id = ? AND status = ?", machine.ID, model.MachineInUse).
					Update("status", model.MachineOnline).Error
			})
		})
		if err != nil {
			log.Printf("sweeper: failed to repair machine %s: %v", machine.ID, err)
			continue
		}
		// The device may still be running whatever activation leaked the
		// busy flag; force it off.
		if err := s.devices.EmergencyStop(machine.ID); err != nil {
			log.Printf("sweeper: emergency stop for machine %s not delivered: %v", machine.ID, err)
		}
		log.Printf("sweeper: reset drifted machine %s to online", machine.ID)
	}
}
