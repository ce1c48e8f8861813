package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrDeviceUnreachable wraps a failed publish on the command channel. Session
// state is unaffected by it; the store is already authoritative and the next
// sweeper pass re-issues commands if state still disagrees.
var ErrDeviceUnreachable = errors.New("device unreachable")

// Dispatcher translates session transitions into commands on the device
// command channel. It owns the hard safety ceiling on activation duration:
// no activate ever exceeds it, and a local timer forces a deactivate when it
// elapses regardless of session state.
type Dispatcher struct {
	pub     Publisher
	prefix  string
	ceiling time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDispatcher creates a dispatcher publishing under the given topic prefix
// with the given activation ceiling.
func NewDispatcher(pub Publisher, topicPrefix string, safetyCeiling time.Duration) *Dispatcher {
	if safetyCeiling <= 0 {
		safetyCeiling = 30 * time.Minute
	}
	return &Dispatcher{
		pub:     pub,
		prefix:  topicPrefix,
		ceiling: safetyCeiling,
		timers:  make(map[string]*time.Timer),
	}
}

// RequestActivation publishes an activate command for the machine, clamped to
// the safety ceiling, and arms the local safety timer. A repeated activation
// refreshes the timer.
func (d *Dispatcher) RequestActivation(machineID string, duration time.Duration) error {
	if duration > d.ceiling {
		log.Printf("dispatcher: clamping activation for machine %s from %s to ceiling %s",
			machineID, duration, d.ceiling)
		duration = d.ceiling
	}
	if err := d.publish(machineID, ActionActivate, duration); err != nil {
		return err
	}
	d.armSafetyTimer(machineID, duration)
	return nil
}

// RequestDeactivation publishes a deactivate command. Idempotent if the
// device is already off.
func (d *Dispatcher) RequestDeactivation(machineID string) error {
	d.disarmSafetyTimer(machineID)
	return d.publish(machineID, ActionDeactivate, 0)
}

// EmergencyStop publishes an emergency stop at the highest QoS, bypassing the
// safety timer entirely.
func (d *Dispatcher) EmergencyStop(machineID string) error {
	d.disarmSafetyTimer(machineID)
	return d.publish(machineID, ActionEmergencyStop, 0)
}

func (d *Dispatcher) publish(machineID string, action Action, duration time.Duration) error {
	cmd := Command{
		MachineID:  machineID,
		Action:     action,
		DurationMs: duration.Milliseconds(),
		IssuedAt:   time.Now().UTC(),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal %s command: %w", action, err)
	}

	topic := fmt.Sprintf("%s/%s/command", d.prefix, machineID)
	qos := byte(1)
	if action == ActionEmergencyStop {
		qos = 2
	}
	if err := d.pub.Publish(topic, qos, false, payload); err != nil {
		return fmt.Errorf("%w: %s for machine %s: %v", ErrDeviceUnreachable, action, machineID, err)
	}
	log.Printf("dispatcher: published %s for machine %s (durationMs=%d)", action, machineID, cmd.DurationMs)
	return nil
}

// armSafetyTimer schedules an unconditional deactivate at the end of the
// activation window. The timer is local: even if every stop path fails, the
// device is powered down after at most the ceiling.
func (d *Dispatcher) armSafetyTimer(machineID string, duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if timer, ok := d.timers[machineID]; ok {
		timer.Stop()
	}
	d.timers[machineID] = time.AfterFunc(duration, func() {
		log.Printf("dispatcher: safety timer fired for machine %s, forcing deactivation", machineID)
		d.mu.Lock()
		delete(d.timers, machineID)
		d.mu.Unlock()
		if err := d.publish(machineID, ActionDeactivate, 0); err != nil {
			log.Printf("dispatcher: safety deactivation for machine %s failed: %v", machineID, err)
		}
	})
}

func (d *Dispatcher) disarmSafetyTimer(machineID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if timer, ok := d.timers[machineID]; ok {
		timer.Stop()
		delete(d.timers, machineID)
	}
}
