package device

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action is the logical operation a gesture or manual control maps to.
type Action string

const (
	// ActionPowerOn turns the target devices on.
	ActionPowerOn Action = "power_on"
	// ActionPowerOff turns the target devices off.
	ActionPowerOff Action = "power_off"
	// ActionBrightnessDelta adjusts brightness by a relative amount,
	// clamped to [0, 100].
	ActionBrightnessDelta Action = "brightness_delta"
	// ActionColorTempDelta adjusts color temperature by a relative amount
	// in Kelvin, clamped to the hardware range.
	ActionColorTempDelta Action = "color_temp_delta"
)

// CommandBatch is one logical action applied to a set of devices.
// Batches are created per accepted gesture (or manual control) and
// consumed immediately; they are not retained.
type CommandBatch struct {
	ID      string   `json:"id"`
	Targets []string `json:"targets"`
	Action  Action   `json:"action"`
	Delta   int      `json:"delta,omitempty"` // for the delta actions
}

// NewBatch creates a CommandBatch with a fresh ID.
func NewBatch(targets []string, action Action, delta int) CommandBatch {
	return CommandBatch{
		ID:      uuid.New().String(),
		Targets: targets,
		Action:  action,
		Delta:   delta,
	}
}

// Outcome is the per-device result of a dispatched command.
type Outcome struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Dispatcher translates a CommandBatch into per-device control calls.
// Devices are handled independently and concurrently; a failure on one
// device never aborts the rest of the batch. There is no automatic retry.
type Dispatcher struct {
	cache   *StatusCache
	timeout time.Duration
}

// NewDispatcher creates a Dispatcher that issues commands to devices
// registered in the given cache, with the given per-device timeout.
func NewDispatcher(cache *StatusCache, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		cache:   cache,
		timeout: timeout,
	}
}

// Dispatch applies the batch to every target device and returns the
// per-device outcomes keyed by device ID. After a successful command the
// device's cached state is updated immediately (write-through), so reads
// do not go stale until the next scheduled refresh.
func (d *Dispatcher) Dispatch(ctx context.Context, batch CommandBatch) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(batch.Targets))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range batch.Targets {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := d.apply(ctx, id, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcomes[id] = Outcome{Reason: err.Error()}
				CommandsTotal.WithLabelValues(string(batch.Action), "error").Inc()
				log.Printf("Command %s failed for %s: %v", batch.Action, id, err)
			} else {
				outcomes[id] = Outcome{OK: true}
				CommandsTotal.WithLabelValues(string(batch.Action), "ok").Inc()
			}
		}(id)
	}

	wg.Wait()
	return outcomes
}

// apply issues the control call for one device, serialized against other
// in-flight operations on the same device, and writes the new state through
// to the cache on success.
func (d *Dispatcher) apply(ctx context.Context, id string, batch CommandBatch) error {
	e, ok := d.cache.entry(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	current := e.state
	e.mu.Unlock()

	cmdCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	next := current

	switch batch.Action {
	case ActionPowerOn:
		if err := e.ctrl.SetPower(cmdCtx, true); err != nil {
			return d.fail(e, err)
		}
		next.Power = true

	case ActionPowerOff:
		if err := e.ctrl.SetPower(cmdCtx, false); err != nil {
			return d.fail(e, err)
		}
		next.Power = false

	case ActionBrightnessDelta:
		level := ClampBrightness(current.Brightness + batch.Delta)
		if err := e.ctrl.SetBrightness(cmdCtx, level); err != nil {
			return d.fail(e, err)
		}
		next.Brightness = level

	case ActionColorTempDelta:
		kelvin := ClampColorTemp(current.ColorTemp + batch.Delta)
		if err := e.ctrl.SetColorTemp(cmdCtx, kelvin); err != nil {
			return d.fail(e, err)
		}
		next.ColorTemp = kelvin

	default:
		return fmt.Errorf("unknown action %q", batch.Action)
	}

	// Write-through: a confirmed command is as authoritative as a probe.
	e.mu.Lock()
	e.state = next
	e.online = true
	e.lastRefreshed = time.Now()
	e.mu.Unlock()

	return nil
}

// fail marks the device offline on a transient error. The cached state is
// never touched on failure, so the last good state stays readable.
func (d *Dispatcher) fail(e *entry, err error) error {
	if IsTransient(err) {
		e.mu.Lock()
		e.online = false
		e.mu.Unlock()
	}
	return err
}
