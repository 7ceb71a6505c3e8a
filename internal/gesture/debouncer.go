// Package gesture turns a stream of classified gesture events into at most
// one device command per cooldown window.
package gesture

import (
	"sync"
	"time"

	"github.com/minghan/handwave/internal/detector"
	"github.com/minghan/handwave/internal/device"
)

// Mapping associates a gesture label with a command to apply to all devices.
type Mapping struct {
	Action device.Action
	Delta  int
}

// DefaultMappings returns the built-in gesture-to-command table: open palm
// turns everything on, a fist turns everything off, thumbs up/down adjust
// brightness by step percent.
func DefaultMappings(step int) map[detector.Label]Mapping {
	return map[detector.Label]Mapping{
		detector.LabelOpenPalm:   {Action: device.ActionPowerOn},
		detector.LabelFist:       {Action: device.ActionPowerOff},
		detector.LabelThumbsUp:   {Action: device.ActionBrightnessDelta, Delta: step},
		detector.LabelThumbsDown: {Action: device.ActionBrightnessDelta, Delta: -step},
	}
}

// Debouncer is a two-state machine (idle, cooldown) that accepts at most one
// gesture per cooldown window. A physical gesture spans many camera frames;
// without the cooldown a single wave of the hand would fire one command per
// frame.
//
// While in cooldown every incoming event is dropped regardless of its label
// or confidence. The window ends purely by time; there is no pre-emption.
type Debouncer struct {
	mu       sync.Mutex
	cooldown time.Duration
	expires  time.Time
	mappings map[detector.Label]Mapping
	targets  func() []string

	// now is replaceable in tests.
	now func() time.Time
}

// NewDebouncer creates a Debouncer with the given cooldown window, mapping
// table, and a function that yields the current target device IDs.
func NewDebouncer(cooldown time.Duration, mappings map[detector.Label]Mapping, targets func() []string) *Debouncer {
	return &Debouncer{
		cooldown: cooldown,
		mappings: mappings,
		targets:  targets,
		now:      time.Now,
	}
}

// Offer feeds one gesture event into the state machine. If the event is
// accepted it returns the mapped CommandBatch and true, and the debouncer
// enters cooldown. Events with label None, unmapped labels, and any event
// arriving during cooldown return false.
func (d *Debouncer) Offer(ev detector.GestureEvent) (device.CommandBatch, bool) {
	if ev.Label == detector.LabelNone {
		return device.CommandBatch{}, false
	}

	mapping, ok := d.mappings[ev.Label]
	if !ok {
		return device.CommandBatch{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Before(d.expires) {
		// In cooldown: strict suppression.
		return device.CommandBatch{}, false
	}

	d.expires = now.Add(d.cooldown)
	batch := device.NewBatch(d.targets(), mapping.Action, mapping.Delta)
	return batch, true
}

// Reset returns the debouncer to idle. Called on session stop so a restart
// does not inherit a stale cooldown window.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expires = time.Time{}
}

// InCooldown reports whether the debouncer is currently suppressing events.
func (d *Debouncer) InCooldown() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now().Before(d.expires)
}
