package gesture

import (
	"testing"
	"time"

	"github.com/minghan/handwave/internal/detector"
	"github.com/minghan/handwave/internal/device"
)

func newTestDebouncer(cooldown time.Duration) (*Debouncer, *time.Time) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDebouncer(cooldown, DefaultMappings(20), func() []string {
		return []string{"desk-lamp", "ceiling"}
	})
	d.now = func() time.Time { return clock }
	return d, &clock
}

func TestDebouncer_AcceptsFirstGesture(t *testing.T) {
	d, _ := newTestDebouncer(2 * time.Second)

	batch, ok := d.Offer(detector.GestureEvent{Label: detector.LabelOpenPalm, Confidence: 0.9})
	if !ok {
		t.Fatal("expected first gesture to be accepted")
	}

	if batch.Action != device.ActionPowerOn {
		t.Errorf("expected power_on action for open palm, got %q", batch.Action)
	}
	if len(batch.Targets) != 2 {
		t.Errorf("expected batch to target all 2 devices, got %d", len(batch.Targets))
	}
	if batch.ID == "" {
		t.Error("expected batch to have an ID")
	}
}

func TestDebouncer_SuppressesDuringCooldown(t *testing.T) {
	d, clock := newTestDebouncer(2 * time.Second)

	// t=0: open palm accepted, cooldown starts
	if _, ok := d.Offer(detector.GestureEvent{Label: detector.LabelOpenPalm, Confidence: 0.9}); !ok {
		t.Fatal("expected first gesture to be accepted")
	}

	// t=0.5s: a different gesture arrives during cooldown and is dropped,
	// even though it is a valid, confident detection
	*clock = clock.Add(500 * time.Millisecond)
	if _, ok := d.Offer(detector.GestureEvent{Label: detector.LabelFist, Confidence: 0.95}); ok {
		t.Error("expected gesture during cooldown to be suppressed")
	}
	if !d.InCooldown() {
		t.Error("expected debouncer to report in-cooldown")
	}

	// t=2.1s: cooldown has elapsed, the next gesture maps normally
	*clock = clock.Add(1600 * time.Millisecond)
	batch, ok := d.Offer(detector.GestureEvent{Label: detector.LabelFist, Confidence: 0.95})
	if !ok {
		t.Fatal("expected gesture after cooldown to be accepted")
	}
	if batch.Action != device.ActionPowerOff {
		t.Errorf("expected power_off action for fist, got %q", batch.Action)
	}
}

func TestDebouncer_SuppressedGestureDoesNotExtendCooldown(t *testing.T) {
	d, clock := newTestDebouncer(2 * time.Second)

	d.Offer(detector.GestureEvent{Label: detector.LabelOpenPalm, Confidence: 0.9})

	// Spam events throughout the window; none of them may push the window out.
	for i := 0; i < 3; i++ {
		*clock = clock.Add(500 * time.Millisecond)
		if _, ok := d.Offer(detector.GestureEvent{Label: detector.LabelThumbsUp, Confidence: 0.9}); ok {
			t.Fatalf("expected suppression at +%dms", (i+1)*500)
		}
	}

	// t=2.0s exactly: window over, next event accepted.
	*clock = clock.Add(500 * time.Millisecond)
	if _, ok := d.Offer(detector.GestureEvent{Label: detector.LabelThumbsUp, Confidence: 0.9}); !ok {
		t.Error("expected gesture at end of window to be accepted")
	}
}

func TestDebouncer_IgnoresNoneAndUnmapped(t *testing.T) {
	d, _ := newTestDebouncer(2 * time.Second)

	if _, ok := d.Offer(detector.GestureEvent{Label: detector.LabelNone, Confidence: 0.9}); ok {
		t.Error("expected none label to be ignored")
	}
	if _, ok := d.Offer(detector.GestureEvent{Label: detector.Label("peace_sign"), Confidence: 0.9}); ok {
		t.Error("expected unmapped label to be ignored")
	}

	// Ignored events never start a cooldown window.
	if d.InCooldown() {
		t.Error("expected debouncer to stay idle after ignored events")
	}
}

func TestDebouncer_BrightnessDeltas(t *testing.T) {
	d, clock := newTestDebouncer(2 * time.Second)

	up, ok := d.Offer(detector.GestureEvent{Label: detector.LabelThumbsUp, Confidence: 0.9})
	if !ok {
		t.Fatal("expected thumbs up to be accepted")
	}
	if up.Action != device.ActionBrightnessDelta || up.Delta != 20 {
		t.Errorf("expected brightness_delta +20, got %q %+d", up.Action, up.Delta)
	}

	*clock = clock.Add(3 * time.Second)
	down, ok := d.Offer(detector.GestureEvent{Label: detector.LabelThumbsDown, Confidence: 0.9})
	if !ok {
		t.Fatal("expected thumbs down to be accepted")
	}
	if down.Action != device.ActionBrightnessDelta || down.Delta != -20 {
		t.Errorf("expected brightness_delta -20, got %q %+d", down.Action, down.Delta)
	}
}

func TestDebouncer_Reset(t *testing.T) {
	d, _ := newTestDebouncer(time.Hour)

	d.Offer(detector.GestureEvent{Label: detector.LabelOpenPalm, Confidence: 0.9})
	if !d.InCooldown() {
		t.Fatal("expected cooldown after accepted gesture")
	}

	d.Reset()
	if d.InCooldown() {
		t.Error("expected reset to return debouncer to idle")
	}
	if _, ok := d.Offer(detector.GestureEvent{Label: detector.LabelFist, Confidence: 0.9}); !ok {
		t.Error("expected gesture after reset to be accepted")
	}
}
