package app

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/minghan/handwave/internal/capture"
	"github.com/minghan/handwave/internal/detector"
	"github.com/minghan/handwave/internal/device"
	"github.com/minghan/handwave/internal/gesture"
	"github.com/minghan/handwave/internal/store"
)

// testFixture wires the full pipeline against a looping mock camera whose
// alternating black/white frames keep the motion detector in active mode.
type testFixture struct {
	app    *App
	cache  *device.StatusCache
	ctrl   *device.MockController
	store  *store.Store
	frames []gocv.Mat
}

func newTestFixture(t *testing.T, hands []detector.HandLandmarks) *testFixture {
	t.Helper()

	black := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	white := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	white.SetTo(gocv.NewScalar(255, 255, 255, 0))

	cam := capture.NewMockCamera([]*gocv.Mat{&black, &white}, true)

	mockDetector := detector.NewMockDetector()
	mockDetector.SetHands(hands)

	ctrl := device.NewMockController(device.State{Power: true, Brightness: 50, ColorTemp: 4000})
	cache := device.NewStatusCache(time.Minute, time.Second)
	cache.Register(device.Device{ID: "lamp", Name: "lamp", Kind: device.KindLight, Addr: "192.168.1.40"}, ctrl)

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	s.Devices().Upsert(&store.DeviceRecord{ID: "lamp", Name: "lamp", Kind: "light", Addr: "192.168.1.40"})

	// Cooldown longer than any test run: each test sees exactly one
	// accepted gesture.
	debouncer := gesture.NewDebouncer(
		time.Minute,
		gesture.DefaultMappings(20),
		func() []string { return []string{"lamp"} },
	)

	a := New(Config{
		Camera:          cam,
		Detector:        mockDetector,
		Classifier:      detector.NewClassifier(0.7),
		Debouncer:       debouncer,
		Cache:           cache,
		Dispatcher:      device.NewDispatcher(cache, time.Second),
		Store:           s,
		MotionThresh:    1.0,
		ActiveFPS:       30,
		RefreshInterval: time.Hour,
	})

	f := &testFixture{app: a, cache: cache, ctrl: ctrl, store: s, frames: []gocv.Mat{black, white}}
	t.Cleanup(func() {
		s.Close()
		for i := range f.frames {
			f.frames[i].Close()
		}
	})
	return f
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestApp_GestureToCommand(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	f := newTestFixture(t, []detector.HandLandmarks{detector.ThumbsUpLandmarks()})

	var mu sync.Mutex
	var gestures []detector.Label
	f.app.OnGesture(func(ev detector.GestureEvent) {
		mu.Lock()
		gestures = append(gestures, ev.Label)
		mu.Unlock()
	})

	var outcomes []map[string]device.Outcome
	f.app.OnOutcomes(func(batch device.CommandBatch, o map[string]device.Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	})

	if err := f.app.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer f.app.Stop()

	// The looping frames generate motion, the mock detector reports a thumbs
	// up, and the dispatcher should raise the brightness from 50.
	ok := waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(outcomes) >= 1
	})
	if !ok {
		t.Fatal("expected a brightness command to reach the device")
	}

	if got := f.ctrl.State().Brightness; got != 70 {
		t.Errorf("expected brightness 50+20=70 after thumbs up, got %d", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(gestures) == 0 {
		t.Fatal("expected the gesture callback to fire")
	}
	if gestures[0] != detector.LabelThumbsUp {
		t.Errorf("expected thumbs_up gesture, got %q", gestures[0])
	}
	if len(outcomes) == 0 {
		t.Fatal("expected the outcomes callback to fire")
	}
	if !outcomes[0]["lamp"].OK {
		t.Errorf("expected successful outcome, got %+v", outcomes[0]["lamp"])
	}
}

func TestApp_DisabledSkipsDetection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	f := newTestFixture(t, []detector.HandLandmarks{detector.OpenPalmLandmarks()})
	f.app.SetEnabled(false)

	if err := f.app.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer f.app.Stop()

	time.Sleep(600 * time.Millisecond)

	if n := f.ctrl.CallCount("set_power on"); n != 0 {
		t.Errorf("expected no commands while disabled, got %d", n)
	}
}

func TestApp_CommandLogPersisted(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	f := newTestFixture(t, []detector.HandLandmarks{detector.FistLandmarks()})

	if err := f.app.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ok := waitFor(t, 5*time.Second, func() bool {
		entries, _ := f.store.CommandLog().Recent(10)
		return len(entries) > 0
	})
	f.app.Stop()

	if !ok {
		t.Fatal("expected the dispatched command to be logged")
	}

	entries, err := f.store.CommandLog().Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if entries[0].Action != string(device.ActionPowerOff) {
		t.Errorf("expected power_off logged for fist, got %q", entries[0].Action)
	}
	if entries[0].DeviceID != "lamp" {
		t.Errorf("expected device lamp, got %q", entries[0].DeviceID)
	}
}

func TestApp_StopIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	f := newTestFixture(t, nil)

	if err := f.app.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.app.Stop()
	f.app.Stop() // second stop must not panic or block
}
