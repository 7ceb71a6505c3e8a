// Package app provides the main application logic for the Handwave
// gesture-controlled lighting system.
package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minghan/handwave/internal/capture"
	"github.com/minghan/handwave/internal/detector"
	"github.com/minghan/handwave/internal/device"
	"github.com/minghan/handwave/internal/gesture"
	"github.com/minghan/handwave/internal/store"
)

// Pipeline timing constants.
const (
	// IdleFPS is the frame rate when no motion is detected.
	IdleFPS = 5
	// IdleTimeoutMs is the time in milliseconds to wait before switching back to idle mode.
	IdleTimeoutMs = 2000
	// BatchQueueSize bounds the pending gesture commands. The cooldown makes
	// more than one pending batch unusual; a full queue drops the gesture
	// rather than stalling the frame loop.
	BatchQueueSize = 4
)

// Config holds the collaborators wired in by the caller.
type Config struct {
	Camera          capture.Camera
	Detector        detector.Detector
	Classifier      *detector.Classifier
	Debouncer       *gesture.Debouncer
	Cache           *device.StatusCache
	Dispatcher      *device.Dispatcher
	Store           *store.Store
	MotionThresh    float64
	ActiveFPS       int
	RefreshInterval time.Duration
}

// App orchestrates the frame-processing loop and the device I/O workers.
// The two run independently: slow or failing network calls never stall
// gesture detection.
type App struct {
	config   Config
	camera   capture.Camera
	motion   *capture.MotionDetector
	detector detector.Detector

	enabled bool
	mu      sync.RWMutex
	stopCh  chan struct{}
	cancel  context.CancelFunc
	batchCh chan device.CommandBatch
	wg      sync.WaitGroup

	onGesture  func(detector.GestureEvent)
	onOutcomes func(device.CommandBatch, map[string]device.Outcome)
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	motionThreshold := config.MotionThresh
	if motionThreshold <= 0 {
		motionThreshold = 1.0 // Default threshold: 1% pixel change
	}
	if config.ActiveFPS <= 0 {
		config.ActiveFPS = capture.DefaultFPS
	}

	return &App{
		config:   config,
		camera:   config.Camera,
		motion:   capture.NewMotionDetector(motionThreshold),
		detector: config.Detector,
		enabled:  true,
	}
}

// SetEnabled enables or disables gesture detection. Device refresh keeps
// running either way; only the gesture loop pauses.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether gesture detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// OnGesture sets the callback invoked for every accepted gesture.
func (a *App) OnGesture(fn func(detector.GestureEvent)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onGesture = fn
}

// OnOutcomes sets the callback invoked after a batch finishes dispatching.
func (a *App) OnOutcomes(fn func(device.CommandBatch, map[string]device.Outcome)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onOutcomes = fn
}

// Cache returns the device status cache.
func (a *App) Cache() *device.StatusCache {
	return a.config.Cache
}

// Dispatcher returns the command dispatcher.
func (a *App) Dispatcher() *device.Dispatcher {
	return a.config.Dispatcher
}

// Start begins the detection pipeline and the device I/O workers.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	a.camera.SetFPS(IdleFPS)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.stopCh = make(chan struct{})
	a.batchCh = make(chan device.CommandBatch, BatchQueueSize)

	a.wg.Add(3)
	go a.runPipeline(a.stopCh)
	go a.dispatchWorker(ctx)
	go a.refreshLoop(ctx)

	log.Println("Detection pipeline started")
	return nil
}

// Stop halts the pipeline, cancels in-flight device I/O, and releases
// resources. A cancelled refresh or dispatch leaves the previous cached
// state untouched.
func (a *App) Stop() {
	a.mu.Lock()

	if a.stopCh == nil {
		a.mu.Unlock()
		return
	}

	close(a.stopCh)
	a.stopCh = nil
	a.cancel()

	if a.config.Debouncer != nil {
		a.config.Debouncer.Reset()
	}

	a.mu.Unlock()
	a.wg.Wait()

	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}

	a.motion.Close()

	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			log.Printf("Error closing detector: %v", err)
		}
	}

	log.Println("Detection pipeline stopped")
}

// dispatchWorker consumes accepted gesture batches and applies them to the
// devices, recording per-device outcomes in the command log.
func (a *App) dispatchWorker(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-a.batchCh:
			outcomes := a.config.Dispatcher.Dispatch(ctx, batch)
			a.logOutcomes(batch, outcomes)

			a.mu.RLock()
			cb := a.onOutcomes
			a.mu.RUnlock()
			if cb != nil {
				cb(batch, outcomes)
			}
		}
	}
}

// refreshLoop refreshes all device statuses on the configured interval and
// persists a snapshot of each result.
func (a *App) refreshLoop(ctx context.Context) {
	defer a.wg.Done()

	interval := a.config.RefreshInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Prime the cache once at startup so the first reads have data.
	a.config.Cache.RefreshAll(ctx)
	a.persistSnapshots()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.config.Cache.RefreshAll(ctx)
			a.persistSnapshots()
			a.pruneSnapshots()
		}
	}
}

// snapshotRetention bounds how much state history the store keeps.
const snapshotRetention = 7 * 24 * time.Hour

func (a *App) pruneSnapshots() {
	if a.config.Store == nil {
		return
	}
	if _, err := a.config.Store.Snapshots().Prune(time.Now().Add(-snapshotRetention)); err != nil {
		log.Printf("Failed to prune snapshots: %v", err)
	}
}

// RefreshNow triggers an immediate refresh of every device, used by the
// tray menu and the HTTP API.
func (a *App) RefreshNow(ctx context.Context) {
	a.config.Cache.RefreshAll(ctx)
	a.persistSnapshots()
}

func (a *App) persistSnapshots() {
	if a.config.Store == nil {
		return
	}

	for id, status := range a.config.Cache.All() {
		snap := &store.Snapshot{
			DeviceID:   id,
			Power:      status.State.Power,
			Brightness: status.State.Brightness,
			ColorTemp:  status.State.ColorTemp,
			Online:     status.Online,
			TakenAt:    status.LastRefreshed,
		}
		if snap.TakenAt.IsZero() {
			continue // never successfully probed, nothing worth keeping
		}
		if err := a.config.Store.Snapshots().Record(snap); err != nil {
			log.Printf("Failed to persist snapshot for %s: %v", id, err)
		}
	}
}

func (a *App) logOutcomes(batch device.CommandBatch, outcomes map[string]device.Outcome) {
	if a.config.Store == nil {
		return
	}

	for id, outcome := range outcomes {
		entry := &store.CommandEntry{
			ID:       uuid.New().String(),
			BatchID:  batch.ID,
			DeviceID: id,
			Action:   string(batch.Action),
			Delta:    batch.Delta,
			OK:       outcome.OK,
			Reason:   outcome.Reason,
		}
		if err := a.config.Store.CommandLog().Append(entry); err != nil {
			log.Printf("Failed to log command for %s: %v", id, err)
		}
	}
}
