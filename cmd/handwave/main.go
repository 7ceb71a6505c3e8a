package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/minghan/handwave/internal/app"
	"github.com/minghan/handwave/internal/capture"
	"github.com/minghan/handwave/internal/config"
	"github.com/minghan/handwave/internal/detector"
	"github.com/minghan/handwave/internal/device"
	"github.com/minghan/handwave/internal/gesture"
	"github.com/minghan/handwave/internal/miio"
	"github.com/minghan/handwave/internal/server"
	"github.com/minghan/handwave/internal/store"
	"github.com/minghan/handwave/internal/tray"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	flag.Parse()

	fmt.Println("Handwave - Gesture Control for Xiaomi Lighting")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the store
	st, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	// Build the device registry from the usable config entries.
	cache := device.NewStatusCache(cfg.Cache.StalenessDuration(), cfg.Cache.ProbeTimeoutDuration())
	for name, dc := range cfg.ValidDevices() {
		client, err := miio.NewClient(dc.IP, dc.Token)
		if err != nil {
			log.Printf("Skipping device %q: %v", name, err)
			continue
		}

		d := device.Device{
			ID:    name,
			Name:  name,
			Kind:  device.ParseKind(dc.Type),
			Addr:  dc.IP,
			Token: dc.Token,
			Model: dc.Model,
		}
		cache.Register(d, client)

		if err := st.Devices().Upsert(&store.DeviceRecord{
			ID:    d.ID,
			Name:  d.Name,
			Kind:  string(d.Kind),
			Addr:  d.Addr,
			Model: d.Model,
		}); err != nil {
			log.Printf("Failed to register device %q: %v", name, err)
		}
	}

	if len(cache.Devices()) == 0 {
		log.Fatalf("No usable devices in configuration")
	}

	dispatcher := device.NewDispatcher(cache, cfg.Cache.ProbeTimeoutDuration())

	targets := func() []string {
		devices := cache.Devices()
		ids := make([]string, len(devices))
		for i, d := range devices {
			ids[i] = d.ID
		}
		return ids
	}

	debouncer := gesture.NewDebouncer(
		cfg.CooldownDuration(),
		gesture.DefaultMappings(cfg.Gesture.BrightnessStep),
		targets,
	)

	// Try MediaPipe first, fall back to mock detector
	var det detector.Detector
	if mp, err := detector.NewMediaPipeDetector(detector.DefaultConfig()); err == nil {
		det = mp
		log.Println("Using MediaPipe hand detection")
	} else {
		log.Printf("MediaPipe not available (%v), using mock detector", err)
		det = detector.NewMockDetector()
	}

	a := app.New(app.Config{
		Camera: capture.NewCamera(capture.Options{
			DeviceID: cfg.Camera.DeviceID,
			Width:    cfg.Camera.Width,
			Height:   cfg.Camera.Height,
			FPS:      cfg.Camera.FPS,
		}),
		Detector:        det,
		Classifier:      detector.NewClassifier(cfg.Gesture.ConfidenceThreshold),
		Debouncer:       debouncer,
		Cache:           cache,
		Dispatcher:      dispatcher,
		Store:           st,
		MotionThresh:    cfg.Gesture.MotionThreshold,
		ActiveFPS:       cfg.Camera.FPS,
		RefreshInterval: cfg.Cache.RefreshIntervalDuration(),
	})

	srv := server.New(server.Config{
		Cache:      cache,
		Dispatcher: dispatcher,
		Store:      st,
		Refresh:    func() { a.RefreshNow(context.Background()) },
	})

	t := tray.New()

	// Wire app events into tray and websocket clients.
	a.OnGesture(func(ev detector.GestureEvent) {
		t.SetLastGesture(string(ev.Label))
		srv.Events().Broadcast("gesture", ev)
	})
	a.OnOutcomes(func(batch device.CommandBatch, outcomes map[string]device.Outcome) {
		srv.Events().Broadcast("dispatch", map[string]interface{}{
			"batch":    batch,
			"outcomes": outcomes,
		})
		updateDeviceCounts(t, cache)
	})

	t.OnToggle(a.SetEnabled)
	t.OnRefresh(func() {
		a.RefreshNow(context.Background())
		updateDeviceCounts(t, cache)
	})
	t.OnQuit(a.Stop)

	if err := a.Start(); err != nil {
		log.Fatalf("Failed to start detection pipeline: %v", err)
	}

	go func() {
		log.Printf("Device manager listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(cfg.Server.Addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Blocks until quit; systray owns the main thread.
	t.Run()
}

func openStore(cfg *config.Config) (*store.Store, error) {
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		dbDir := filepath.Join(homeDir, ".handwave")
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, err
		}
		dbPath = filepath.Join(dbDir, "handwave.db")
	}

	return store.New(dbPath)
}

func updateDeviceCounts(t *tray.Tray, cache *device.StatusCache) {
	var online int
	statuses := cache.All()
	for _, s := range statuses {
		if s.Online {
			online++
		}
	}
	t.SetDeviceCounts(online, len(statuses))
}

func defaultConfigPath() string {
	// Prefer a config.yaml next to the working directory, then ~/.handwave.
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(homeDir, ".handwave", "config.yaml")
}
