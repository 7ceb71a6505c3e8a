package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDeviceRepository_UpsertAndList(t *testing.T) {
	s := newTestStore(t)
	repo := s.Devices()

	if err := repo.Upsert(&DeviceRecord{
		ID: "desk-lamp", Name: "desk-lamp", Kind: "desk_lamp", Addr: "192.168.1.40",
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(&DeviceRecord{
		ID: "ceiling", Name: "ceiling", Kind: "ceiling_light", Addr: "192.168.1.41",
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	devices, err := repo.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	// Ordered by name.
	if devices[0].ID != "ceiling" || devices[1].ID != "desk-lamp" {
		t.Errorf("expected devices ordered by name, got %q, %q", devices[0].ID, devices[1].ID)
	}

	// Upsert of an existing ID refreshes attributes instead of duplicating.
	if err := repo.Upsert(&DeviceRecord{
		ID: "desk-lamp", Name: "desk-lamp", Kind: "desk_lamp", Addr: "192.168.1.50", Model: "yeelink.light.lamp1",
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	devices, err = repo.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected upsert to not duplicate, got %d devices", len(devices))
	}
	if devices[1].Addr != "192.168.1.50" || devices[1].Model != "yeelink.light.lamp1" {
		t.Errorf("expected attributes refreshed, got %+v", devices[1])
	}
}

func TestDeviceRepository_Delete(t *testing.T) {
	s := newTestStore(t)
	repo := s.Devices()

	repo.Upsert(&DeviceRecord{ID: "lamp", Name: "lamp", Kind: "light", Addr: "192.168.1.40"})

	if err := repo.Delete("lamp"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete("lamp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for second delete, got %v", err)
	}
}

func TestSnapshotRepository_RecordAndLatest(t *testing.T) {
	s := newTestStore(t)
	s.Devices().Upsert(&DeviceRecord{ID: "lamp", Name: "lamp", Kind: "light", Addr: "192.168.1.40"})
	repo := s.Snapshots()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, bright := range []int{30, 50, 70} {
		if err := repo.Record(&Snapshot{
			DeviceID:   "lamp",
			Power:      true,
			Brightness: bright,
			ColorTemp:  4000,
			Online:     true,
			TakenAt:    base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	latest, err := repo.Latest("lamp")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Brightness != 70 {
		t.Errorf("expected latest snapshot brightness 70, got %d", latest.Brightness)
	}
	if !latest.Power || !latest.Online {
		t.Errorf("expected power and online flags round-tripped, got %+v", latest)
	}

	if _, err := repo.Latest("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown device, got %v", err)
	}
}

func TestSnapshotRepository_Prune(t *testing.T) {
	s := newTestStore(t)
	s.Devices().Upsert(&DeviceRecord{ID: "lamp", Name: "lamp", Kind: "light", Addr: "192.168.1.40"})
	repo := s.Snapshots()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		repo.Record(&Snapshot{
			DeviceID: "lamp", Brightness: i * 10,
			TakenAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	// Drop everything older than the third snapshot.
	pruned, err := repo.Prune(base.Add(2 * time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 2 {
		t.Errorf("expected 2 pruned snapshots, got %d", pruned)
	}

	latest, err := repo.Latest("lamp")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Brightness != 40 {
		t.Errorf("expected newest snapshot to survive pruning, got %+v", latest)
	}
}

func TestSnapshotRepository_CascadeDelete(t *testing.T) {
	s := newTestStore(t)
	s.Devices().Upsert(&DeviceRecord{ID: "lamp", Name: "lamp", Kind: "light", Addr: "192.168.1.40"})
	s.Snapshots().Record(&Snapshot{DeviceID: "lamp", Brightness: 50})

	if err := s.Devices().Delete("lamp"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Snapshots().Latest("lamp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected snapshots to cascade, got %v", err)
	}
}

func TestCommandLogRepository_AppendAndRecent(t *testing.T) {
	s := newTestStore(t)
	repo := s.CommandLog()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		entry := &CommandEntry{
			ID:        fmt.Sprintf("entry-%d", i),
			BatchID:   "batch-1",
			DeviceID:  "lamp",
			Action:    "brightness_delta",
			Delta:     20,
			OK:        true,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if i == 1 {
			entry.OK = false
			entry.Reason = "device timeout"
		}
		if err := repo.Append(entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, err := repo.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected limit to cap results at 2, got %d", len(entries))
	}
	if entries[0].ID != "entry-2" {
		t.Errorf("expected most recent entry first, got %q", entries[0].ID)
	}
	if entries[1].OK || entries[1].Reason != "device timeout" {
		t.Errorf("expected failed entry round-tripped, got %+v", entries[1])
	}
}

func TestStore_Settings(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetSetting("theme"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unset key, got %v", err)
	}

	if err := s.SetSetting("theme", "dark"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting("theme", "light"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	value, err := s.GetSetting("theme")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if value != "light" {
		t.Errorf("expected last write to win, got %q", value)
	}
}
