package device

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// StatusCache holds the last known state of every configured device and
// serves reads without a network call while the entry is fresh.
//
// Each device has its own entry with its own lock, so a slow refresh of one
// device never blocks lookups of another. Calls to the same device (refresh
// or command) are serialized through the entry lock to avoid overlapping
// in-flight requests against one device.
type StatusCache struct {
	staleness    time.Duration
	probeTimeout time.Duration

	mu      sync.RWMutex
	entries map[string]*entry

	hits   atomic.Uint64
	misses atomic.Uint64

	group singleflight.Group
}

// entry pairs a device with its controller and cached status.
//
// opMu serializes network operations (probes and commands) against the
// device. mu guards the cached fields and is only held briefly, so reads of
// a record stay non-blocking even while an operation is in flight.
type entry struct {
	opMu sync.Mutex

	mu            sync.Mutex
	device        Device
	ctrl          Controller
	state         State
	online        bool
	lastRefreshed time.Time
}

// Stats holds the cache's observability counters.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// ErrUnknownDevice is returned for lookups of a device that was never registered.
var ErrUnknownDevice = fmt.Errorf("unknown device")

// NewStatusCache creates a StatusCache with the given staleness threshold
// and per-device probe timeout.
func NewStatusCache(staleness, probeTimeout time.Duration) *StatusCache {
	return &StatusCache{
		staleness:    staleness,
		probeTimeout: probeTimeout,
		entries:      make(map[string]*entry),
	}
}

// Register adds a device and its controller to the cache. Devices are
// registered once at startup and never removed during a run.
func (c *StatusCache) Register(d Device, ctrl Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[d.ID] = &entry{
		device: d,
		ctrl:   ctrl,
	}
}

// Devices returns the registered devices in no particular order.
func (c *StatusCache) Devices() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	devices := make([]Device, 0, len(c.entries))
	for _, e := range c.entries {
		devices = append(devices, e.device)
	}
	return devices
}

// Get returns the device's last known state and online flag. If the cached
// entry is fresher than the staleness threshold, no network call is made and
// the hit counter increments. Otherwise a refresh is performed first; a
// concurrent stale read of the same device joins the in-flight refresh
// instead of issuing a second probe.
func (c *StatusCache) Get(ctx context.Context, id string) (Status, error) {
	e, ok := c.entry(id)
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	e.mu.Lock()
	fresh := !e.lastRefreshed.IsZero() && time.Since(e.lastRefreshed) < c.staleness
	status := e.status()
	e.mu.Unlock()

	if fresh {
		c.hits.Add(1)
		CacheHits.Inc()
		return status, nil
	}

	c.misses.Add(1)
	CacheMisses.Inc()

	// Collapse concurrent refreshes of the same device into one probe.
	c.group.Do(id, func() (interface{}, error) {
		c.refreshEntry(ctx, e)
		return nil, nil
	})

	e.mu.Lock()
	status = e.status()
	e.mu.Unlock()
	return status, nil
}

// Peek returns the cached status without ever triggering a refresh.
func (c *StatusCache) Peek(id string) (Status, error) {
	e, ok := c.entry(id)
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status(), nil
}

// All returns the cached status of every registered device, keyed by device ID.
// Like Peek, it never triggers a refresh.
func (c *StatusCache) All() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statuses := make(map[string]Status, len(c.entries))
	for id, e := range c.entries {
		e.mu.Lock()
		statuses[id] = e.status()
		e.mu.Unlock()
	}
	return statuses
}

// RefreshAll probes every registered device concurrently and updates each
// record independently. A failed probe marks only that device offline and
// leaves its last good state intact.
func (c *StatusCache) RefreshAll(ctx context.Context) {
	c.mu.RLock()
	entries := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	var g errgroup.Group
	for _, e := range entries {
		e := e
		g.Go(func() error {
			c.refreshEntry(ctx, e)
			return nil
		})
	}
	g.Wait()

	c.updateOnlineGauge()
}

// Stats returns the current hit/miss counters.
func (c *StatusCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

func (c *StatusCache) entry(id string) (*entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// refreshEntry probes one device and updates its record. On any failure,
// including cancellation, the previous state survives; only the online flag
// and refresh timestamp change on success.
func (c *StatusCache) refreshEntry(ctx context.Context, e *entry) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	state, err := e.ctrl.GetState(probeCtx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.online = false
		RefreshesTotal.WithLabelValues("error").Inc()
		log.Printf("Refresh failed for %s: %v", e.device.ID, err)
		return
	}

	e.state = state
	e.online = true
	e.lastRefreshed = time.Now()
	RefreshesTotal.WithLabelValues("ok").Inc()
}

func (c *StatusCache) updateOnlineGauge() {
	var online int
	for _, s := range c.All() {
		if s.Online {
			online++
		}
	}
	DevicesOnline.Set(float64(online))
}

// status builds a Status snapshot. Caller must hold e.mu.
func (e *entry) status() Status {
	return Status{
		State:         e.state,
		Online:        e.online,
		LastRefreshed: e.lastRefreshed,
	}
}
