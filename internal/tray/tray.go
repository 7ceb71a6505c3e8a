// Package tray provides the system tray interface for Handwave.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle  func(enabled bool)
	onRefresh func()
	onQuit    func()
	enabled   bool
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuToggle      *systray.MenuItem
	menuLastGesture *systray.MenuItem
	menuDevices     *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
	}
}

// OnToggle sets the callback function to be called when gesture control is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnRefresh sets the callback function to be called when the refresh menu item is clicked.
func (t *Tray) OnRefresh(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRefresh = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Handwave")
	systray.SetTooltip("Handwave Gesture Lighting Control")

	t.menuToggle = systray.AddMenuItem("● Gestures enabled", "Toggle gesture control")
	systray.AddSeparator()

	t.menuLastGesture = systray.AddMenuItem("Last: none", "Last accepted gesture")
	t.menuLastGesture.Disable()

	t.menuDevices = systray.AddMenuItem("Devices: -", "Online device count")
	t.menuDevices.Disable()
	systray.AddSeparator()

	menuRefresh := systray.AddMenuItem("Refresh devices", "Probe all devices now")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Handwave")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuRefresh.ClickedCh:
				t.handleRefresh()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {
	// Cleanup resources if needed
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled

	if enabled {
		t.menuToggle.SetTitle("● Gestures enabled")
	} else {
		t.menuToggle.SetTitle("○ Gestures disabled")
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handleRefresh handles the refresh menu item click.
func (t *Tray) handleRefresh() {
	t.mu.RLock()
	callback := t.onRefresh
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetLastGesture updates the last gesture display in the menu.
func (t *Tray) SetLastGesture(name string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLastGesture != nil {
		if name == "" {
			t.menuLastGesture.SetTitle("Last: none")
		} else {
			t.menuLastGesture.SetTitle("Last: " + name)
		}
	}
}

// SetDeviceCounts updates the online device count display.
func (t *Tray) SetDeviceCounts(online, total int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuDevices != nil {
		t.menuDevices.SetTitle(fmt.Sprintf("Devices: %d/%d online", online, total))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}
