package device

import (
	"context"
	"sync"
)

// MockController is a test implementation of the Controller interface.
// It records issued commands and lets tests control the returned state
// and errors.
type MockController struct {
	mu    sync.Mutex
	state State
	err   error

	// Calls records the method invocations in order, e.g. "set_power on".
	Calls []string
}

// NewMockController creates a MockController with the given initial state.
func NewMockController(state State) *MockController {
	return &MockController{state: state}
}

// SetError sets the error returned by every subsequent call.
func (m *MockController) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// State returns the mock's current state.
func (m *MockController) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// GetState returns the configured state or error.
func (m *MockController) GetState(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "get_state")
	if m.err != nil {
		return State{}, m.err
	}
	return m.state, nil
}

// SetPower records the call and updates the mock state.
func (m *MockController) SetPower(ctx context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on {
		m.Calls = append(m.Calls, "set_power on")
	} else {
		m.Calls = append(m.Calls, "set_power off")
	}
	if m.err != nil {
		return m.err
	}
	m.state.Power = on
	return nil
}

// SetBrightness records the call and updates the mock state.
func (m *MockController) SetBrightness(ctx context.Context, level int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "set_bright")
	if m.err != nil {
		return m.err
	}
	m.state.Brightness = level
	return nil
}

// SetColorTemp records the call and updates the mock state.
func (m *MockController) SetColorTemp(ctx context.Context, kelvin int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "set_ct_abx")
	if m.err != nil {
		return m.err
	}
	m.state.ColorTemp = kelvin
	return nil
}

// CallCount returns how many calls of the given kind were recorded.
func (m *MockController) CallCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, c := range m.Calls {
		if c == kind {
			n++
		}
	}
	return n
}
