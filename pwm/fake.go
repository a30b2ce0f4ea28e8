package pwm

import (
	"context"
	"sync"
)

// Write is one Configure call recorded by a Fake.
type Write struct {
	DutyNs   uint32
	PeriodNs uint32
}

// Fake is an in-memory PWM output. It records every write and can be told to fail.
type Fake struct {
	mu      sync.Mutex
	enabled bool
	closed  bool
	writes  []Write
	// writes made while the output was off
	disabledWrites int

	ConfigureErr error
	EnableErr    error
	DisableErr   error
}

// NewFake returns a disabled fake output.
func NewFake() *Fake {
	return &Fake{}
}

// Configure records the write, or returns ConfigureErr.
func (f *Fake) Configure(ctx context.Context, dutyNs, periodNs uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConfigureErr != nil {
		return f.ConfigureErr
	}
	if !f.enabled {
		f.disabledWrites++
	}
	f.writes = append(f.writes, Write{DutyNs: dutyNs, PeriodNs: periodNs})
	return nil
}

// Enable switches the fake output on, or returns EnableErr.
func (f *Fake) Enable(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EnableErr != nil {
		return f.EnableErr
	}
	f.enabled = true
	return nil
}

// Disable switches the fake output off, or returns DisableErr.
func (f *Fake) Disable(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DisableErr != nil {
		return f.DisableErr
	}
	f.enabled = false
	return nil
}

// Close marks the fake as released.
func (f *Fake) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// SetConfigureErr changes the Configure failure while other goroutines may be writing.
func (f *Fake) SetConfigureErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConfigureErr = err
}

// Enabled reports whether the output is on.
func (f *Fake) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// DisabledWrites returns how many writes arrived while the output was off.
func (f *Fake) DisabledWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disabledWrites
}

// Writes returns a copy of every recorded write.
func (f *Fake) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// LastWrite returns the most recent write and whether there was one.
func (f *Fake) LastWrite() (Write, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return Write{}, false
	}
	return f.writes[len(f.writes)-1], true
}
