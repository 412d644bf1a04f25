// Package providertest provides an in-memory provider.Provider for tests.
package providertest

import (
	"context"
	"sync"
	"time"

	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/aelexs/sms-otp/internal/provider"
)

// Fake records every call and returns scripted results. Codes are handed out
// in order, one per successful wait; once exhausted, waits time out.
type Fake struct {
	PhoneNumber string
	Codes       []string

	InitErr    error
	CleanupErr error
	PhoneErr   error
	WaitErr    error

	mu           sync.Mutex
	calls        []string
	waitPhones   []string
	waitTimeouts []time.Duration
	initialized  bool
}

// Initialize records the call and returns InitErr.
func (f *Fake) Initialize(_ context.Context) error {
	f.record("Initialize")
	if f.InitErr != nil {
		return f.InitErr
	}
	f.mu.Lock()
	f.initialized = true
	f.mu.Unlock()
	return nil
}

// Cleanup records the call and returns CleanupErr.
func (f *Fake) Cleanup(_ context.Context) error {
	f.record("Cleanup")
	f.mu.Lock()
	f.initialized = false
	f.mu.Unlock()
	return f.CleanupErr
}

// GetPhoneNumber returns PhoneNumber or PhoneErr.
func (f *Fake) GetPhoneNumber(_ context.Context) (string, error) {
	f.record("GetPhoneNumber")
	if f.PhoneErr != nil {
		return "", f.PhoneErr
	}
	return f.PhoneNumber, nil
}

// WaitForOTPCode returns the next scripted code, WaitErr, or a timeout
// carrying the effective budget.
func (f *Fake) WaitForOTPCode(ctx context.Context, phoneNumber string, timeout time.Duration) (string, error) {
	f.record("WaitForOTPCode")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitPhones = append(f.waitPhones, phoneNumber)
	f.waitTimeouts = append(f.waitTimeouts, timeout)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.WaitErr != nil {
		return "", f.WaitErr
	}
	if len(f.Codes) == 0 {
		return "", &domain.TimeoutError{Timeout: domain.TimeoutOrDefault(timeout)}
	}
	code := f.Codes[0]
	f.Codes = f.Codes[1:]
	return code, nil
}

// Calls returns the method names invoked, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// WaitPhones returns the phone number passed to each wait.
func (f *Fake) WaitPhones() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.waitPhones...)
}

// WaitTimeouts returns the timeout passed to each wait.
func (f *Fake) WaitTimeouts() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.waitTimeouts...)
}

// Initialized reports whether Initialize succeeded more recently than Cleanup.
func (f *Fake) Initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized
}

func (f *Fake) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

var _ provider.Provider = (*Fake)(nil)
