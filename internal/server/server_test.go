package server_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aelexs/sms-otp/internal/config"
	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/aelexs/sms-otp/internal/server"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testParams(t *testing.T) server.Params {
	t.Helper()
	t.Setenv("MAILSLURP_API_KEY", "test-key")
	return server.Params{
		Name:           "testservice",
		PortFromConfig: func(_ *config.Config) int { return 0 },
	}
}

func TestRunGracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := testParams(t)
	ln := newTestListener(t)
	addr := ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, p, ln)
	}()

	waitForHealthy(t, addr)

	// Trigger shutdown
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(domain.GracefulShutdownTimeout + 5*time.Second):
		t.Fatal("shutdown did not complete within budget")
	}
}

func TestRunShutdownCompletesWithinBudget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := testParams(t)
	ln := newTestListener(t)
	addr := ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, p, ln)
	}()

	waitForHealthy(t, addr)

	start := time.Now()
	cancel()

	select {
	case <-errCh:
		elapsed := time.Since(start)
		if elapsed > domain.GracefulShutdownTimeout {
			t.Errorf("shutdown took %v, exceeds %v budget", elapsed, domain.GracefulShutdownTimeout)
		}
	case <-time.After(domain.GracefulShutdownTimeout + 5*time.Second):
		t.Fatal("shutdown timed out")
	}
}

func TestHealthCheckReturns503DuringShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := testParams(t)
	ln := newTestListener(t)
	addr := ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, p, ln)
	}()

	waitForHealthy(t, addr)

	// Trigger shutdown
	cancel()

	// Health check should return 503 during drain delay (before server stops).
	eventually(t, 2*time.Second, func() bool {
		resp, err := httpGet(t, fmt.Sprintf("http://%s/healthz", addr))
		if err != nil {
			return false // server may have already stopped
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusServiceUnavailable
	})

	<-errCh // wait for clean exit
}

func TestRunSetupRoutesAndCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var (
		cleaned       atomic.Bool
		cleanupBudget atomic.Int64
	)
	p := testParams(t)
	p.Setup = func(_ context.Context, deps server.SetupDeps) (server.CleanupFunc, error) {
		require.NotNil(t, deps.Config)
		require.NotNil(t, deps.Logger)
		deps.Mux.HandleFunc("GET /ping", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "pong")
		})
		return func(ctx context.Context) error {
			if deadline, ok := ctx.Deadline(); ok {
				cleanupBudget.Store(int64(time.Until(deadline)))
			}
			cleaned.Store(true)
			return nil
		}, nil
	}
	ln := newTestListener(t)
	addr := ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, p, ln)
	}()

	waitForHealthy(t, addr)

	resp, err := httpGet(t, fmt.Sprintf("http://%s/ping", addr))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	cancel()
	require.NoError(t, <-errCh)
	assert.True(t, cleaned.Load(), "cleanup runs after the server drains")
	budget := time.Duration(cleanupBudget.Load())
	assert.Greater(t, budget, domain.ShutdownHTTPTimeout, "cleanup gets the rest of the graceful budget")
	assert.LessOrEqual(t, budget, domain.GracefulShutdownTimeout-domain.ShutdownOTELTimeout)
}

func TestRunSetupError(t *testing.T) {
	p := testParams(t)
	boom := errors.New("boom")
	p.Setup = func(context.Context, server.SetupDeps) (server.CleanupFunc, error) {
		return nil, boom
	}
	ln := newTestListener(t)
	defer ln.Close()

	err := server.Run(context.Background(), p, ln)

	assert.ErrorIs(t, err, boom)
}

func TestRunConfigError(t *testing.T) {
	t.Setenv("OTP_PROVIDER", "fax")
	ln := newTestListener(t)
	defer ln.Close()

	err := server.Run(context.Background(), server.Params{Name: "testservice"}, ln)

	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)
}

// newTestListener creates a TCP listener on an OS-assigned port.
func newTestListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create test listener: %v", err)
	}
	return ln
}

// waitForHealthy polls the health endpoint until it returns 200.
func waitForHealthy(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := httpGet(t, fmt.Sprintf("http://%s/healthz", addr))
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server at %s not healthy within 5s", addr)
}

// httpGet performs an HTTP GET with a background context (satisfies noctx linter).
func httpGet(t *testing.T, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}

// eventually retries f until it returns true or timeout expires.
func eventually(t *testing.T, timeout time.Duration, f func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
