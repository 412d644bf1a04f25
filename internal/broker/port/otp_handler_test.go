package port

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/aelexs/sms-otp/internal/errmap"
	"github.com/aelexs/sms-otp/pkg/otpclient"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ---------------------------------------------------------------------------
// Stub: implements otpClient for unit tests.
// ---------------------------------------------------------------------------

type stubClient struct {
	getPhoneFn    func(ctx context.Context) (string, error)
	getOTPFn      func(ctx context.Context, phone string, timeout time.Duration) (string, error)
	getPhoneAndFn func(ctx context.Context, timeout time.Duration) (otpclient.Result, error)
}

func (s *stubClient) GetPhoneNumber(ctx context.Context) (string, error) {
	return s.getPhoneFn(ctx)
}

func (s *stubClient) GetOTPCode(ctx context.Context, phone string, timeout time.Duration) (string, error) {
	return s.getOTPFn(ctx, phone, timeout)
}

func (s *stubClient) GetPhoneNumberAndOTPCode(ctx context.Context, timeout time.Duration) (otpclient.Result, error) {
	return s.getPhoneAndFn(ctx, timeout)
}

var _ otpClient = (*stubClient)(nil)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestMux(stub *stubClient) *http.ServeMux {
	mux := http.NewServeMux()
	NewOTPHandler(stub, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestOTPHandler_PhoneNumber(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mux := newTestMux(&stubClient{
			getPhoneFn: func(context.Context) (string, error) { return "+15550001111", nil },
		})

		rec, body := do(t, mux, http.MethodPost, "/v1/phone-number")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "+15550001111", body["phone_number"])
	})

	t.Run("provider error maps to 502", func(t *testing.T) {
		mux := newTestMux(&stubClient{
			getPhoneFn: func(context.Context) (string, error) {
				return "", domain.NewProviderError("mailslurp", "create phone number", errors.New("plan limit"))
			},
		})

		rec, body := do(t, mux, http.MethodPost, "/v1/phone-number")

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "PROVIDER", body["code"])
		assert.Contains(t, body["message"], "plan limit")
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestMux(&stubClient{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/phone-number", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestOTPHandler_OTP(t *testing.T) {
	t.Run("success - passes phone and timeout through", func(t *testing.T) {
		mux := newTestMux(&stubClient{
			getOTPFn: func(_ context.Context, phone string, timeout time.Duration) (string, error) {
				assert.Equal(t, "+15550001111", phone)
				assert.Equal(t, 1500*time.Millisecond, timeout)
				return "123456", nil
			},
		})

		rec, body := do(t, mux, http.MethodGet, "/v1/otp?phone_number=%2B15550001111&timeout_ms=1500")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "123456", body["otp_code"])
	})

	t.Run("success - omitted phone uses the session number", func(t *testing.T) {
		mux := newTestMux(&stubClient{
			getOTPFn: func(_ context.Context, phone string, timeout time.Duration) (string, error) {
				assert.Empty(t, phone)
				assert.Zero(t, timeout)
				return "9999", nil
			},
		})

		rec, _ := do(t, mux, http.MethodGet, "/v1/otp")

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("timeout is capped", func(t *testing.T) {
		mux := newTestMux(&stubClient{
			getOTPFn: func(_ context.Context, _ string, timeout time.Duration) (string, error) {
				assert.Equal(t, domain.MaxWaitTimeout, timeout)
				return "9999", nil
			},
		})

		rec, _ := do(t, mux, http.MethodGet, "/v1/otp?timeout_ms=999999999")

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid phone is 400 without calling the client", func(t *testing.T) {
		mux := newTestMux(&stubClient{})

		rec, body := do(t, mux, http.MethodGet, "/v1/otp?phone_number=12345")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_PHONE_NUMBER", body["code"])
	})

	t.Run("invalid timeout is 400", func(t *testing.T) {
		mux := newTestMux(&stubClient{})

		rec, body := do(t, mux, http.MethodGet, "/v1/otp?timeout_ms=-5")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "CONFIGURATION", body["code"])
	})

	t.Run("no session number is 400", func(t *testing.T) {
		mux := newTestMux(&stubClient{
			getOTPFn: func(context.Context, string, time.Duration) (string, error) {
				return "", domain.ErrNoPhoneNumber
			},
		})

		rec, body := do(t, mux, http.MethodGet, "/v1/otp")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "NO_PHONE_NUMBER", body["code"])
	})

	t.Run("timeout maps to 504", func(t *testing.T) {
		mux := newTestMux(&stubClient{
			getOTPFn: func(context.Context, string, time.Duration) (string, error) {
				return "", &domain.TimeoutError{Timeout: 2 * time.Second}
			},
		})

		rec, body := do(t, mux, http.MethodGet, "/v1/otp?timeout_ms=2000")

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		assert.Equal(t, "TIMEOUT", body["code"])
		assert.Contains(t, body["message"], "2000ms")
	})

	t.Run("caller going away is 499 logged at warn", func(t *testing.T) {
		var logs bytes.Buffer
		mux := http.NewServeMux()
		NewOTPHandler(&stubClient{
			getOTPFn: func(context.Context, string, time.Duration) (string, error) {
				return "", fmt.Errorf("poll: %w", context.Canceled)
			},
		}, slog.New(slog.NewTextHandler(&logs, nil))).Register(mux)

		rec, body := do(t, mux, http.MethodGet, "/v1/otp?timeout_ms=2000")

		assert.Equal(t, errmap.StatusClientClosedRequest, rec.Code)
		assert.Equal(t, "CANCELLED", body["code"])
		assert.Contains(t, logs.String(), "level=WARN")
		assert.NotContains(t, logs.String(), "level=ERROR")
	})
}

func TestOTPHandler_PhoneNumberAndOTP(t *testing.T) {
	mux := newTestMux(&stubClient{
		getPhoneAndFn: func(_ context.Context, timeout time.Duration) (otpclient.Result, error) {
			assert.Equal(t, 10*time.Second, timeout)
			return otpclient.Result{PhoneNumber: "+15550001111", OTPCode: "4321"}, nil
		},
	})

	rec, body := do(t, mux, http.MethodPost, "/v1/phone-number-and-otp?timeout_ms=10000")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "+15550001111", body["phone_number"])
	assert.Equal(t, "4321", body["otp_code"])
}

func TestOTPHandler_SerializesCalls(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	release := make(chan struct{})
	entered := make(chan struct{}, 2)

	mux := newTestMux(&stubClient{
		getOTPFn: func(context.Context, string, time.Duration) (string, error) {
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			entered <- struct{}{}
			<-release
			inFlight.Add(-1)
			return "1234", nil
		},
	})

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/otp", nil))
			codes[i] = rec.Code
		}()
	}

	<-entered
	select {
	case <-entered:
		t.Fatal("second call entered while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)
}

func TestOTPHandler_CancelledWhileQueued(t *testing.T) {
	h := NewOTPHandler(&stubClient{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.sem <- struct{}{} // another call holds the client

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	h.OTP(rec, httptest.NewRequest(http.MethodGet, "/v1/otp", nil).WithContext(ctx))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}
