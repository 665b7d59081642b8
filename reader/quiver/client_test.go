package quiver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"congressflow/config"
)

func testConfig(baseURL string) *config.Config {
	cfg := &config.Config{}
	cfg.Quiver.BaseURL = baseURL
	cfg.Quiver.Token = "test-token"
	cfg.Quiver.Timeout = 5 * time.Second
	cfg.Quiver.RateLimit.Requests = 1000
	cfg.Quiver.RateLimit.Window = time.Second
	cfg.Quiver.RateLimit.Burst = 1000
	cfg.Quiver.Retry.MaxAttempts = 5
	cfg.Quiver.Retry.BaseDelay = time.Second
	cfg.Quiver.Retry.BackoffMultiplier = 1
	return cfg
}

// newTestClient returns a client whose backoff sleeps are recorded
// instead of slept.
func newTestClient(cfg *config.Config) (*Client, *[]time.Duration) {
	c := NewClient(cfg)
	sleeps := &[]time.Duration{}
	c.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	return c, sleeps
}

func TestGetAttachesHeaders(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, _ := newTestClient(testConfig(srv.URL))
	if _, err := c.Get(context.Background(), "companies"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("unexpected Authorization header: %q", gotAuth)
	}
	if gotAccept != "application/json" {
		t.Errorf("unexpected Accept header: %q", gotAccept)
	}
}

func TestGetNotFoundIsNoDataWithoutRetry(t *testing.T) {
	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, sleeps := newTestClient(testConfig(srv.URL))
	_, err := c.Get(context.Background(), "historical/congresstrading/NONE")
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if n := atomic.LoadInt64(&requests); n != 1 {
		t.Errorf("expected exactly 1 request, got %d", n)
	}
	if len(*sleeps) != 0 {
		t.Errorf("expected no backoff sleeps, got %d", len(*sleeps))
	}
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&requests, 1)
		if n <= 4 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"Ticker":"CVS"}]`))
	}))
	defer srv.Close()

	c, sleeps := newTestClient(testConfig(srv.URL))
	body, err := c.Get(context.Background(), "bulk/congresstrading")
	if err != nil {
		t.Fatalf("expected success on 5th attempt, got %v", err)
	}
	if len(body) == 0 {
		t.Error("expected payload body")
	}
	if len(*sleeps) != 4 {
		t.Errorf("expected exactly 4 backoff sleeps, got %d", len(*sleeps))
	}
	for _, d := range *sleeps {
		if d != time.Second {
			t.Errorf("expected fixed 1s backoff, got %v", d)
		}
	}
}

func TestGetExhaustsRetries(t *testing.T) {
	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, sleeps := newTestClient(testConfig(srv.URL))
	if _, err := c.Get(context.Background(), "companies"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if n := atomic.LoadInt64(&requests); n != 5 {
		t.Errorf("expected 5 attempts, got %d", n)
	}
	// No sleep after the final attempt.
	if len(*sleeps) != 4 {
		t.Errorf("expected 4 backoff sleeps, got %d", len(*sleeps))
	}
}

func TestGetUnauthorizedRedirectReplay(t *testing.T) {
	var redirectAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/companies", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/redirected")
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/redirected", func(w http.ResponseWriter, r *http.Request) {
		redirectAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[{"Ticker":"A"}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, sleeps := newTestClient(testConfig(srv.URL))
	body, err := c.Get(context.Background(), "companies")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(body) == 0 {
		t.Error("expected payload from redirect target")
	}
	if redirectAuth != "Bearer test-token" {
		t.Errorf("credentials not replayed on redirect: %q", redirectAuth)
	}
	if len(*sleeps) != 0 {
		t.Errorf("redirect replay should not back off, got %d sleeps", len(*sleeps))
	}
}

func TestGetUnauthorizedTwiceSurfaces(t *testing.T) {
	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		w.Header().Set("Location", "/redirected")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := newTestClient(testConfig(srv.URL))
	if _, err := c.Get(context.Background(), "companies"); err == nil {
		t.Fatal("expected error when the replay is unauthorized again")
	}
	if n := atomic.LoadInt64(&requests); n != 2 {
		t.Errorf("expected original request plus one replay, got %d", n)
	}
}

func TestCongressTradingDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/historical/congresstrading/CVS" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`[{"Ticker":"CVS","Representative":"Gardner, Cory","Transaction":"Sale (Full)"}]`))
	}))
	defer srv.Close()

	c, _ := newTestClient(testConfig(srv.URL))
	rows, err := c.CongressTrading(context.Background(), "CVS")
	if err != nil {
		t.Fatalf("CongressTrading failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Representative != "Gardner, Cory" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestCompaniesNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newTestClient(testConfig(srv.URL))
	companies, err := c.Companies(context.Background())
	if err != nil {
		t.Fatalf("Companies failed: %v", err)
	}
	if companies != nil {
		t.Errorf("expected nil directory, got %v", companies)
	}
}
