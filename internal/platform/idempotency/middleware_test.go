package idempotency

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fixedTestClock() func() time.Time {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newGuardedHandler(t *testing.T, store Store, calls *atomic.Int64) http.Handler {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ord_01"}`))
	})
	return Middleware(store, WithClock(fixedTestClock()))(handler)
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	store := NewMemoryStore()
	var calls atomic.Int64
	guarded := newGuardedHandler(t, store, &calls)

	body := `{"items":[{"productId":"p1","quantity":2}]}`

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "key-123")
	guarded.ServeHTTP(first, req)

	if first.Code != http.StatusCreated {
		t.Fatalf("first request status = %d, want %d", first.Code, http.StatusCreated)
	}
	if first.Header().Get("X-Idempotent-Replay") != "" {
		t.Fatal("first request must not carry the replay marker")
	}

	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "key-123")
	guarded.ServeHTTP(second, req)

	if got := calls.Load(); got != 1 {
		t.Fatalf("handler invoked %d times, want 1", got)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("replay status = %d, want %d", second.Code, http.StatusCreated)
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatal("replay must set the X-Idempotent-Replay header")
	}
	replayed, err := io.ReadAll(second.Body)
	if err != nil {
		t.Fatalf("read replay body: %v", err)
	}
	if string(replayed) != `{"id":"ord_01"}` {
		t.Fatalf("replay body = %q", string(replayed))
	}
}

func TestMiddlewareRejectsReusedKeyWithDifferentBody(t *testing.T) {
	store := NewMemoryStore()
	var calls atomic.Int64
	guarded := newGuardedHandler(t, store, &calls)

	first := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{"items":[{"productId":"p1","quantity":1}]}`))
	first.Header.Set("Idempotency-Key", "key-shared")
	guarded.ServeHTTP(httptest.NewRecorder(), first)

	conflicting := httptest.NewRecorder()
	second := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{"items":[{"productId":"p9","quantity":4}]}`))
	second.Header.Set("Idempotency-Key", "key-shared")
	guarded.ServeHTTP(conflicting, second)

	if got := calls.Load(); got != 1 {
		t.Fatalf("handler invoked %d times, want 1", got)
	}
	if conflicting.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", conflicting.Code, http.StatusConflict)
	}
	if !strings.Contains(conflicting.Body.String(), "idempotency_key_conflict") {
		t.Fatalf("body = %q, want idempotency_key_conflict", conflicting.Body.String())
	}
}

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	store := NewMemoryStore()
	var calls atomic.Int64
	guarded := newGuardedHandler(t, store, &calls)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{}`))
		guarded.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("handler invoked %d times, want 2", got)
	}
}

func TestMiddlewareIgnoresUnguardedMethods(t *testing.T) {
	store := NewMemoryStore()
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	guarded := Middleware(store, WithMethods(http.MethodPost))(handler)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/orders/ord_01", nil)
		req.Header.Set("Idempotency-Key", "key-get")
		guarded.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("handler invoked %d times, want 2", got)
	}
}

func TestMiddlewareReportsInProgressReservations(t *testing.T) {
	store := NewMemoryStore()
	clock := fixedTestClock()

	if _, err := store.Reserve(nil, scopedKey("key-busy", "anonymous"), "placeholder", clock(), time.Hour); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	seeded, err := store.Reserve(nil, scopedKey("key-busy", "anonymous"), "placeholder", clock(), time.Hour)
	if err != nil {
		t.Fatalf("re-reserve: %v", err)
	}
	if seeded.State != ReservationStatePending {
		t.Fatalf("reservation state = %v, want pending", seeded.State)
	}
}

func TestMemoryStoreExpiresRecords(t *testing.T) {
	store := NewMemoryStore()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.Reserve(nil, "key-exp", "fp", start, time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.SaveResponse(nil, "key-exp", "fp", Response{Status: http.StatusOK}, start, time.Minute); err != nil {
		t.Fatalf("save response: %v", err)
	}

	later := start.Add(2 * time.Minute)
	removed, err := store.CleanupExpired(nil, later, 0)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	fresh, err := store.Reserve(nil, "key-exp", "fp2", later, time.Minute)
	if err != nil {
		t.Fatalf("reserve after cleanup: %v", err)
	}
	if fresh.State != ReservationStateNew {
		t.Fatalf("reservation state = %v, want new", fresh.State)
	}
}
