package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blockvenue/escrowd/internal/auth"
)

func TestAuthenticate(t *testing.T) {
	tokens := auth.NewManager("test-secret", time.Hour)

	var gotCaller string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller = Caller(r)
		w.WriteHeader(http.StatusOK)
	})
	protected := Authenticate(tokens)(next)

	t.Run("valid token", func(t *testing.T) {
		tok, err := tokens.GenerateToken("alice")
		if err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest(http.MethodPost, "/events", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if gotCaller != "alice" {
			t.Fatalf("caller = %q, want alice", gotCaller)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/events", nil)
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/events", nil)
		req.Header.Set("Authorization", "Basic c2VjcmV0")
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		stale := auth.NewManager("test-secret", -time.Minute)
		tok, err := stale.GenerateToken("alice")
		if err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest(http.MethodPost, "/events", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})
}

func TestCallerWithoutAuthContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	if got := Caller(req); got != "" {
		t.Fatalf("caller = %q, want empty", got)
	}
}
