package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCronAuth_ValidTokenPasses(t *testing.T) {
	called := false
	handler := CronAuth("secret-token", testLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cron/expire-holds", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !called {
		t.Error("handler must run with a valid token")
	}
}

func TestCronAuth_RejectsBadCredentials(t *testing.T) {
	cases := []struct {
		name   string
		header string
	}{
		{"wrong token", "Bearer wrong"},
		{"missing bearer prefix", "secret-token"},
		{"empty header", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := CronAuth("secret-token", testLogger())(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					t.Error("handler must not run")
				}),
			)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/cron/expire-holds", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestCronAuth_UnconfiguredTokenDisablesEndpoint(t *testing.T) {
	handler := CronAuth("", testLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler must not run without a configured token")
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cron/expire-holds", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with no token configured, got %d", rec.Code)
	}
}
