package breeds_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clowder/internal/breeds"
)

func newCatalog(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidateRecognizedBreed(t *testing.T) {
	srv := newCatalog(t, http.StatusOK, `[{"name":"Persian"},{"name":"Maine Coon"}]`)
	c := breeds.NewCatalogClient(srv.URL, time.Second)

	if err := c.Validate(context.Background(), "Persian"); err != nil {
		t.Fatalf("exact match: %v", err)
	}
	// matching is case-insensitive
	if err := c.Validate(context.Background(), "maine coon"); err != nil {
		t.Fatalf("case-insensitive match: %v", err)
	}
}

func TestValidateUnknownBreed(t *testing.T) {
	srv := newCatalog(t, http.StatusOK, `[{"name":"Persian"}]`)
	c := breeds.NewCatalogClient(srv.URL, time.Second)

	err := c.Validate(context.Background(), "Chupacabra")
	if !errors.Is(err, breeds.ErrUnknownBreed) {
		t.Fatalf("expected unknown breed, got %v", err)
	}
}

func TestValidateCatalogFailures(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		srv := newCatalog(t, http.StatusInternalServerError, "")
		c := breeds.NewCatalogClient(srv.URL, time.Second)
		if err := c.Validate(context.Background(), "Persian"); !errors.Is(err, breeds.ErrUnavailable) {
			t.Fatalf("expected unavailable, got %v", err)
		}
	})
	t.Run("bad payload", func(t *testing.T) {
		srv := newCatalog(t, http.StatusOK, `{"not":"a list"}`)
		c := breeds.NewCatalogClient(srv.URL, time.Second)
		if err := c.Validate(context.Background(), "Persian"); !errors.Is(err, breeds.ErrUnavailable) {
			t.Fatalf("expected unavailable, got %v", err)
		}
	})
	t.Run("unreachable", func(t *testing.T) {
		c := breeds.NewCatalogClient("http://127.0.0.1:1/breeds", 200*time.Millisecond)
		if err := c.Validate(context.Background(), "Persian"); !errors.Is(err, breeds.ErrUnavailable) {
			t.Fatalf("expected unavailable, got %v", err)
		}
	})
}
