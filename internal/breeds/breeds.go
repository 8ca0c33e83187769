// Package breeds validates agent breeds against an external catalog.
package breeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnknownBreed means the catalog was fetched but does not
	// contain the candidate name.
	ErrUnknownBreed = errors.New("breed not recognized")
	// ErrUnavailable means the catalog could not be fetched.
	ErrUnavailable = errors.New("breed validation unavailable")
)

// Validator confirms a breed name is recognized.
type Validator interface {
	Validate(ctx context.Context, breed string) error
}

// CatalogClient validates against a remote breed catalog. Every call
// fetches the catalog anew; there is no cache and no retry, each
// validation is at most one attempt.
type CatalogClient struct {
	URL        string
	HTTPClient *http.Client
}

// NewCatalogClient builds a client for the given catalog URL. A zero
// timeout keeps the transport default.
func NewCatalogClient(url string, timeout time.Duration) *CatalogClient {
	return &CatalogClient{
		URL:        url,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type catalogEntry struct {
	Name string `json:"name"`
}

// Validate fetches the catalog and compares case-insensitively.
func (c *CatalogClient) Validate(ctx context.Context, breed string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: catalog returned status %d", ErrUnavailable, resp.StatusCode)
	}
	var entries []catalogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return fmt.Errorf("%w: decode catalog: %v", ErrUnavailable, err)
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name, breed) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownBreed, breed)
}
