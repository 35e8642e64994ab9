package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"
)

// HTTPConfig configures an HTTP directory client.
type HTTPConfig struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
	UserAgent  string
}

// HTTPFetcher downloads the server list as JSON:
//
//	{"servers": [{"name": "...", "host": "...", "port": 8080, "listeners": 3}]}
type HTTPFetcher struct {
	config     HTTPConfig
	httpClient *http.Client

	// Statistics
	totalRequests  uint64
	failedRequests uint64
	totalRetries   uint64

	mu sync.RWMutex
}

// HTTPStats represents client statistics
type HTTPStats struct {
	TotalRequests  uint64 `json:"total_requests"`
	FailedRequests uint64 `json:"failed_requests"`
	TotalRetries   uint64 `json:"total_retries"`
}

type listResponse struct {
	Servers []Server `json:"servers"`
}

// NewHTTPFetcher creates a directory client
func NewHTTPFetcher(config HTTPConfig) (*HTTPFetcher, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("directory url cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	return &HTTPFetcher{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Fetch retrieves the list, retrying with exponential backoff
func (f *HTTPFetcher) Fetch(ctx context.Context) (List, error) {
	f.mu.Lock()
	f.totalRequests++
	f.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			f.mu.Lock()
			f.totalRetries++
			f.mu.Unlock()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * 500 * time.Millisecond
			if backoffTime > 8*time.Second {
				backoffTime = 8 * time.Second
			}
			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		list, err := f.doRequest(ctx)
		if err == nil {
			return list, nil
		}
		lastErr = err
	}

	f.mu.Lock()
	f.failedRequests++
	f.mu.Unlock()
	return nil, fmt.Errorf("fetch server list failed after %d attempts: %w", f.config.MaxRetries+1, lastErr)
}

func (f *HTTPFetcher) doRequest(ctx context.Context) (List, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	var parsed listResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse server list: %w", err)
	}
	return List(parsed.Servers), nil
}

// GetStats returns client statistics
func (f *HTTPFetcher) GetStats() HTTPStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return HTTPStats{
		TotalRequests:  f.totalRequests,
		FailedRequests: f.failedRequests,
		TotalRetries:   f.totalRetries,
	}
}
