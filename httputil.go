package phiterm

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
	"time"
)

// Headers set on responses served from the disk cache.
const (
	cacheHeader    = "X-Phiterm-Cache" // "fresh" or "stale"
	cachedAtHeader = "X-Phiterm-Cached-At"
)

// responseCache keeps successful GET responses on disk. Fresh entries are
// served without a request, stale ones only when the remote is unreachable.
type responseCache struct {
	base http.RoundTripper
	dir  string
	ttl  time.Duration
}

func (c *responseCache) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return c.base.RoundTrip(req)
	}
	file := filepath.Join(c.dir, fmt.Sprintf("phiterm-%x", sha1.Sum([]byte(req.URL.String()))))

	cached, at, cacheErr := load(file, req)
	if cacheErr == nil && time.Since(at) < c.ttl {
		return mark(cached, "fresh", at), nil
	}

	resp, err := c.base.RoundTrip(req)
	if cacheErr == nil && (err != nil || resp.StatusCode >= http.StatusInternalServerError) {
		if resp != nil {
			resp.Body.Close()
		}
		log.Printf("GET %s unavailable, using the response of %s", req.URL.Host, at.Format(time.RFC3339))
		return mark(cached, "stale", at), nil
	}
	if err != nil {
		return nil, err
	}
	log.Printf("GET %v%v %v", req.URL.Host, req.URL.Path, resp.Status)
	if resp.StatusCode == http.StatusOK {
		if err := store(file, resp); err != nil {
			log.Printf("cannot cache %v: %v", req.URL.Host, err)
		}
	}
	return resp, nil
}

func mark(resp *http.Response, freshness string, at time.Time) *http.Response {
	resp.Header.Set(cacheHeader, freshness)
	resp.Header.Set(cachedAtHeader, at.UTC().Format(time.RFC3339))
	return resp
}

// load reads a cached response and the time it was stored.
func load(file string, req *http.Request) (*http.Response, time.Time, error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, time.Time{}, err
	}
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, time.Time{}, err
	}
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(content)), req)
	return resp, info.ModTime(), err
}

// store writes resp to file. The body of resp stays readable.
func store(file string, resp *http.Response) error {
	content, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	return os.WriteFile(file, content, 0o644)
}

// cachingClient returns a client caching responses in dir, os.TempDir()
// when empty, for ttl.
func cachingClient(dir string, ttl time.Duration) *http.Client {
	if dir == "" {
		dir = os.TempDir()
	}
	return &http.Client{
		Transport: &responseCache{base: http.DefaultTransport, dir: dir, ttl: ttl},
		Timeout:   15 * time.Second,
	}
}

// fetched tells where a JSON document came from.
type fetched struct {
	Cache string    // "", "fresh" or "stale"
	At    time.Time // when the document was fetched from the remote
}

// getJSON performs an HTTP GET and unmarshals the JSON response into data.
func getJSON(ctx context.Context, client *http.Client, addr string, data any) (fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return fetched{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fetched{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fetched{}, fmt.Errorf("cannot GET %v%v: %v", req.URL.Host, req.URL.Path, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetched{}, err
	}
	f := fetched{Cache: resp.Header.Get(cacheHeader), At: time.Now()}
	if at, err := time.Parse(time.RFC3339, resp.Header.Get(cachedAtHeader)); err == nil {
		f.At = at
	}
	return f, json.Unmarshal(body, data)
}
