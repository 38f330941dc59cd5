// Package oceandata provides a client for the NASA GSFC Ocean Color
// distribution site: file search and authenticated granule download.
package oceandata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the default Ocean Color site base URL.
	DefaultBaseURL = "https://oceandata.sci.gsfc.nasa.gov"

	// DefaultMinInterval is the default minimum delay between remote
	// downloads. NASA temporarily bans clients that hammer the
	// distribution servers.
	DefaultMinInterval = 4 * time.Second

	// DefaultJitter is the default random slack added on top of the
	// minimum delay.
	DefaultJitter = 4 * time.Second
)

// Client downloads granules and searches files on the Ocean Color
// distribution site. Downloads require Earthdata credentials.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger

	minInterval time.Duration
	jitter      time.Duration

	mu           sync.Mutex
	lastDownload time.Time
}

// NewClient creates an Ocean Color client with the given Earthdata
// credentials.
func NewClient(baseURL, username, password string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	// Earthdata authentication bounces through urs.earthdata.nasa.gov
	// and back; the session cookie set on the way is what authorizes
	// the final download, and basic auth must survive the redirects.
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		username:    username,
		password:    password,
		logger:      slog.Default(),
		minInterval: DefaultMinInterval,
		jitter:      DefaultJitter,
	}
	c.httpClient = &http.Client{
		Timeout: timeout,
		Jar:     jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			req.SetBasicAuth(c.username, c.password)
			return nil
		},
	}
	return c
}

// WithLogger sets a custom logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithThrottle overrides the minimum interval and jitter between
// downloads. Mainly for tests.
func (c *Client) WithThrottle(minInterval, jitter time.Duration) *Client {
	c.minInterval = minInterval
	c.jitter = jitter
	return c
}

// Download fetches a granule file by name. Calls are serialized and
// spaced out by the configured throttle.
func (c *Client) Download(ctx context.Context, filename string) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delay := c.minInterval
	if c.jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(c.jitter)))
	}
	next := c.lastDownload.Add(delay)
	if wait := time.Until(next); wait > 0 {
		c.logger.DebugContext(ctx, "throttling download",
			slog.Duration("wait", wait),
			slog.String("filename", filename),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	defer func() { c.lastDownload = time.Now() }()

	downloadURL := c.baseURL + "/ob/getfile/" + url.PathEscape(filename)

	c.logger.InfoContext(ctx, "downloading granule",
		slog.String("filename", filename),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("User-Agent", "oceancolor-matchup/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "granule download failed",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("download of %s failed: %w", filename, err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.logger.ErrorContext(ctx, "granule download returned non-200 status",
			slog.String("filename", filename),
			slog.Int("status_code", resp.StatusCode),
		)
		return nil, fmt.Errorf("download of %s returned status %d: %s", filename, resp.StatusCode, string(body))
	}

	return resp.Body, nil
}

// FileSearchRequest selects files from the Ocean Color file-search API.
type FileSearchRequest struct {
	Sensor string
	DType  string // L0, L1, L2, L3b, L3m, MET, misc
	Start  time.Time
	End    time.Time
}

// maxSearchBlock returns how large a date range one search request may
// cover. Swath products list far more files per day than composites.
func maxSearchBlock(dtype string) time.Duration {
	switch dtype {
	case "L0", "L1", "L2":
		return 60 * 24 * time.Hour
	default:
		return 200 * 24 * time.Hour
	}
}

// FileSearch lists available filenames for a sensor and data type in
// a date range, splitting long ranges into blocks the API tolerates.
func (c *Client) FileSearch(ctx context.Context, req FileSearchRequest) ([]string, error) {
	sensor := req.Sensor
	// The file-search API predates the SNPP/JPSS1 split.
	if sensor == "snpp" {
		sensor = "viirs"
	}

	block := maxSearchBlock(req.DType)
	if req.End.Sub(req.Start) > block {
		var all []string
		for start := req.Start; start.Before(req.End); start = start.Add(block) {
			end := start.Add(block - 24*time.Hour)
			if end.After(req.End) {
				end = req.End
			}
			blockReq := req
			blockReq.Start = start
			blockReq.End = end
			names, err := c.FileSearch(ctx, blockReq)
			if err != nil {
				return nil, err
			}
			all = append(all, names...)
		}
		return all, nil
	}

	form := url.Values{}
	form.Set("sensor", sensor)
	form.Set("dtype", req.DType)
	form.Set("sdate", req.Start.UTC().Format("2006-01-02"))
	form.Set("edate", req.End.UTC().Format("2006-01-02"))
	form.Set("addurl", "0")
	form.Set("results_as_file", "1")
	form.Set("cksum", "1")
	form.Set("format", "json")

	searchURL := c.baseURL + "/api/file_search"

	c.logger.DebugContext(ctx, "searching ocean color files",
		slog.String("sensor", sensor),
		slog.String("dtype", req.DType),
		slog.String("sdate", form.Get("sdate")),
		slog.String("edate", form.Get("edate")),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", "oceancolor-matchup/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("file search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("file search returned status %d: %s", resp.StatusCode, string(body))
	}

	// The API keys the response object by filename.
	var files map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("failed to decode file search response: %w", err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
