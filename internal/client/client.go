// Package client provides the HTTP client the CLI uses to talk to a running
// tonearm daemon. Plain endpoints return the api package's response types;
// Analyze streams server-sent events back through caller-supplied callbacks
// for as long as the run lasts.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"tonearm/internal/analysis"
	"tonearm/internal/api"
)

const (
	// requestTimeout bounds the plain request/response endpoints. The
	// analyze stream is exempt because it lives as long as the run.
	requestTimeout = 10 * time.Second

	// maxEventLine caps a single SSE data line. Result payloads carry full
	// transcriptions and beat grids, so the ceiling is generous.
	maxEventLine = 16 << 20
)

// ErrUnreachable marks transport failures where the daemon could not be
// contacted at all, letting callers tell a stopped daemon from a failing one.
var ErrUnreachable = errors.New("daemon unreachable")

// Client talks to a tonearm daemon over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the daemon at addr, either a host:port pair or a
// full http:// URL. The underlying HTTP client carries no global timeout so
// the analyze stream can outlive any fixed bound; bounded endpoints apply
// their own deadline per request.
func New(addr string) *Client {
	base := strings.TrimSpace(addr)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{},
	}
}

// BaseURL reports the daemon endpoint this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health fetches the daemon liveness report.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	if err := c.getJSON(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Models lists the model directories installed under the daemon's models
// root.
func (c *Client) Models(ctx context.Context) (*api.ModelsResponse, error) {
	var out api.ModelsResponse
	if err := c.getJSON(ctx, "/models", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the daemon runtime snapshot.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.getJSON(ctx, "/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Runs lists journaled runs, most recent first. A non-positive limit leaves
// the daemon's default in place.
func (c *Client) Runs(ctx context.Context, limit int) (*api.RunsResponse, error) {
	path := "/runs"
	if limit > 0 {
		path = fmt.Sprintf("/runs?limit=%d", limit)
	}
	var out api.RunsResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Run fetches a single journaled run by identifier.
func (c *Client) Run(ctx context.Context, id string) (*api.RunResponse, error) {
	var out api.RunResponse
	if err := c.getJSON(ctx, "/runs/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Shutdown asks the daemon to terminate after its configured delay.
func (c *Client) Shutdown(ctx context.Context) (*api.ShutdownResponse, error) {
	var out api.ShutdownResponse
	if err := c.postJSON(ctx, "/shutdown", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeEvents carries the callbacks invoked as a streaming analysis run
// progresses. Nil callbacks are skipped.
type AnalyzeEvents struct {
	OnProgress func(api.ProgressEvent)
	OnResult   func(*analysis.AudioAnalysis)
}

// Analyze submits an analysis request and consumes the event stream until the
// run finishes. Progress and result events are delivered through the
// callbacks; an error event from the daemon is returned as an error.
func (c *Client) Analyze(ctx context.Context, reqBody api.AnalyzeRequest, events AnalyzeEvents) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("encode analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.wrapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	var name, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if name != "" && data != "" {
				if err := dispatchEvent(name, []byte(data), events); err != nil {
					return err
				}
			}
			name, data = "", ""
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

func dispatchEvent(name string, data []byte, events AnalyzeEvents) error {
	switch name {
	case "progress":
		var progress api.ProgressEvent
		if err := json.Unmarshal(data, &progress); err != nil {
			return fmt.Errorf("decode progress event: %w", err)
		}
		if events.OnProgress != nil {
			events.OnProgress(progress)
		}
	case "result":
		var record analysis.AudioAnalysis
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("decode result event: %w", err)
		}
		if events.OnResult != nil {
			events.OnResult(&record)
		}
	case "error":
		var failure api.ErrorResponse
		if err := json.Unmarshal(data, &failure); err != nil {
			return fmt.Errorf("decode error event: %w", err)
		}
		return fmt.Errorf("analysis failed: %s", failure.Error)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.roundTrip(ctx, http.MethodGet, path, out)
}

func (c *Client) postJSON(ctx context.Context, path string, out any) error {
	return c.roundTrip(ctx, http.MethodPost, path, out)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.wrapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// wrapTransportError turns low-level connection failures into messages that
// tell the operator what to do next.
func (c *Client) wrapTransportError(err error) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w at %s (start it with 'tonearmd')", ErrUnreachable, c.baseURL)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("daemon at %s did not respond in time", c.baseURL)
	}
	return fmt.Errorf("contact daemon: %w", err)
}

func decodeErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload api.ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("daemon returned %d", resp.StatusCode)
}
