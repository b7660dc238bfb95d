// Package coordinator is the HTTP client for the job coordinator.
package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"sdminer/internal/retry"
)

const maxBodyBytes = 8 << 20

// Options configures a Client.
type Options struct {
	BaseURL    string
	SignalURL  string
	MinerID    string
	Version    string
	Timeout    time.Duration
	MaxRetries int
	// Retry overrides the backoff derived from MaxRetries.
	Retry *retry.Config
	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
}

// Client talks to the coordinator on behalf of one miner id.
type Client struct {
	baseURL   string
	signalURL string
	minerID   string
	userAgent string
	http      *http.Client
	retry     retry.Config
}

// New builds a Client. Zero Timeout means 30s.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	rc := retry.Default(opts.MaxRetries)
	if opts.Retry != nil {
		rc = *opts.Retry
	}
	ua := "sdminer"
	if opts.Version != "" {
		ua += "/" + opts.Version
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		signalURL: strings.TrimRight(opts.SignalURL, "/"),
		minerID:   opts.MinerID,
		userAgent: ua,
		http:      hc,
		retry:     rc,
	}
}

// reply is one HTTP exchange.
type reply struct {
	status int
	body   []byte
}

// RequestJob asks for work. A reply without job_id and model_id is not an
// error; the returned JobResponse then has a nil Job. A reply carrying both
// keys that cannot be turned into a job is a decode error. Warning is filled even
// when an error is returned for a non-2xx status.
func (c *Client) RequestJob(ctx context.Context, req MinerRequest) (JobResponse, error) {
	start := time.Now()
	rep, err := c.post(ctx, "miner_request", c.baseURL+"/miner_request", req)
	out := JobResponse{Status: rep.status, Body: string(rep.body), Latency: time.Since(start)}
	if msg, ok := ExtractWarning(out.Body); ok {
		out.Warning = msg
	}
	if err != nil {
		return out, err
	}
	job, err := parseJob(rep.body)
	if err != nil {
		return out, err
	}
	out.Job = job
	return out, nil
}

// Signal asks which model this miner should serve. Any non-200 reply is a
// *StatusError.
func (c *Client) Signal(ctx context.Context, req SignalRequest) (SignalResponse, error) {
	var out SignalResponse
	rep, err := c.post(ctx, "miner_signal", c.signalURL+"/miner_signal", req)
	if err != nil {
		return out, err
	}
	if rep.status != http.StatusOK {
		return out, &StatusError{Op: "miner_signal", Code: rep.status, Body: snippet(rep.body)}
	}
	if err := json.Unmarshal(rep.body, &out); err != nil {
		return out, decodeError{op: "miner_signal", err: err}
	}
	return out, nil
}

// SubmitResult reports a finished job.
func (c *Client) SubmitResult(ctx context.Context, req SubmitRequest) error {
	_, err := c.post(ctx, "miner_submit", c.baseURL+"/miner_submit", req)
	return err
}

// Catalog fetches the model manifest at url.
func (c *Client) Catalog(ctx context.Context, url string) ([]CatalogEntry, error) {
	rep, err := c.do(ctx, "catalog", http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	var entries []CatalogEntry
	if err := json.Unmarshal(rep.body, &entries); err != nil {
		// Also accept {"models": [...]}.
		var wrapped struct {
			Models []CatalogEntry `json:"models"`
		}
		if err2 := json.Unmarshal(rep.body, &wrapped); err2 != nil {
			return nil, decodeError{op: "catalog", err: err}
		}
		entries = wrapped.Models
	}
	return entries, nil
}

// Download opens a streaming GET of url. The caller closes the body.
func (c *Client) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	// Model files can take far longer than the request timeout.
	hc := *c.http
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Op: "download", Code: resp.StatusCode, Body: snippet(b)}
	}
	return resp.Body, nil
}

func (c *Client) post(ctx context.Context, op, url string, payload any) (reply, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return reply{}, fmt.Errorf("%s: encode request: %w", op, err)
	}
	return c.do(ctx, op, http.MethodPost, url, body)
}

// do runs one request with retries. Transport errors, 5xx, 408 and 429 are
// retried; other 4xx replies stop immediately. The last reply is returned
// alongside any error.
func (c *Client) do(ctx context.Context, op, method, url string, body []byte) (reply, error) {
	var last reply
	err := retry.WithExponentialBackoff(ctx, c.retry, func(ctx context.Context) error {
		rep, err := c.once(ctx, method, url, body)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(err)
			}
			return err
		}
		last = rep
		if rep.status < 400 {
			return nil
		}
		se := &StatusError{Op: op, Code: rep.status, Body: snippet(rep.body)}
		if IsTerminal(se) {
			return retry.Permanent(se)
		}
		return se
	})
	if err != nil {
		var se *StatusError
		if !errors.As(err, &se) {
			err = fmt.Errorf("%s: %w", op, err)
		}
	}
	return last, err
}

func (c *Client) once(ctx context.Context, method, url string, body []byte) (reply, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return reply{}, retry.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.minerID != "" {
		req.Header.Set("X-Miner-ID", c.minerID)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return reply{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return reply{}, err
	}
	return reply{status: resp.StatusCode, body: b}, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
