package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// REST is the shared HTTP plumbing for the venue clients: JSON in/out, bounded
// response reads, and uniform error strings carrying venue, method, and path.
type REST struct {
	Venue      string
	Host       string
	HTTPClient *http.Client

	// Headers are attached to every request (API keys and the like).
	Headers http.Header
}

func NewREST(venue, host, defaultHost string) (*REST, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = defaultHost
	}
	host = strings.TrimRight(host, "/")
	if !strings.HasPrefix(host, "http") {
		return nil, fmt.Errorf("%s host must be http(s), got %q", venue, host)
	}
	return &REST{
		Venue:      venue,
		Host:       host,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Headers:    make(http.Header),
	}, nil
}

// StatusError reports a non-2xx response; callers match on Code for venue
// semantics like "no open offer".
type StatusError struct {
	Venue  string
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s %s: status %d: %s", e.Venue, e.Method, e.Path, e.Code, e.Body)
}

// GetJSON issues a GET and decodes the response into out (which may be nil).
// The exact response body is returned so callers can keep the byte-level raw
// representation for change detection.
func (r *REST) GetJSON(ctx context.Context, path string, params url.Values, out any) ([]byte, error) {
	return r.do(ctx, http.MethodGet, path, params, nil, out)
}

// PostJSON issues a request with a JSON body and decodes the response.
func (r *REST) PostJSON(ctx context.Context, method, path string, body any, out any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s marshal %s body: %w", r.Venue, path, err)
		}
	}
	return r.do(ctx, method, path, nil, payload, out)
}

func (r *REST) do(ctx context.Context, method, path string, params url.Values, body []byte, out any) ([]byte, error) {
	u := r.Host + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range r.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return b, &StatusError{
			Venue:  r.Venue,
			Method: method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(b)),
		}
	}
	if out == nil {
		return b, nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return b, fmt.Errorf("%s decode %s response: %w (body=%s)", r.Venue, path, err, strings.TrimSpace(string(b)))
	}
	return b, nil
}
