package hydrus

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

// APIKeyHeader carries the access key on every request.
const APIKeyHeader = "Hydrus-Client-API-Access-Key"

// DefaultTimeout bounds a single remote call.
const DefaultTimeout = 30 * time.Second

// Request describes one remote call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is the uniform envelope for every remote call.
type Response struct {
	Success bool
	Message string
	Data    json.RawMessage
	Status  int
}

// Decode unmarshals the response data into v.
func (r Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Failure builds an unsuccessful envelope.
func Failure(status int, format string, args ...any) Response {
	return Response{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Client talks to one Hydrus client API endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New returns a client for the API at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs req and wraps the outcome in a Response.
func (c *Client) Do(ctx context.Context, req Request) Response {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return Failure(0, "encode request for %s: %v", req.Path, err)
		}
		body = bytes.NewReader(payload)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return Failure(0, "build request for %s: %v", req.Path, err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set(APIKeyHeader, c.apiKey)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Failure(0, "request %s: %v", req.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failure(resp.StatusCode, "read response from %s: %v", req.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, data),
			Data:    data,
		}
	}
	return Response{
		Success: true,
		Message: "ok",
		Data:    data,
		Status:  resp.StatusCode,
	}
}

func errorMessage(status int, data []byte) string {
	var apiErr struct {
		Error         string `json:"error"`
		ExceptionType string `json:"exception_type"`
	}
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		if apiErr.ExceptionType != "" {
			return fmt.Sprintf("%s: %s", apiErr.ExceptionType, apiErr.Error)
		}
		return apiErr.Error
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return http.StatusText(status)
	}
	if len(text) > 300 {
		text = text[:300]
	}
	return text
}
