// ABOUTME: "http" handler type: forwards tool arguments to an upstream HTTP endpoint.
// ABOUTME: The caller's identity travels in headers; the response body becomes the result.

package builtins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/toolhub/internal/tools"
)

// HTTPHandlerType is the dispatch key for upstream HTTP tools.
const HTTPHandlerType = "http"

// maxUpstreamBody bounds how much of an upstream response is read.
const maxUpstreamBody = 1 << 20

// Headers set on every upstream request.
const (
	HeaderEmail     = "X-Toolhub-Email"
	HeaderSessionID = "X-Toolhub-Session"
	HeaderRequestID = "X-Toolhub-Request"
)

// HTTPConfig is the handler config for "http" tools.
type HTTPConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	// TimeoutSeconds bounds the upstream request on top of the tool timeout.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// HTTPFactory validates the config and builds a forwarding handler.
func HTTPFactory(config json.RawMessage) (tools.Handler, error) {
	var cfg HTTPConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("decoding http config: %w", err)
	}

	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("http config needs an absolute http(s) url, got %q", cfg.URL)
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}
	if method != http.MethodPost && method != http.MethodPut {
		return nil, fmt.Errorf("http config method must be POST or PUT, got %q", cfg.Method)
	}

	client := &http.Client{}
	if cfg.TimeoutSeconds > 0 {
		client.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	target := u.String()
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return func(ctx context.Context, args json.RawMessage, cc tools.CallContext) (*tools.Result, error) {
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(args))
		if err != nil {
			return nil, fmt.Errorf("building upstream request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderEmail, cc.Identity.Email)
		req.Header.Set(HeaderSessionID, cc.SessionID)
		req.Header.Set(HeaderRequestID, cc.RequestID)

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("calling upstream: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody+1))
		if err != nil {
			return nil, fmt.Errorf("reading upstream response: %w", err)
		}
		if len(body) > maxUpstreamBody {
			return nil, errors.New("upstream response too large")
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		result := tools.TextResult(string(body))
		if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
			var structured any
			if json.Unmarshal(body, &structured) == nil {
				result.StructuredContent = structured
			}
		}
		return result, nil
	}, nil
}
