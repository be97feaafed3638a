package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lmagent/internal/tool"
)

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
	http.MethodHead:   true,
}

type httpParams struct {
	URL     string            `json:"url" desc:"URL to request"`
	Method  string            `json:"method,omitempty" desc:"HTTP method" enum:"GET,POST,PUT,DELETE,PATCH,HEAD"`
	Headers map[string]string `json:"headers,omitempty" desc:"Request headers"`
	Body    any               `json:"body,omitempty" type:"any" desc:"Request body; objects are sent as JSON"`
	Params  map[string]string `json:"params,omitempty" desc:"Query parameters"`
}

// HTTPTool performs outbound HTTP requests.
type HTTPTool struct{ env *Env }

func NewHTTPTool(env *Env) *HTTPTool { return &HTTPTool{env: env} }

func (t *HTTPTool) Name() string { return "http_request" }

func (t *HTTPTool) Description() string {
	return "Make an HTTP request"
}

func (t *HTTPTool) Parameters() map[string]any { return tool.SchemaFor(httpParams{}) }

func (t *HTTPTool) Execute(ctx context.Context, params json.RawMessage) *tool.Result {
	p, bad := tool.Decode[httpParams](params)
	if bad != nil {
		return bad
	}
	if p.Method == "" {
		p.Method = http.MethodGet
	}
	p.Method = strings.ToUpper(p.Method)
	if !allowedMethods[p.Method] {
		return tool.Fail("unsupported method: %s", p.Method)
	}

	u, err := url.Parse(p.URL)
	if err != nil || u.Host == "" {
		return tool.Fail("invalid url: %s", p.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return tool.Fail("unsupported scheme: %s", u.Scheme)
	}
	if host, blocked := t.env.blockedHost(u.Hostname()); blocked {
		return tool.Rejected(tool.RejectBlockedURL, "URL blocked: %s", host)
	}
	if len(p.Params) > 0 {
		q := u.Query()
		for k, v := range p.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	body, contentType, err := encodeBody(p.Body)
	if err != nil {
		return tool.Fail("invalid body: %v", err)
	}

	if err := t.env.Limiter.Wait(ctx); err != nil {
		return tool.Fail("rate limit: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, u.String(), body)
	if err != nil {
		return tool.Fail("invalid request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.env.HTTP.Do(req)
	if err != nil {
		var redirect *blockedRedirectError
		if errors.As(err, &redirect) {
			return tool.Rejected(tool.RejectBlockedURL, "URL blocked: %s (redirect)", redirect.host)
		}
		if ctx.Err() != nil || isTimeout(err) {
			return tool.TimeoutResult(t.env.Limits.HTTPTimeout)
		}
		return tool.Fail("request failed: %v", err)
	}
	defer resp.Body.Close()

	limit := t.env.Limits.MaxHTTPResponseBytes
	reader := io.Reader(resp.Body)
	if limit > 0 {
		reader = io.LimitReader(resp.Body, int64(limit)+1)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return tool.Fail("read response: %v", err)
	}
	truncated := limit > 0 && len(raw) > limit
	if truncated {
		raw = raw[:limit]
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	data := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"is_json":     false,
		"truncated":   truncated,
	}
	var decoded any
	if !truncated && len(raw) > 0 && json.Unmarshal(raw, &decoded) == nil {
		data["body"] = decoded
		data["is_json"] = true
	} else {
		text := string(raw)
		if truncated {
			text = strings.ToValidUTF8(text, "") + tool.TruncationMarker
		}
		data["body"] = text
	}

	result := tool.OK(data).
		WithMeta("duration_ms", time.Since(start).Milliseconds()).
		WithMeta("method", p.Method).
		WithMeta("url", u.String())
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Success = false
		result.Error = "HTTP " + strconv.Itoa(resp.StatusCode)
	}
	return result
}

// blockedHost matches the hostname exactly or as a subdomain of a blocked
// entry.
func (e *Env) blockedHost(host string) (string, bool) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, b := range e.BlockedHosts {
		b = strings.ToLower(b)
		if host == b || strings.HasSuffix(host, "."+b) {
			return host, true
		}
	}
	return "", false
}

const maxRedirects = 10

type blockedRedirectError struct{ host string }

func (e *blockedRedirectError) Error() string {
	return "redirect to blocked host " + e.host
}

// checkRedirect applies the blocked host policy to every redirect hop.
func (e *Env) checkRedirect(req *http.Request, via []*http.Request) error {
	if host, blocked := e.blockedHost(req.URL.Hostname()); blocked {
		return &blockedRedirectError{host: host}
	}
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "", nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return strings.NewReader(string(raw)), "application/json", nil
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
