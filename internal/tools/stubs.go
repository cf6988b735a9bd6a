package tools

import (
	"context"
	"fmt"
	"time"
)

// StubTool is a canned-data tool used until real scanners are plugged in.
// It sleeps for its configured latency (honoring ctx), then returns its
// canned result merged with replanning flags echoed from the parameters.
type StubTool struct {
	name    string
	latency time.Duration
	canned  map[string]any
}

// NewStubTool creates a stub tool returning canned data after latency.
func NewStubTool(name string, latency time.Duration, canned map[string]any) *StubTool {
	return &StubTool{name: name, latency: latency, canned: canned}
}

// Name returns the tool identifier.
func (t *StubTool) Name() string {
	return t.name
}

// Execute returns the canned result after the configured latency. The
// replanning flags "unexpected" and "requires_adaptation" are echoed from
// params so callers can exercise the adaptive path; what those flags mean
// for a real tool is up to its implementation.
func (t *StubTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	if t.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.latency):
		}
	}

	out := make(map[string]any, len(t.canned)+3)
	for k, v := range t.canned {
		out[k] = v
	}
	if target, ok := params["target"].(string); ok {
		out["target"] = target
	}
	for _, flag := range []string{"unexpected", "requires_adaptation"} {
		if v, ok := params[flag].(bool); ok && v {
			out[flag] = true
		}
	}
	return out, nil
}

// FailingTool always fails; it exists for exercising the retry path.
type FailingTool struct {
	name string
}

// NewFailingTool creates a tool whose Execute always errors.
func NewFailingTool(name string) *FailingTool {
	return &FailingTool{name: name}
}

// Name returns the tool identifier.
func (t *FailingTool) Name() string {
	return t.name
}

// Execute always returns an error.
func (t *FailingTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	return nil, fmt.Errorf("%s: connection refused", t.name)
}

// RegisterDefaults registers the built-in stub tools with canned results.
func RegisterDefaults(r *Registry) {
	defaults := []*StubTool{
		NewStubTool("dns_enum", 50*time.Millisecond, map[string]any{
			"records":    []string{"A 93.184.216.34", "MX mail.example.com", "TXT v=spf1"},
			"subdomains": []string{"www", "mail", "api"},
		}),
		NewStubTool("port_scan", 80*time.Millisecond, map[string]any{
			"open_ports": []int{22, 80, 443},
			"services":   map[string]string{"22": "ssh", "80": "http", "443": "https"},
		}),
		NewStubTool("tls_audit", 60*time.Millisecond, map[string]any{
			"protocol": "TLS 1.3",
			"issues":   []string{"certificate expires in 20 days"},
		}),
		NewStubTool("http_probe", 40*time.Millisecond, map[string]any{
			"status": 200,
			"server": "nginx/1.24.0",
		}),
		NewStubTool("header_audit", 30*time.Millisecond, map[string]any{
			"missing": []string{"Content-Security-Policy", "X-Frame-Options"},
		}),
		NewStubTool("cred_check", 70*time.Millisecond, map[string]any{
			"exposed": []string{},
			"sources": []string{"paste sites", "breach corpora"},
		}),
	}

	for _, t := range defaults {
		r.Register(t)
	}
}
