// Package modes maps task modes to the attack vectors the planner expands.
package modes

import "sort"

// Vector describes one attack vector and the tool that probes it.
type Vector struct {
	Name    string
	Tool    string
	Summary string
	// TimeoutSeconds is the per-attempt budget for the vector's tool.
	TimeoutSeconds int
}

// Table maps mode names to ordered vector lists. Variation between modes is
// configuration data, not code.
type Table struct {
	modes map[string][]Vector
	def   string
}

// NewTable creates a mode table with the built-in modes registered.
func NewTable() *Table {
	t := &Table{modes: make(map[string][]Vector), def: "recon"}

	t.Register("recon", []Vector{
		{Name: "dns_surface", Tool: "dns_enum", Summary: "Enumerate DNS records and subdomains", TimeoutSeconds: 30},
		{Name: "open_ports", Tool: "port_scan", Summary: "Probe common service ports", TimeoutSeconds: 60},
		{Name: "http_surface", Tool: "http_probe", Summary: "Fingerprint HTTP endpoints", TimeoutSeconds: 30},
	})
	t.Register("scan", []Vector{
		{Name: "open_ports", Tool: "port_scan", Summary: "Full service port sweep", TimeoutSeconds: 120},
		{Name: "tls_posture", Tool: "tls_audit", Summary: "Inspect TLS configuration", TimeoutSeconds: 45},
		{Name: "http_surface", Tool: "http_probe", Summary: "Fingerprint HTTP endpoints", TimeoutSeconds: 30},
		{Name: "header_hygiene", Tool: "header_audit", Summary: "Audit security headers", TimeoutSeconds: 20},
	})
	t.Register("audit", []Vector{
		{Name: "tls_posture", Tool: "tls_audit", Summary: "Inspect TLS configuration", TimeoutSeconds: 45},
		{Name: "header_hygiene", Tool: "header_audit", Summary: "Audit security headers", TimeoutSeconds: 20},
		{Name: "credential_exposure", Tool: "cred_check", Summary: "Check for exposed credentials", TimeoutSeconds: 30},
	})
	t.Register("hardening", []Vector{
		{Name: "header_hygiene", Tool: "header_audit", Summary: "Audit security headers", TimeoutSeconds: 20},
		{Name: "tls_posture", Tool: "tls_audit", Summary: "Inspect TLS configuration", TimeoutSeconds: 45},
	})

	return t
}

// Register adds or replaces a mode's vector list.
func (t *Table) Register(mode string, vectors []Vector) {
	t.modes[mode] = vectors
}

// Recognized reports whether the mode is registered.
func (t *Table) Recognized(mode string) bool {
	_, ok := t.modes[mode]
	return ok
}

// Default returns the fallback mode applied to unrecognized input.
func (t *Table) Default() string {
	return t.def
}

// Vectors returns the ordered vector list for a mode, falling back to the
// default mode for unrecognized names.
func (t *Table) Vectors(mode string) []Vector {
	vs, ok := t.modes[mode]
	if !ok {
		vs = t.modes[t.def]
	}
	out := make([]Vector, len(vs))
	copy(out, vs)
	return out
}

// Modes returns the registered mode names, sorted.
func (t *Table) Modes() []string {
	names := make([]string, 0, len(t.modes))
	for m := range t.modes {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}
