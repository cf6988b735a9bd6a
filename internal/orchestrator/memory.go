package orchestrator

import (
	"sync"

	"github.com/kestrelsec/kestrel/internal/models"
)

// Memory is the bounded rolling knowledge memory shared across tasks.
// Findings and lessons are appended at learn time and trimmed oldest-first,
// the same FIFO discipline the request tracer uses.
type Memory struct {
	mu          sync.Mutex
	maxFindings int
	maxLessons  int
	findings    []models.Finding
	lessons     []string
}

// NewMemory creates a rolling memory with the given bounds.
func NewMemory(maxFindings, maxLessons int) *Memory {
	return &Memory{maxFindings: maxFindings, maxLessons: maxLessons}
}

// Add appends findings and lessons, evicting the oldest entries once a
// bound is exceeded.
func (m *Memory) Add(findings []models.Finding, lessons []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.findings = append(m.findings, findings...)
	if n := len(m.findings) - m.maxFindings; n > 0 {
		m.findings = append([]models.Finding(nil), m.findings[n:]...)
	}

	m.lessons = append(m.lessons, lessons...)
	if n := len(m.lessons) - m.maxLessons; n > 0 {
		m.lessons = append([]string(nil), m.lessons[n:]...)
	}
}

// Findings returns a copy of the retained findings, oldest first.
func (m *Memory) Findings() []models.Finding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Finding(nil), m.findings...)
}

// Lessons returns a copy of the retained lessons, oldest first.
func (m *Memory) Lessons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lessons...)
}
