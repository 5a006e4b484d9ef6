package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for the ticket pipeline.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	errorCount      map[string]int64
	classifications map[string]int64
	matches         int64
	assignments     int64
	rejections      int64
	escalations     int64
	deliveries      map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		errorCount:      make(map[string]int64),
		classifications: make(map[string]int64),
		deliveries:      make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordClassification tracks classifier outcomes.
func (m *Metrics) RecordClassification(success bool) {
	if m == nil {
		return
	}
	key := "failure"
	if success {
		key = "success"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classifications[key]++
}

// RecordMatch counts matcher completions.
func (m *Metrics) RecordMatch() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches++
}

// RecordAssignment counts assignment transitions.
func (m *Metrics) RecordAssignment() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments++
}

// RecordRejection counts contractor rejections.
func (m *Metrics) RecordRejection() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections++
}

// RecordEscalations counts tickets flagged by the SLA sweep.
func (m *Metrics) RecordEscalations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations += int64(n)
}

// RecordDelivery tracks a per-channel delivery outcome.
func (m *Metrics) RecordDelivery(channel, status string) {
	if m == nil {
		return
	}
	key := channel + "|" + status
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[key]++
}

// Snapshot returns a copy of pipeline counters for reporting.
func (m *Metrics) Snapshot() map[string]any {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	classifications := make(map[string]int64, len(m.classifications))
	for k, v := range m.classifications {
		classifications[k] = v
	}
	deliveries := make(map[string]int64, len(m.deliveries))
	for k, v := range m.deliveries {
		deliveries[k] = v
	}
	return map[string]any{
		"classifications": classifications,
		"matches":         m.matches,
		"assignments":     m.assignments,
		"rejections":      m.rejections,
		"escalations":     m.escalations,
		"deliveries":      deliveries,
	}
}
