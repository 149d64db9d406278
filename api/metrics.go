package api

import (
	"sync"
	"time"

	"github.com/filecoin-project/go-clock"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike AlertType = "login_failure_spike"
	AlertAPIKeyProbing     AlertType = "api_key_probing"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// slidingWindow counts events in the trailing window.
type slidingWindow struct {
	events    []time.Time
	window    time.Duration
	threshold int
}

// add records an event at now and reports the count if it reached the
// threshold, resetting the window so one spike raises one alert.
func (s *slidingWindow) add(now time.Time) (int, bool) {
	s.events = append(s.events, now)
	s.events = trimWindow(s.events, now, s.window)
	if n := len(s.events); n >= s.threshold {
		s.events = s.events[:0]
		return n, true
	}
	return 0, false
}

// alertMonitor tracks sliding window counters for anomaly detection.
type alertMonitor struct {
	mu      sync.Mutex
	clock   clock.Clock
	logins  slidingWindow
	apiKeys slidingWindow
	alertFn AlertFunc
}

const (
	defaultLoginFailureWindow    = 1 * time.Minute
	defaultLoginFailureThreshold = 20
	defaultAPIKeyWindow          = 1 * time.Minute
	defaultAPIKeyThreshold       = 20
)

func newAlertMonitor(alertFn AlertFunc) *alertMonitor {
	return &alertMonitor{
		clock:   clock.New(),
		logins:  slidingWindow{window: defaultLoginFailureWindow, threshold: defaultLoginFailureThreshold},
		apiKeys: slidingWindow{window: defaultAPIKeyWindow, threshold: defaultAPIKeyThreshold},
		alertFn: alertFn,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *alertMonitor) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case AuditLoginFailure:
		m.record(&m.logins, AlertLoginFailureSpike, "login failure rate exceeds threshold")
	case AuditAPIKeyRejected:
		m.record(&m.apiKeys, AlertAPIKeyProbing, "invalid api key rate exceeds threshold")
	}
}

func (m *alertMonitor) record(w *slidingWindow, typ AlertType, msg string) {
	m.mu.Lock()
	now := m.clock.Now()
	n, fire := w.add(now)
	threshold := w.threshold
	m.mu.Unlock()

	if fire {
		m.alertFn(AlertEvent{
			Type:      typ,
			Message:   msg,
			Count:     n,
			Threshold: threshold,
			Timestamp: now,
		})
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
