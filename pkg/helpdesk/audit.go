package helpdesk

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// AuditEntry records one outgoing call, or one suppressed dry-run
// simulation. Payload holds field names only; values never reach the log.
type AuditEntry struct {
	At        time.Time
	Method    string
	Path      string
	Simulated bool
	Payload   string
}

// AuditLog is an append-only in-memory record of every gateway interaction
// in one batch pass. Entry order matches call order; the executor is
// sequential, so the log is deterministic for a given input.
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) Record(method, path string, payload map[string]any, simulated bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, AuditEntry{
		At:        time.Now().UTC(),
		Method:    method,
		Path:      path,
		Simulated: simulated,
		Payload:   RedactPayload(payload),
	})
}

// Entries returns a copy of the log.
func (a *AuditLog) Entries() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AuditEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// RedactPayload summarizes a request payload as its sorted field names.
func RedactPayload(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
