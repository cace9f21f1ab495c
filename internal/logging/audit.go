package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType names one auditable operation.
type AuditEventType string

const (
	AuditMemoryStore   AuditEventType = "memory_store"
	AuditMemoryRecall  AuditEventType = "memory_recall"
	AuditMemoryForget  AuditEventType = "memory_forget"
	AuditMemoryCompact AuditEventType = "memory_compact"
	AuditOutcome       AuditEventType = "outcome_recorded"
	AuditDreamSession  AuditEventType = "dream_session"
	AuditContextOpen   AuditEventType = "context_open"
	AuditContextEvict  AuditEventType = "context_evict"
)

// AuditEvent is one line of the audit trail. Events are appended as JSONL
// so the file can be grepped or fed to jq without a parser.
type AuditEvent struct {
	Timestamp  int64          `json:"ts"` // unix milliseconds
	Event      AuditEventType `json:"event"`
	Profile    string         `json:"profile,omitempty"`
	Target     string         `json:"target,omitempty"`
	Success    bool           `json:"success"`
	DurationMs int64          `json:"dur_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

var (
	auditMu   sync.Mutex
	auditFile *os.File
)

// InitAudit opens the audit trail file under the logs directory. A no-op
// unless debug mode is on and Initialize has run.
func InitAudit() error {
	if !IsCategoryEnabled(CategoryBoot) || logsDir == "" {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(logsDir, fmt.Sprintf("%s_audit.jsonl", date))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	auditFile = f
	return nil
}

// CloseAudit closes the audit trail file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// RecordAudit appends one event to the trail. Silently drops the event when
// the trail is not open.
func RecordAudit(ev AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile == nil {
		return
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	auditFile.Write(append(line, '\n'))
}

// AuditOp records a completed operation with its duration and outcome.
func AuditOp(event AuditEventType, profile, target string, start time.Time, err error) {
	ev := AuditEvent{
		Event:      event,
		Profile:    profile,
		Target:     target,
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	RecordAudit(ev)
}
