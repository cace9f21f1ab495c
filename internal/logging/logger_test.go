package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetLogging() {
	CloseAudit()
	CloseAll()
	Reconfigure(Settings{})
}

func TestDisabledLoggingIsNoOp(t *testing.T) {
	t.Cleanup(resetLogging)

	dir := t.TempDir()
	if err := Initialize(dir, Settings{DebugMode: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	Memory("this should go nowhere %d", 42)
	StartTimer(CategoryStore, "op").Stop()

	if _, err := os.Stat(filepath.Join(dir, "logs")); !os.IsNotExist(err) {
		t.Error("logs directory created despite debug mode off")
	}
}

func TestDebugModeWritesCategoryFiles(t *testing.T) {
	t.Cleanup(resetLogging)

	dir := t.TempDir()
	err := Initialize(dir, Settings{DebugMode: true, Level: "debug"})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	Memory("stored memory %d", 7)
	Entity("resolved %s", "sarah")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	memLog := filepath.Join(dir, "logs", date+"_memory.log")
	data, err := os.ReadFile(memLog)
	if err != nil {
		t.Fatalf("memory log not written: %v", err)
	}
	if !strings.Contains(string(data), "stored memory 7") {
		t.Errorf("memory log missing message: %s", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs", date+"_entity.log")); err != nil {
		t.Errorf("entity log not written: %v", err)
	}
}

func TestCategoryToggle(t *testing.T) {
	t.Cleanup(resetLogging)

	Reconfigure(Settings{
		DebugMode:  true,
		Categories: map[string]bool{"dream": false},
	})

	if IsCategoryEnabled(CategoryDream) {
		t.Error("explicitly disabled category reported enabled")
	}
	if !IsCategoryEnabled(CategoryMemory) {
		t.Error("unlisted category should default to enabled")
	}

	Reconfigure(Settings{DebugMode: false})
	if IsCategoryEnabled(CategoryMemory) {
		t.Error("debug mode off should disable every category")
	}
}

func TestAuditTrail(t *testing.T) {
	t.Cleanup(resetLogging)

	dir := t.TempDir()
	if err := Initialize(dir, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatal(err)
	}
	if err := InitAudit(); err != nil {
		t.Fatalf("InitAudit: %v", err)
	}

	start := time.Now().Add(-5 * time.Millisecond)
	AuditOp(AuditMemoryStore, "default", "memory:12", start, nil)
	AuditOp(AuditMemoryForget, "default", "memory:13", start, os.ErrNotExist)
	CloseAudit()

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(dir, "logs", date+"_audit.jsonl"))
	if err != nil {
		t.Fatalf("audit trail not written: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d audit lines, want 2", len(lines))
	}

	var first, second AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1 not JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("line 2 not JSON: %v", err)
	}
	if first.Event != AuditMemoryStore || !first.Success {
		t.Errorf("first event = %+v", first)
	}
	if second.Success || second.Error == "" {
		t.Errorf("failed op should carry the error: %+v", second)
	}
}

func TestAuditNoOpWhenDisabled(t *testing.T) {
	t.Cleanup(resetLogging)

	if err := InitAudit(); err != nil {
		t.Fatalf("InitAudit without debug mode should be a no-op: %v", err)
	}
	// Recording with no open trail must not panic.
	RecordAudit(AuditEvent{Event: AuditMemoryRecall})
}
