package eventbridge

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileEventProcessorAppendsHeartbeatShapedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks", "events.jsonl")
	sink, err := NewFileEventProcessor(path)
	if err != nil {
		t.Fatalf("new file processor: %v", err)
	}
	defer sink.(*fileSink).Close()

	evt := Event{
		Version:         EventSchemaVersion,
		EventID:         "evt-1",
		SessionID:       "sess-1",
		Tool:            "edit",
		ContextPercent:  73.2,
		WaitingForInput: true,
		ServerTime:      time.Unix(1730000000, 0).UTC(),
	}
	if err := sink.HandleEvent(evt); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatalf("expected one line in log")
	}
	var line heartbeatLine
	if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal line: %v", err)
	}
	if line.SessionID != "sess-1" || line.Tool != "edit" || line.ContextPercent != 73.2 || !line.WaitingForInput {
		t.Fatalf("unexpected line contents: %+v", line)
	}
}
