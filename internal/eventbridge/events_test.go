package eventbridge

import "testing"

func TestEventValidate(t *testing.T) {
	evt := Event{
		Version:   EventSchemaVersion,
		EventID:   "abc",
		SessionID: "session",
	}
	if err := evt.Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
	evt.Version = 99
	if err := evt.Validate(); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestEventValidateRequiresIDs(t *testing.T) {
	evt := Event{Version: EventSchemaVersion}
	if err := evt.Validate(); err == nil {
		t.Fatalf("expected error for missing event_id")
	}
	evt.EventID = "abc"
	if err := evt.Validate(); err == nil {
		t.Fatalf("expected error for missing session_id")
	}
}

func TestEventNormalizeTrimsAndDefaults(t *testing.T) {
	evt := Event{EventID: " abc ", SessionID: " sess ", Tool: " edit "}
	evt.Normalize()
	if evt.Version != EventSchemaVersion {
		t.Fatalf("expected default version, got %d", evt.Version)
	}
	if evt.EventID != "abc" || evt.SessionID != "sess" || evt.Tool != "edit" {
		t.Fatalf("expected trimmed fields, got %+v", evt)
	}
}
