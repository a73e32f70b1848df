package gateway

import (
	"encoding/json"
	"testing"
)

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"event":"chat:send","data":{"to":"u2"},"ack_id":"a1"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Event != "chat:send" || f.AckID != "a1" {
		t.Fatalf("got event=%q ack=%q", f.Event, f.AckID)
	}
	if len(f.Data) == 0 {
		t.Fatal("data payload dropped")
	}
}

func TestParseFrameRejectsMissingEvent(t *testing.T) {
	for _, raw := range []string{`{}`, `{"data":{}}`, `not json`, ``} {
		if _, err := ParseFrame([]byte(raw)); err == nil {
			t.Errorf("accepted %q", raw)
		}
	}
}

func TestBuildAck(t *testing.T) {
	var f Frame
	if err := json.Unmarshal(BuildAck("a9", false, "event_rate_limited"), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Event != eventAck || f.AckID != "a9" {
		t.Fatalf("got event=%q ack=%q", f.Event, f.AckID)
	}
	var data AckData
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data.Allowed || data.Reason != "event_rate_limited" {
		t.Fatalf("got %+v", data)
	}
}

func TestBuildOnlineSetNeverNil(t *testing.T) {
	var f Frame
	if err := json.Unmarshal(BuildOnlineSet(nil), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var data OnlineSetData
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data.Users == nil {
		t.Fatal("users marshalled as null")
	}
	if len(data.Users) != 0 {
		t.Fatalf("got %v", data.Users)
	}
}
