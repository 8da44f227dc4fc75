package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/vasont/Foundatio/id"
)

func TestNewPrefixes(t *testing.T) {
	tests := []struct {
		name   string
		fn     func() id.ID
		prefix id.Prefix
	}{
		{"WorkItem", id.NewWorkItemID, id.PrefixWorkItem},
		{"QueueEntry", id.NewQueueEntryID, id.PrefixQueueEntry},
		{"Job", id.NewJobID, id.PrefixJob},
		{"Worker", id.NewWorkerID, id.PrefixWorker},
		{"LockOwner", id.NewLockOwnerID, id.PrefixLockOwner},
		{"Subscriber", id.NewSubscriberID, id.PrefixSubscriber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn()
			if got.IsNil() {
				t.Fatal("expected non-nil ID")
			}
			if got.Prefix() != tt.prefix {
				t.Errorf("Prefix() = %q, want %q", got.Prefix(), tt.prefix)
			}
			if !strings.HasPrefix(got.String(), string(tt.prefix)+"_") {
				t.Errorf("String() = %q, want prefix %q", got.String(), tt.prefix)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := id.NewWorkItemID()
	parsed, err := id.ParseWorkItemID(orig.String())
	if err != nil {
		t.Fatalf("ParseWorkItemID: %v", err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("got %q, want %q", parsed.String(), orig.String())
	}
}

func TestParseWrongPrefix(t *testing.T) {
	qe := id.NewQueueEntryID()
	if _, err := id.ParseWorkItemID(qe.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}

func TestJSONNil(t *testing.T) {
	type wrapper struct {
		ID id.ID `json:"id"`
	}
	data, err := json.Marshal(wrapper{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var w wrapper
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !w.ID.IsNil() {
		t.Errorf("expected Nil after round trip, got %q", w.ID.String())
	}
}

func TestScan(t *testing.T) {
	orig := id.NewJobID()
	var got id.ID
	if err := got.Scan(orig.String()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got.String() != orig.String() {
		t.Errorf("got %q, want %q", got.String(), orig.String())
	}
	if err := got.Scan(nil); err != nil || !got.IsNil() {
		t.Errorf("Scan(nil) = %v, nil=%v", err, got.IsNil())
	}
	if err := got.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}
