package store

import (
	"path/filepath"
	"testing"
)

func TestHistory_RecordAndRecent(t *testing.T) {
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()

	entries := []Entry{
		{JobID: "j1", Kind: "document_processing", Status: "completed", StartedAt: 100, FinishedAt: 200},
		{JobID: "j2", Kind: "clustering", Status: "failed", StartedAt: 150, FinishedAt: 300},
	}
	for _, e := range entries {
		if err := h.Record(e); err != nil {
			t.Fatalf("record %s: %v", e.JobID, err)
		}
	}

	got, err := h.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("recent returned %d entries, want 2", len(got))
	}
	// Newest first.
	if got[0].JobID != "j2" || got[1].JobID != "j1" {
		t.Errorf("order = [%s %s], want [j2 j1]", got[0].JobID, got[1].JobID)
	}
}

func TestHistory_RecordTwiceKeepsLatest(t *testing.T) {
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()

	h.Record(Entry{JobID: "j1", Kind: "clustering", Status: "running", FinishedAt: 100})
	h.Record(Entry{JobID: "j1", Kind: "clustering", Status: "completed", FinishedAt: 200})

	got, err := h.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("recent returned %d entries, want 1", len(got))
	}
	if got[0].Status != "completed" {
		t.Errorf("status = %q, want completed", got[0].Status)
	}
}
