package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedEntries(t *testing.T, s *Store) {
	t.Helper()
	entries := []LogEntry{
		{Date: "27/07/2025", Time: "13:30", PolicyIdentity: "alice", InternalIP: "10.0.0.5", ExternalIP: "8.8.8.8", Action: "Allowed", Destination: "example.com", Categories: "Search Engines", SourceFile: "a.csv"},
		{Date: "27/07/2025", Time: "13:45", PolicyIdentity: "bob", InternalIP: "10.0.0.6", ExternalIP: "1.1.1.1", Action: "Blocked", Destination: "malware.example", Categories: "Malware", SourceFile: "a.csv"},
		{Date: "28/07/2025", Time: "09:10", PolicyIdentity: "alice", InternalIP: "10.0.0.5", ExternalIP: "8.8.4.4", Action: "Blocked", Destination: "phishing.example", Categories: "Phishing", SourceFile: "b.csv"},
	}
	if err := s.InsertEntries(context.Background(), entries); err != nil {
		t.Fatalf("InsertEntries: %v", err)
	}
}

func TestQueryFilters(t *testing.T) {
	s := testStore(t)
	seedEntries(t, s)
	ctx := context.Background()

	tests := []struct {
		name      string
		filter    Filter
		wantCount int64
	}{
		{"no filter", Filter{}, 3},
		{"by identity", Filter{PolicyIdentity: "alice"}, 2},
		{"identity is case-insensitive substring", Filter{PolicyIdentity: "ALI"}, 2},
		{"by action", Filter{Action: "Blocked"}, 2},
		{"by date", Filter{Date: "27/07/2025"}, 2},
		{"by hour without minutes", Filter{Time: "13"}, 2},
		{"by exact time", Filter{Time: "13:30"}, 1},
		{"combined datetime matches hour", Filter{DateTime: "27/07/2025 13:30"}, 2},
		{"two-digit year datetime", Filter{DateTime: "28/07/25"}, 1},
		{"identity and action", Filter{PolicyIdentity: "alice", Action: "Blocked"}, 1},
		{"by destination", Filter{Destination: "malware"}, 1},
		{"no match", Filter{PolicyIdentity: "mallory"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.CountEntries(ctx, tt.filter)
			if err != nil {
				t.Fatalf("CountEntries: %v", err)
			}
			if n != tt.wantCount {
				t.Errorf("count = %d, want %d", n, tt.wantCount)
			}

			entries, err := s.GetEntries(ctx, tt.filter)
			if err != nil {
				t.Fatalf("GetEntries: %v", err)
			}
			if int64(len(entries)) != tt.wantCount {
				t.Errorf("len(entries) = %d, want %d", len(entries), tt.wantCount)
			}
		})
	}
}

func TestGetEntriesLimit(t *testing.T) {
	s := testStore(t)
	seedEntries(t, s)

	entries, err := s.GetEntries(context.Background(), Filter{Limit: 2})
	if err != nil {
		t.Fatalf("GetEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len = %d, want 2", len(entries))
	}
}

func TestGetEntryByID(t *testing.T) {
	s := testStore(t)
	seedEntries(t, s)
	ctx := context.Background()

	e, err := s.GetEntryByID(ctx, 1)
	if err != nil {
		t.Fatalf("GetEntryByID: %v", err)
	}
	want := &LogEntry{
		ID: 1, Date: "27/07/2025", Time: "13:30", PolicyIdentity: "alice",
		InternalIP: "10.0.0.5", ExternalIP: "8.8.8.8", Action: "Allowed",
		Destination: "example.com", Categories: "Search Engines", SourceFile: "a.csv",
	}
	if diff := cmp.Diff(want, e); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.GetEntryByID(ctx, 999); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing id: got %v, want sql.ErrNoRows", err)
	}
}

func TestListIdentities(t *testing.T) {
	s := testStore(t)
	seedEntries(t, s)

	got, err := s.ListIdentities(context.Background())
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	want := []string{"alice", "bob"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("identities mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessedFiles(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	done, err := s.IsFileProcessed(ctx, "a.csv")
	if err != nil {
		t.Fatalf("IsFileProcessed: %v", err)
	}
	if done {
		t.Error("fresh store claims a.csv is processed")
	}

	if err := s.MarkFileProcessed(ctx, "a.csv"); err != nil {
		t.Fatalf("MarkFileProcessed: %v", err)
	}
	// Marking twice must not fail.
	if err := s.MarkFileProcessed(ctx, "a.csv"); err != nil {
		t.Fatalf("second MarkFileProcessed: %v", err)
	}

	done, err = s.IsFileProcessed(ctx, "a.csv")
	if err != nil {
		t.Fatalf("IsFileProcessed: %v", err)
	}
	if !done {
		t.Error("a.csv not reported as processed")
	}
}

func TestSplitDateTime(t *testing.T) {
	tests := []struct {
		in        string
		wantDate  string
		wantClock string
	}{
		{"27/07/2025 13:30", "27/07/2025", "13:30"},
		{"27/07/2025 13", "27/07/2025", "13:00"},
		{"27/07/2025", "27/07/2025", ""},
		{"27/07/25 13:30", "27/07/2025", "13:30"},
		{"garbage", "", ""},
	}
	for _, tt := range tests {
		date, clock := splitDateTime(tt.in)
		if date != tt.wantDate || clock != tt.wantClock {
			t.Errorf("splitDateTime(%q) = (%q, %q), want (%q, %q)", tt.in, date, clock, tt.wantDate, tt.wantClock)
		}
	}
}
