package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func insertRun(t *testing.T, d *DB, id, stage, startedAt string) {
	t.Helper()
	if err := d.InsertRun(context.Background(), &Run{ID: id, Stage: stage, Model: "claude-sonnet-4-5", StartedAt: startedAt}); err != nil {
		t.Fatalf("InsertRun %s: %v", id, err)
	}
}

func TestOpenAndMigrate(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	now := Timestamp(time.Now())
	insertRun(t, d, "run-1", "test", now)

	r, err := d.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r == nil {
		t.Fatal("expected run, got nil")
	}
	if r.Status != StatusRunning {
		t.Fatalf("expected status running, got %q", r.Status)
	}
	if r.Stage != "test" || r.Model != "claude-sonnet-4-5" || r.StartedAt != now {
		t.Fatalf("unexpected run %+v", r)
	}
	if r.EndedAt != nil || r.Summary != nil || r.Error != nil {
		t.Fatalf("expected nullable fields unset, got %+v", r)
	}
}

func TestMigrationsRecorded(t *testing.T) {
	d := openTestDB(t)

	var maxVersion int64
	err := d.Conn().QueryRow(
		`SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version WHERE version_id > 0`,
	).Scan(&maxVersion)
	if err != nil {
		t.Fatalf("query goose_db_version: %v", err)
	}
	if maxVersion != 2 {
		t.Fatalf("expected goose_db_version max version 2, got %d", maxVersion)
	}

	for _, idx := range []string{"idx_runs_started_at", "idx_runs_stage_started_at"} {
		var name string
		err := d.Conn().QueryRow(`SELECT name FROM sqlite_master WHERE type='index' AND name=?`, idx).Scan(&name)
		if err != nil {
			t.Errorf("index %q should exist after migrations: %v", idx, err)
		}
	}
}

func TestReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	insertRun(t, d, "run-1", "prod", "2026-01-01T00:00:00Z")
	d.Close()

	d, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer d.Close()

	r, err := d.GetRun(context.Background(), "run-1")
	if err != nil || r == nil {
		t.Fatalf("expected run to survive reopen, got %v, %v", r, err)
	}
}

func TestGetRunNotFound(t *testing.T) {
	d := openTestDB(t)

	r, err := d.GetRun(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil for non-existent run, got %+v", r)
	}
}

func TestInsertRunDuplicate(t *testing.T) {
	d := openTestDB(t)
	insertRun(t, d, "run-1", "prod", "2026-01-01T00:00:00Z")

	err := d.InsertRun(context.Background(), &Run{ID: "run-1", Stage: "prod", Model: "m", StartedAt: "2026-01-01T00:00:00Z"})
	if err == nil {
		t.Fatal("expected duplicate id to fail")
	}
}

func TestFinishRun(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	insertRun(t, d, "run-1", "test", "2026-01-01T00:00:00Z")

	err := d.FinishRun(ctx, "run-1", Outcome{
		Status:     StatusCompleted,
		EndedAt:    "2026-01-01T00:00:05Z",
		ToolCalls:  2,
		ToolErrors: 1,
		Summary:    "Found 2 items.",
	})
	if err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	r, err := d.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", r.Status)
	}
	if r.EndedAt == nil || *r.EndedAt != "2026-01-01T00:00:05Z" {
		t.Fatalf("unexpected ended_at %v", r.EndedAt)
	}
	if r.ToolCalls != 2 || r.ToolErrors != 1 {
		t.Fatalf("unexpected tool counts %d/%d", r.ToolCalls, r.ToolErrors)
	}
	if r.TextEmitted {
		t.Fatal("expected text_emitted false")
	}
	if !r.Summarized || r.Summary == nil || *r.Summary != "Found 2 items." {
		t.Fatalf("expected summary recorded, got %+v", r)
	}
	if r.Error != nil {
		t.Fatalf("expected no error, got %q", *r.Error)
	}
}

func TestFinishRunFailed(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	insertRun(t, d, "run-1", "prod", "2026-01-01T00:00:00Z")

	if err := d.FinishRun(ctx, "run-1", Outcome{Status: StatusFailed, EndedAt: "2026-01-01T00:00:01Z", TextEmitted: true, Error: "upstream"}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	r, _ := d.GetRun(ctx, "run-1")
	if r.Status != StatusFailed || r.Error == nil || *r.Error != "upstream" {
		t.Fatalf("unexpected run %+v", r)
	}
	if !r.TextEmitted || r.Summarized {
		t.Fatalf("unexpected flags %+v", r)
	}
}

func TestFinishRunUnknown(t *testing.T) {
	d := openTestDB(t)
	err := d.FinishRun(context.Background(), "ghost", Outcome{Status: StatusCompleted})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	insertRun(t, d, "a", "prod", "2026-01-01T00:00:00Z")
	insertRun(t, d, "b", "test", "2026-01-02T00:00:00Z")
	insertRun(t, d, "c", "prod", "2026-01-03T00:00:00Z")
	if err := d.FinishRun(ctx, "a", Outcome{Status: StatusCompleted, EndedAt: "2026-01-01T00:00:01Z"}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	tests := []struct {
		name string
		f    RunFilter
		want []string
	}{
		{"all newest first", RunFilter{}, []string{"c", "b", "a"}},
		{"by stage", RunFilter{Stage: "prod"}, []string{"c", "a"}},
		{"by status", RunFilter{Status: StatusRunning}, []string{"c", "b"}},
		{"stage and status", RunFilter{Stage: "prod", Status: StatusCompleted}, []string{"a"}},
		{"paged", RunFilter{Limit: 1, Offset: 1}, []string{"b"}},
		{"no match", RunFilter{Stage: "staging"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := d.ListRuns(ctx, tt.f)
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			var got []string
			for _, r := range runs {
				got = append(got, r.ID)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestPruneRuns(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	insertRun(t, d, "old-done", "prod", "2026-01-01T00:00:00Z")
	insertRun(t, d, "old-running", "prod", "2026-01-01T00:00:00Z")
	insertRun(t, d, "new-done", "prod", "2026-03-01T00:00:00Z")
	for _, id := range []string{"old-done", "new-done"} {
		if err := d.FinishRun(ctx, id, Outcome{Status: StatusCompleted}); err != nil {
			t.Fatalf("FinishRun: %v", err)
		}
	}

	n, err := d.PruneRuns(ctx, "2026-02-01T00:00:00Z")
	if err != nil {
		t.Fatalf("PruneRuns: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
	if r, _ := d.GetRun(ctx, "old-running"); r == nil {
		t.Fatal("running runs must not be pruned")
	}
}

func TestTimestampSortsLexically(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(100 * time.Millisecond),
		base.Add(time.Second),
		base.Add(time.Second + 5*time.Millisecond),
	}
	for i := 1; i < len(times); i++ {
		a, b := Timestamp(times[i-1]), Timestamp(times[i])
		if len(a) != len(b) {
			t.Fatalf("expected fixed width, got %q and %q", a, b)
		}
		if a >= b {
			t.Fatalf("expected %q < %q", a, b)
		}
	}
}
