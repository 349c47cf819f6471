package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/roach88/cvdsim/internal/metrics"
	"github.com/roach88/cvdsim/internal/testutil"
)

func testEntries() []metrics.Entry {
	return []metrics.Entry{
		{Key: "acute_ischemic_stroke_person_time_sbp_high", Disease: "ischemic_stroke", Measure: "person_time", Value: 1.25},
		{Key: "acute_ischemic_stroke_person_time_sbp_normal", Disease: "ischemic_stroke", Measure: "person_time", Value: 0.5},
		{Key: "angina_person_time_sbp_high", Disease: "ischemic_heart_disease", Measure: "person_time", Value: 3},
		{Key: "susceptible_to_ischemic_stroke_to_acute_ischemic_stroke_event_count_sbp_high", Disease: "ischemic_stroke", Measure: "event_count", Value: 2},
	}
}

func TestWriteRun_GeneratesUUIDv7(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run, err := s.WriteRun(ctx, Run{ModelHash: "abc", Seed: 7, Steps: 52})
	if err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}

	id, err := uuid.Parse(run.ID)
	if err != nil {
		t.Fatalf("run ID %q is not a UUID: %v", run.ID, err)
	}
	if id.Version() != 7 {
		t.Errorf("run ID version = %d, want 7", id.Version())
	}
	if run.Seq != 1 {
		t.Errorf("Seq = %d, want 1", run.Seq)
	}
	if run.Config != "{}" {
		t.Errorf("Config = %q, want {}", run.Config)
	}
}

func TestWriteRun_FixedGenerator(t *testing.T) {
	s := createTestStore(t, WithRunIDGenerator(testutil.NewFixedIDGenerator("run-1")))
	run, err := s.WriteRun(context.Background(), Run{ModelHash: "abc"})
	if err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	if run.ID != "run-1" {
		t.Errorf("ID = %q, want run-1", run.ID)
	}
}

func TestWriteRun_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.WriteRun(ctx, Run{ID: "r", ModelHash: "h"}); err != nil {
		t.Fatalf("first WriteRun() failed: %v", err)
	}
	if _, err := s.WriteRun(ctx, Run{ID: "r", ModelHash: "h"}); err == nil {
		t.Error("expected error writing a duplicate run ID")
	}
}

func TestReadRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := Run{
		ID:        "run-a",
		ModelHash: "deadbeef",
		Seed:      math.MaxUint64, // high bit set
		Steps:     104,
		Config:    `{"seed":"18446744073709551615"}`,
	}
	written, err := s.WriteRun(ctx, want)
	if err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}

	got, err := s.ReadRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if got != written {
		t.Errorf("ReadRun() = %+v, want %+v", got, written)
	}
	if got.Seed != math.MaxUint64 {
		t.Errorf("Seed = %d, want MaxUint64", got.Seed)
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadRun() error = %v, want sql.ErrNoRows", err)
	}
}

func TestListRuns_CreationOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// IDs deliberately sort opposite to creation order
	for _, id := range []string{"c", "b", "a"} {
		if _, err := s.WriteRun(ctx, Run{ID: id, ModelHash: "h"}); err != nil {
			t.Fatalf("WriteRun(%s) failed: %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("ListRuns() returned %d runs, want 3", len(runs))
	}
	for i, want := range []string{"c", "b", "a"} {
		if runs[i].ID != want || runs[i].Seq != int64(i+1) {
			t.Errorf("runs[%d] = (%s, %d), want (%s, %d)", i, runs[i].ID, runs[i].Seq, want, i+1)
		}
	}

	latest, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun() failed: %v", err)
	}
	if latest.ID != "a" {
		t.Errorf("LatestRun() = %s, want a", latest.ID)
	}
}

func TestListRuns_Empty(t *testing.T) {
	s := createTestStore(t)
	runs, err := s.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Errorf("ListRuns() = %v, want empty non-nil slice", runs)
	}
}

func TestWriteReport_ReadBackSorted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run, err := s.WriteRun(ctx, Run{ID: "r", ModelHash: "h"})
	if err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}

	// Write in reverse order; reads come back sorted by key
	entries := testEntries()
	reversed := make([]metrics.Entry, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	if err := s.WriteReport(ctx, run.ID, reversed); err != nil {
		t.Fatalf("WriteReport() failed: %v", err)
	}

	got, err := s.ReadReport(ctx, run.ID, ReportFilter{})
	if err != nil {
		t.Fatalf("ReadReport() failed: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("ReadReport() returned %d rows, want %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i] != entries[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], entries[i])
		}
	}
}

func TestWriteReport_AllOrNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.WriteRun(ctx, Run{ID: "r", ModelHash: "h"}); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}

	entries := testEntries()
	entries = append(entries, entries[0]) // duplicate key aborts the transaction
	if err := s.WriteReport(ctx, "r", entries); err == nil {
		t.Fatal("expected error for duplicate key")
	}

	got, err := s.ReadReport(ctx, "r", ReportFilter{})
	if err != nil {
		t.Fatalf("ReadReport() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadReport() returned %d rows after failed write, want 0", len(got))
	}
}

func TestWriteRunAtomic(t *testing.T) {
	s := createTestStore(t, WithRunIDGenerator(testutil.NewFixedIDGenerator("atomic")))
	ctx := context.Background()

	run, err := s.WriteRunAtomic(ctx, Run{ModelHash: "h", Seed: 1, Steps: 2}, testEntries())
	if err != nil {
		t.Fatalf("WriteRunAtomic() failed: %v", err)
	}
	if run.ID != "atomic" {
		t.Errorf("ID = %q, want atomic", run.ID)
	}

	got, err := s.ReadReport(ctx, run.ID, ReportFilter{})
	if err != nil {
		t.Fatalf("ReadReport() failed: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("ReadReport() returned %d rows, want 4", len(got))
	}

	// A failing report rolls the run back too
	bad := append(testEntries(), testEntries()[0])
	if _, err := s.WriteRunAtomic(ctx, Run{ID: "rolled-back", ModelHash: "h"}, bad); err == nil {
		t.Fatal("expected error for duplicate key")
	}
	if _, err := s.ReadRun(ctx, "rolled-back"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("run survived a failed atomic write: %v", err)
	}
}

func TestReadReport_Filters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.WriteRunAtomic(ctx, Run{ID: "r", ModelHash: "h"}, testEntries()); err != nil {
		t.Fatalf("WriteRunAtomic() failed: %v", err)
	}

	tests := []struct {
		name   string
		filter ReportFilter
		want   []string
	}{
		{
			name:   "disease",
			filter: ReportFilter{Disease: "ischemic_heart_disease"},
			want:   []string{"angina_person_time_sbp_high"},
		},
		{
			name:   "measure",
			filter: ReportFilter{Measure: "event_count"},
			want:   []string{"susceptible_to_ischemic_stroke_to_acute_ischemic_stroke_event_count_sbp_high"},
		},
		{
			name:   "match",
			filter: ReportFilter{Match: "acute_ischemic_stroke_person"},
			want: []string{
				"acute_ischemic_stroke_person_time_sbp_high",
				"acute_ischemic_stroke_person_time_sbp_normal",
			},
		},
		{
			name:   "match treats percent literally",
			filter: ReportFilter{Match: "%"},
			want:   []string{},
		},
		{
			name:   "stratum suffix",
			filter: ReportFilter{Stratum: "sbp_normal"},
			want:   []string{"acute_ischemic_stroke_person_time_sbp_normal"},
		},
		{
			name:   "combined",
			filter: ReportFilter{Disease: "ischemic_stroke", Measure: "person_time", Stratum: "sbp_high"},
			want:   []string{"acute_ischemic_stroke_person_time_sbp_high"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ReadReport(ctx, "r", tt.filter)
			if err != nil {
				t.Fatalf("ReadReport() failed: %v", err)
			}
			keys := make([]string, len(got))
			for i, e := range got {
				keys[i] = e.Key
			}
			if len(keys) != len(tt.want) {
				t.Fatalf("keys = %v, want %v", keys, tt.want)
			}
			for i := range keys {
				if keys[i] != tt.want[i] {
					t.Errorf("keys[%d] = %s, want %s", i, keys[i], tt.want[i])
				}
			}
		})
	}
}

func TestReportFilter_CompileParameterized(t *testing.T) {
	query, params := ReportFilter{Disease: "x'; DROP TABLE runs; --"}.Compile("r")
	if len(params) != 2 {
		t.Fatalf("params = %v, want 2 values", params)
	}
	if params[1] != "x'; DROP TABLE runs; --" {
		t.Errorf("disease not passed as parameter: %v", params)
	}
	want := "SELECT key, disease, measure, value FROM report_values WHERE run_id = ? AND disease = ? ORDER BY key COLLATE BINARY ASC"
	if query != want {
		t.Errorf("query =\n%s\nwant\n%s", query, want)
	}
}

func TestCompareReports(t *testing.T) {
	stored := testEntries()

	if diff := CompareReports(stored, testEntries()); len(diff) != 0 {
		t.Errorf("identical reports differ: %v", diff)
	}

	replayed := testEntries()
	replayed[1].Value = math.Nextafter(replayed[1].Value, 1) // one ulp
	replayed = replayed[:3]
	replayed = append(replayed, metrics.Entry{Key: "extra", Value: 0})

	diff := CompareReports(stored, replayed)
	if len(diff) != 3 {
		t.Fatalf("CompareReports() = %v, want 3 mismatches", diff)
	}
	if diff[0].Key != "acute_ischemic_stroke_person_time_sbp_normal" || diff[0].Missing != "" {
		t.Errorf("diff[0] = %+v", diff[0])
	}
	if diff[1].Key != "extra" || diff[1].Missing != "stored" {
		t.Errorf("diff[1] = %+v", diff[1])
	}
	if diff[2].Missing != "replayed" {
		t.Errorf("diff[2] = %+v", diff[2])
	}
}

func TestCompareReports_SignedZero(t *testing.T) {
	a := []metrics.Entry{{Key: "k", Value: 0}}
	b := []metrics.Entry{{Key: "k", Value: math.Copysign(0, -1)}}
	if diff := CompareReports(a, b); len(diff) != 1 {
		t.Errorf("+0 and -0 compared equal")
	}
}
