package observability

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/convwatch/dbopen"
)

func TestMetricsManager_RecordAndQuery(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	mm := NewMetricsManager(db, 100, time.Hour, nil)
	defer mm.Close()

	mm.With(map[string]string{"page_id": "p1"}).RecordSimple(MetricScanItems, 12, "count")
	mm.RecordSimple(MetricCrawlSteps, 4, "count")
	mm.Flush()

	ctx := context.Background()
	got, err := mm.Query(ctx, MetricScanItems, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Value != 12 || got[0].Unit != "count" {
		t.Fatalf("scan_items: %+v", got)
	}
	if got[0].Labels["page_id"] != "p1" {
		t.Errorf("labels: %v", got[0].Labels)
	}

	all, err := mm.Query(ctx, "", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("all: got %d, want 2", len(all))
	}
}

func TestMetricsManager_QuerySince(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	mm := NewMetricsManager(db, 100, time.Hour, nil)
	defer mm.Close()

	now := time.Now()
	mm.Record(&Metric{Name: "m", Timestamp: now.Add(-2 * time.Hour), Value: 1})
	mm.Record(&Metric{Name: "m", Timestamp: now, Value: 2})
	mm.Flush()

	since := now.Add(-time.Hour)
	got, err := mm.Query(context.Background(), "m", &since, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Value != 2 {
		t.Errorf("since: %+v", got)
	}
}

func TestMetricsManager_FlushOnFullBuffer(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	mm := NewMetricsManager(db, 2, time.Hour, nil)
	defer mm.Close()

	mm.RecordSimple("a", 1, "count")
	mm.RecordSimple("b", 1, "count")

	got, _ := mm.Query(context.Background(), "", nil, 0)
	if len(got) != 2 {
		t.Errorf("rows after full buffer: got %d, want 2", len(got))
	}
}

func TestMetricsManager_CloseFlushes(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	mm := NewMetricsManager(db, 100, time.Hour, nil)
	mm.RecordSimple("a", 1, "count")
	mm.Close()
	mm.Close()

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM metrics_timeseries`).Scan(&n)
	if n != 1 {
		t.Errorf("rows: got %d, want 1", n)
	}
}

func TestInit(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatal(err)
	}
	var n int
	db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='metrics_timeseries'").Scan(&n)
	if n != 1 {
		t.Fatal("metrics_timeseries not created")
	}
}
