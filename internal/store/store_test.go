package store

import (
	"bytes"
	"database/sql"
	"math"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/flowstats/internal/hydro"
	"github.com/lox/flowstats/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Each pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func flow(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func testSeries() models.DailySeries {
	return models.NewDailySeries([]models.Observation{
		{Date: day(1975, 9, 29), Agency: "USGS", SiteID: "03335000", Discharge: flow(10), Quality: "A"},
		{Date: day(1975, 9, 30), Agency: "USGS", SiteID: "03335000", Discharge: flow(12), Quality: "A"},
		{Date: day(1975, 10, 1), Agency: "USGS", SiteID: "03335000", Quality: "A", Flags: []string{"discharge_missing"}},
		{Date: day(1975, 10, 2), Agency: "USGS", SiteID: "03335000", Discharge: flow(20), Quality: "P:e"},
	})
}

func TestUpsertAndGetStation(t *testing.T) {
	store := setupTestStore(t)

	station := models.Station{Label: "Wildcat", Source: "data/wildcat.txt", SiteID: "03335000"}
	if err := store.UpsertStation(station); err != nil {
		t.Fatalf("upsert station: %v", err)
	}

	got, err := store.GetStation("Wildcat")
	if err != nil {
		t.Fatalf("get station: %v", err)
	}
	if got == nil {
		t.Fatal("expected station, got nil")
	}
	if got.Source != station.Source {
		t.Errorf("Source = %q, want %q", got.Source, station.Source)
	}
	if got.SiteID != station.SiteID {
		t.Errorf("SiteID = %q, want %q", got.SiteID, station.SiteID)
	}
}

func TestUpsertStation_Update(t *testing.T) {
	store := setupTestStore(t)

	store.UpsertStation(models.Station{Label: "Tippe", Source: "old.txt"})
	store.UpsertStation(models.Station{Label: "Tippe", Source: "new.txt", SiteID: "03331500"})

	stations, err := store.GetStations()
	if err != nil {
		t.Fatalf("get stations: %v", err)
	}
	if len(stations) != 1 {
		t.Fatalf("got %d stations, want 1", len(stations))
	}
	if stations[0].Source != "new.txt" {
		t.Errorf("Source = %q, want %q", stations[0].Source, "new.txt")
	}
}

func TestGetStation_None(t *testing.T) {
	store := setupTestStore(t)

	got, err := store.GetStation("nope")
	if err != nil {
		t.Fatalf("get station: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestSaveAndGetObservations(t *testing.T) {
	store := setupTestStore(t)

	if err := store.SaveObservations("Wildcat", testSeries()); err != nil {
		t.Fatalf("save observations: %v", err)
	}

	got, err := store.GetObservations("Wildcat", day(1975, 9, 30), day(1975, 10, 1))
	if err != nil {
		t.Fatalf("get observations: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("got %d observations, want 2", got.Len())
	}
	if !got.At(0).Date.Equal(day(1975, 9, 30)) {
		t.Errorf("first date = %v, want 1975-09-30", got.At(0).Date)
	}
	if got.At(0).Discharge.Float64 != 12 {
		t.Errorf("discharge = %v, want 12", got.At(0).Discharge.Float64)
	}
	if !got.At(1).Missing() {
		t.Error("expected 1975-10-01 to be missing")
	}
	if len(got.At(1).Flags) != 1 || got.At(1).Flags[0] != "discharge_missing" {
		t.Errorf("flags = %v, want [discharge_missing]", got.At(1).Flags)
	}
}

func TestSaveObservations_Upserts(t *testing.T) {
	store := setupTestStore(t)

	store.SaveObservations("Wildcat", testSeries())
	update := models.NewDailySeries([]models.Observation{
		{Date: day(1975, 10, 1), SiteID: "03335000", Discharge: flow(15), Quality: "A"},
	})
	if err := store.SaveObservations("Wildcat", update); err != nil {
		t.Fatalf("save observations: %v", err)
	}

	sum, err := store.GetObservationSummary("Wildcat")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Rows != 4 {
		t.Errorf("Rows = %d, want 4", sum.Rows)
	}
	if sum.Missing != 0 {
		t.Errorf("Missing = %d, want 0", sum.Missing)
	}
	if sum.First.String != "1975-09-29" || sum.Last.String != "1975-10-02" {
		t.Errorf("span = %s..%s, want 1975-09-29..1975-10-02", sum.First.String, sum.Last.String)
	}
}

func TestSaveStats_RoundTripsNaN(t *testing.T) {
	store := setupTestStore(t)

	series := testSeries()
	agg := hydro.NewAggregator(hydro.Options{})
	annual := agg.Annual(series)
	monthly := agg.Monthly(series)
	if err := store.SaveStats("Wildcat", annual, monthly, hydro.ReduceAnnual(annual), hydro.ReduceMonthly(monthly)); err != nil {
		t.Fatalf("save stats: %v", err)
	}

	gotAnnual, err := store.GetAnnualStats("Wildcat")
	if err != nil {
		t.Fatalf("get annual: %v", err)
	}
	if len(gotAnnual) != 2 {
		t.Fatalf("got %d annual rows, want 2", len(gotAnnual))
	}
	if gotAnnual[0].WaterYear != 1974 || gotAnnual[1].WaterYear != 1975 {
		t.Errorf("water years = %d,%d, want 1974,1975", gotAnnual[0].WaterYear, gotAnnual[1].WaterYear)
	}
	if gotAnnual[0].MeanFlow != 11 {
		t.Errorf("MeanFlow = %v, want 11", gotAnnual[0].MeanFlow)
	}
	// One valid day in water year 1975: no 7Q window and no CV.
	if !math.IsNaN(gotAnnual[1].SevenQ) {
		t.Errorf("SevenQ = %v, want NaN", gotAnnual[1].SevenQ)
	}
	if !math.IsNaN(gotAnnual[1].CoeffVar) {
		t.Errorf("CoeffVar = %v, want NaN", gotAnnual[1].CoeffVar)
	}

	gotMonthly, err := store.GetMonthlyStats("Wildcat")
	if err != nil {
		t.Fatalf("get monthly: %v", err)
	}
	if len(gotMonthly) != 2 {
		t.Fatalf("got %d monthly rows, want 2", len(gotMonthly))
	}

	avg, err := store.GetAnnualAverage("Wildcat")
	if err != nil {
		t.Fatalf("get annual average: %v", err)
	}
	if avg == nil {
		t.Fatal("expected annual average, got nil")
	}
	if avg.Years != 2 {
		t.Errorf("Years = %d, want 2", avg.Years)
	}

	months, err := store.GetMonthlyAverages("Wildcat")
	if err != nil {
		t.Fatalf("get monthly averages: %v", err)
	}
	if len(months) != 12 {
		t.Fatalf("got %d monthly averages, want 12", len(months))
	}
	if months[0].Month != time.October || months[11].Month != time.September {
		t.Errorf("order = %v..%v, want October..September", months[0].Month, months[11].Month)
	}
	if months[1].Count != 0 || !math.IsNaN(months[1].MeanFlow) {
		t.Errorf("November = %+v, want zero count and NaN mean", months[1])
	}
}

func TestSaveStats_ReplacesPreviousRows(t *testing.T) {
	store := setupTestStore(t)

	annual := []models.AnnualStats{
		{WaterYear: 1970, PeriodStart: day(1970, 10, 1), MeanFlow: 1},
		{WaterYear: 1971, PeriodStart: day(1971, 10, 1), MeanFlow: 2},
	}
	store.SaveStats("Tippe", annual, nil, hydro.ReduceAnnual(annual), hydro.ReduceMonthly(nil))
	store.SaveStats("Tippe", annual[:1], nil, hydro.ReduceAnnual(annual[:1]), hydro.ReduceMonthly(nil))

	got, err := store.GetAnnualStats("Tippe")
	if err != nil {
		t.Fatalf("get annual: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d annual rows, want 1", len(got))
	}
}

func TestGetAnnualAverage_None(t *testing.T) {
	store := setupTestStore(t)

	got, err := store.GetAnnualAverage("nope")
	if err != nil {
		t.Fatalf("get annual average: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestRecomputeStats(t *testing.T) {
	store := setupTestStore(t)

	store.SaveObservations("Wildcat", testSeries())
	if err := store.RecomputeStats("Wildcat", day(1975, 10, 1), day(1975, 12, 31), hydro.Options{}); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	got, err := store.GetAnnualStats("Wildcat")
	if err != nil {
		t.Fatalf("get annual: %v", err)
	}
	if len(got) != 1 || got[0].WaterYear != 1975 {
		t.Fatalf("annual = %+v, want one row for 1975", got)
	}
	if got[0].MeanFlow != 20 {
		t.Errorf("MeanFlow = %v, want 20", got[0].MeanFlow)
	}
}

func TestPipelineRun_StartAndComplete(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.StartPipelineRun("Wildcat")
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected run ID")
	}

	run.RowsLoaded = sql.NullInt64{Int64: 100, Valid: true}
	run.AnnualPeriods = sql.NullInt64{Int64: 3, Valid: true}
	run.Success = true
	if err := store.CompletePipelineRun(run); err != nil {
		t.Fatalf("complete run: %v", err)
	}

	runs, err := store.GetRecentRuns(10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].ID != run.ID {
		t.Errorf("ID = %q, want %q", runs[0].ID, run.ID)
	}
	if !runs[0].Success {
		t.Error("expected success")
	}
	if !runs[0].FinishedAt.Valid {
		t.Error("expected finished_at to be set")
	}
	if runs[0].RowsLoaded.Int64 != 100 {
		t.Errorf("RowsLoaded = %d, want 100", runs[0].RowsLoaded.Int64)
	}
}

func TestPipelineRun_RecordsFailure(t *testing.T) {
	store := setupTestStore(t)

	run, _ := store.StartPipelineRun("Tippe")
	run.ErrorMessage = sql.NullString{String: "line 7: bad date", Valid: true}
	store.CompletePipelineRun(run)

	runs, err := store.GetRecentRuns(1)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if runs[0].Success {
		t.Error("expected failure")
	}
	if runs[0].ErrorMessage.String != "line 7: bad date" {
		t.Errorf("ErrorMessage = %q", runs[0].ErrorMessage.String)
	}
}

func TestRawSource_RoundTripAndDedup(t *testing.T) {
	store := setupTestStore(t)

	payload := bytes.Repeat([]byte("USGS\t03335000\t1975-10-01\t12.0\tA\n"), 50)
	id, err := store.StoreRawSource("", "Wildcat", "data/wildcat.txt", payload)
	if err != nil {
		t.Fatalf("store raw source: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	got, err := store.GetRawSource(id)
	if err != nil {
		t.Fatalf("get raw source: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("payload did not round trip")
	}

	dup, err := store.StoreRawSource("", "Wildcat", "data/wildcat.txt", payload)
	if err != nil {
		t.Fatalf("store duplicate: %v", err)
	}
	if dup != 0 {
		t.Errorf("duplicate id = %d, want 0", dup)
	}

	list, err := store.GetRawSources("Wildcat")
	if err != nil {
		t.Fatalf("list raw sources: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d raw sources, want 1", len(list))
	}
	if list[0].SizeBytes != int64(len(payload)) {
		t.Errorf("SizeBytes = %d, want %d", list[0].SizeBytes, len(payload))
	}
}

func TestMigrationVersion(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("migration version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}
}
