package report

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/flowstats/internal/hydro"
	"github.com/lox/flowstats/internal/models"
	"github.com/lox/flowstats/internal/pipeline"
)

func result(label, site string, years ...int) *pipeline.Result {
	var annual []models.AnnualStats
	var monthly []models.MonthlyStats
	for _, wy := range years {
		start := hydro.WaterYearStart(wy)
		annual = append(annual, models.AnnualStats{
			WaterYear: wy, PeriodStart: start, SiteID: site,
			MeanFlow: 10, PeakFlow: 20, MedianFlow: 9, CoeffVar: 50, Skew: 1,
			Tqmean: 0.3, RBIndex: 0.1, SevenQ: 2, ExceedCount: 4,
		})
		monthly = append(monthly, models.MonthlyStats{
			PeriodStart: start, SiteID: site, MeanFlow: 10, CoeffVar: math.NaN(), Tqmean: 0.3, RBIndex: 0.1,
		})
	}
	return &pipeline.Result{
		Station:         models.Station{Label: label, SiteID: site},
		Annual:          annual,
		Monthly:         monthly,
		AnnualAverage:   hydro.ReduceAnnual(annual),
		MonthlyAverages: hydro.ReduceMonthly(monthly),
	}
}

func readTable(t *testing.T, path string, comma rune) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	records, err := r.ReadAll()
	require.NoError(t, err)
	return records
}

func TestBuild_StacksStationsInOrder(t *testing.T) {
	tables, err := Build([]*pipeline.Result{
		result("Wildcat", "03335000", 1970, 1971),
		result("Tippe", "03331500", 1970),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, tables.Annual.Nrow())
	assert.Equal(t, 3, tables.Monthly.Nrow())
	assert.Equal(t, 2, tables.AnnualAverage.Nrow())
	assert.Equal(t, 24, tables.MonthlyAverage.Nrow())

	assert.Equal(t, []string{"Wildcat", "Wildcat", "Tippe"}, tables.Annual.Col("Station").Records())
	assert.Equal(t, []string{"1970-10-01", "1971-10-01", "1970-10-01"}, tables.Annual.Col("Date").Records())
}

func TestBuild_ColumnNames(t *testing.T) {
	tables, err := Build([]*pipeline.Result{result("Wildcat", "03335000", 1970)})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Date", "site_no", "Mean Flow", "Peak Flow", "Median Flow", "Coeff Var",
		"Skew", "Tqmean", "R-B Index", "7Q", "3xMedian", "Station",
	}, tables.Annual.Names())
	assert.Equal(t, []string{
		"Date", "site_no", "Mean Flow", "Coeff Var", "Tqmean", "R-B Index", "Station",
	}, tables.Monthly.Names())
	assert.Equal(t, []string{
		"Month", "site_no", "Mean Flow", "Coeff Var", "Tqmean", "R-B Index", "Station",
	}, tables.MonthlyAverage.Names())
}

func TestBuild_MonthlyAveragesInWaterYearOrder(t *testing.T) {
	tables, err := Build([]*pipeline.Result{result("Wildcat", "03335000", 1970)})
	require.NoError(t, err)

	months := tables.MonthlyAverage.Col("Month").Records()
	assert.Equal(t, []string{"10", "11", "12", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, months)
}

func TestBuild_StationWithNoPeriods(t *testing.T) {
	tables, err := Build([]*pipeline.Result{
		result("Wildcat", "03335000", 1970),
		result("Empty", ""),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, tables.Annual.Nrow())
	assert.Equal(t, 2, tables.AnnualAverage.Nrow())
}

func TestBuild_NoResults(t *testing.T) {
	_, err := Build(nil)
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := Write(dir, []*pipeline.Result{
		result("Wildcat", "03335000", 1970, 1971),
		result("Tippe", "03331500", 1970),
	})
	require.NoError(t, err)
	require.Len(t, paths, 4)

	annual := readTable(t, filepath.Join(dir, AnnualFile), ',')
	require.Len(t, annual, 4)
	assert.Equal(t, "Date", annual[0][0])
	assert.Equal(t, "Station", annual[0][len(annual[0])-1])
	assert.Equal(t, "Tippe", annual[3][len(annual[3])-1])

	monthly := readTable(t, filepath.Join(dir, MonthlyFile), ',')
	assert.Len(t, monthly, 4)

	annualAvg := readTable(t, filepath.Join(dir, AnnualAverageFile), '\t')
	require.Len(t, annualAvg, 3)
	assert.Equal(t, "site_no", annualAvg[0][0])
	assert.Equal(t, "03335000", annualAvg[1][0])

	monthlyAvg := readTable(t, filepath.Join(dir, MonthlyAverageFile), '\t')
	require.Len(t, monthlyAvg, 25)
	assert.Equal(t, "10", monthlyAvg[1][0])
	assert.Equal(t, "Tippe", monthlyAvg[24][len(monthlyAvg[24])-1])
}

func TestWrite_MissingStatisticIsNaN(t *testing.T) {
	dir := t.TempDir()
	_, err := Write(dir, []*pipeline.Result{result("Wildcat", "03335000", 1970)})
	require.NoError(t, err)

	monthly := readTable(t, filepath.Join(dir, MonthlyFile), ',')
	require.Len(t, monthly, 2)
	assert.Equal(t, "NaN", monthly[1][3])
}

func TestAnnualFrame_Values(t *testing.T) {
	df := AnnualFrame("Wildcat", []models.AnnualStats{{
		PeriodStart: time.Date(1980, 10, 1, 0, 0, 0, 0, time.UTC), SiteID: "1",
		MeanFlow: 12.5, PeakFlow: 40, SevenQ: 3.25,
	}})
	require.NoError(t, df.Err)

	assert.InDelta(t, 12.5, df.Col("Mean Flow").Float()[0], 1e-9)
	assert.InDelta(t, 3.25, df.Col("7Q").Float()[0], 1e-9)
}

func TestWrite_KeepsFullPrecision(t *testing.T) {
	r := result("Wildcat", "03335000", 1970)
	r.Annual[0].RBIndex = 0.0000004
	r.Annual[0].Tqmean = 0.123456789
	r.Annual[0].PeakFlow = 1234567.5
	r.Annual[0].ExceedCount = 3

	dir := t.TempDir()
	_, err := Write(dir, []*pipeline.Result{r})
	require.NoError(t, err)

	annual := readTable(t, filepath.Join(dir, AnnualFile), ',')
	require.Len(t, annual, 2)
	header, row := annual[0], annual[1]
	col := func(name string) string {
		for i, h := range header {
			if h == name {
				return row[i]
			}
		}
		t.Fatalf("no column %q", name)
		return ""
	}

	assert.Equal(t, "0.0000004", col("R-B Index"))
	assert.Equal(t, "0.123456789", col("Tqmean"))
	assert.Equal(t, "1234567.5", col("Peak Flow"))
	assert.Equal(t, "3", col("3xMedian"))
}

func TestRecords_FormatsFloatsAndStrings(t *testing.T) {
	df := AnnualFrame("Wildcat", []models.AnnualStats{{
		PeriodStart: time.Date(1980, 10, 1, 0, 0, 0, 0, time.UTC), SiteID: "03335000",
		MeanFlow: math.NaN(), ExceedCount: 12,
	}})
	records := Records(df)

	require.Len(t, records, 2)
	assert.Equal(t, df.Names(), records[0])
	assert.Equal(t, "1980-10-01", records[1][0])
	assert.Equal(t, "03335000", records[1][1])
	assert.Equal(t, "NaN", records[1][2])
	assert.Equal(t, "12", records[1][10])
}
