// Package report renders pipeline results as the four metric tables and
// writes them to disk.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/lox/flowstats/internal/models"
	"github.com/lox/flowstats/internal/pipeline"
)

const (
	AnnualFile         = "Annual_Metrics.csv"
	MonthlyFile        = "Monthly_Metrics.csv"
	AnnualAverageFile  = "Average_Annual_Metrics.txt"
	MonthlyAverageFile = "Average_Monthly_Metrics.txt"
)

const dateLayout = "2006-01-02"

// floats is shorthand for a named float column.
func floats(name string, vals []float64) series.Series {
	return series.New(vals, series.Float, name)
}

func strs(name string, vals []string) series.Series {
	return series.New(vals, series.String, name)
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func pick[T any](rows []T, field func(T) float64) []float64 {
	vals := make([]float64, len(rows))
	for i, r := range rows {
		vals[i] = field(r)
	}
	return vals
}

// AnnualFrame is one row per water year.
func AnnualFrame(station string, rows []models.AnnualStats) dataframe.DataFrame {
	dates := make([]string, len(rows))
	sites := make([]string, len(rows))
	for i, r := range rows {
		dates[i] = r.PeriodStart.Format(dateLayout)
		sites[i] = r.SiteID
	}
	return dataframe.New(
		strs("Date", dates),
		strs("site_no", sites),
		floats("Mean Flow", pick(rows, func(r models.AnnualStats) float64 { return r.MeanFlow })),
		floats("Peak Flow", pick(rows, func(r models.AnnualStats) float64 { return r.PeakFlow })),
		floats("Median Flow", pick(rows, func(r models.AnnualStats) float64 { return r.MedianFlow })),
		floats("Coeff Var", pick(rows, func(r models.AnnualStats) float64 { return r.CoeffVar })),
		floats("Skew", pick(rows, func(r models.AnnualStats) float64 { return r.Skew })),
		floats("Tqmean", pick(rows, func(r models.AnnualStats) float64 { return r.Tqmean })),
		floats("R-B Index", pick(rows, func(r models.AnnualStats) float64 { return r.RBIndex })),
		floats("7Q", pick(rows, func(r models.AnnualStats) float64 { return r.SevenQ })),
		floats("3xMedian", pick(rows, func(r models.AnnualStats) float64 { return r.ExceedCount })),
		strs("Station", repeat(station, len(rows))),
	)
}

// MonthlyFrame is one row per calendar month.
func MonthlyFrame(station string, rows []models.MonthlyStats) dataframe.DataFrame {
	dates := make([]string, len(rows))
	sites := make([]string, len(rows))
	for i, r := range rows {
		dates[i] = r.PeriodStart.Format(dateLayout)
		sites[i] = r.SiteID
	}
	return dataframe.New(
		strs("Date", dates),
		strs("site_no", sites),
		floats("Mean Flow", pick(rows, func(r models.MonthlyStats) float64 { return r.MeanFlow })),
		floats("Coeff Var", pick(rows, func(r models.MonthlyStats) float64 { return r.CoeffVar })),
		floats("Tqmean", pick(rows, func(r models.MonthlyStats) float64 { return r.Tqmean })),
		floats("R-B Index", pick(rows, func(r models.MonthlyStats) float64 { return r.RBIndex })),
		strs("Station", repeat(station, len(rows))),
	)
}

// AnnualAverageFrame is a single row of multi-year means.
func AnnualAverageFrame(station string, a models.AnnualAverage) dataframe.DataFrame {
	return dataframe.New(
		strs("site_no", []string{a.SiteID}),
		floats("Mean Flow", []float64{a.MeanFlow}),
		floats("Peak Flow", []float64{a.PeakFlow}),
		floats("Median Flow", []float64{a.MedianFlow}),
		floats("Coeff Var", []float64{a.CoeffVar}),
		floats("Skew", []float64{a.Skew}),
		floats("Tqmean", []float64{a.Tqmean}),
		floats("R-B Index", []float64{a.RBIndex}),
		floats("7Q", []float64{a.SevenQ}),
		floats("3xMedian", []float64{a.ExceedCount}),
		strs("Station", []string{station}),
	)
}

// MonthlyAverageFrame is twelve rows in water-year order, keyed by calendar
// month number.
func MonthlyAverageFrame(station string, rows []models.MonthlyAverage) dataframe.DataFrame {
	months := make([]int, len(rows))
	sites := make([]string, len(rows))
	for i, r := range rows {
		months[i] = int(r.Month)
		sites[i] = r.SiteID
	}
	return dataframe.New(
		series.New(months, series.Int, "Month"),
		strs("site_no", sites),
		floats("Mean Flow", pick(rows, func(r models.MonthlyAverage) float64 { return r.MeanFlow })),
		floats("Coeff Var", pick(rows, func(r models.MonthlyAverage) float64 { return r.CoeffVar })),
		floats("Tqmean", pick(rows, func(r models.MonthlyAverage) float64 { return r.Tqmean })),
		floats("R-B Index", pick(rows, func(r models.MonthlyAverage) float64 { return r.RBIndex })),
		strs("Station", repeat(station, len(rows))),
	)
}

// Tables holds the four combined tables, stations stacked in input order.
type Tables struct {
	Annual         dataframe.DataFrame
	Monthly        dataframe.DataFrame
	AnnualAverage  dataframe.DataFrame
	MonthlyAverage dataframe.DataFrame
}

// Build stacks every result into the four output tables.
func Build(results []*pipeline.Result) (*Tables, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no results to report")
	}

	var t Tables
	for i, r := range results {
		label := r.Station.Label
		annual := AnnualFrame(label, r.Annual)
		monthly := MonthlyFrame(label, r.Monthly)
		annualAvg := AnnualAverageFrame(label, r.AnnualAverage)
		monthlyAvg := MonthlyAverageFrame(label, r.MonthlyAverages)
		if i == 0 {
			t = Tables{Annual: annual, Monthly: monthly, AnnualAverage: annualAvg, MonthlyAverage: monthlyAvg}
			continue
		}
		t.Annual = t.Annual.RBind(annual)
		t.Monthly = t.Monthly.RBind(monthly)
		t.AnnualAverage = t.AnnualAverage.RBind(annualAvg)
		t.MonthlyAverage = t.MonthlyAverage.RBind(monthlyAvg)
	}

	for name, df := range map[string]dataframe.DataFrame{
		AnnualFile: t.Annual, MonthlyFile: t.Monthly,
		AnnualAverageFile: t.AnnualAverage, MonthlyAverageFile: t.MonthlyAverage,
	} {
		if df.Err != nil {
			return nil, fmt.Errorf("build %s: %w", name, df.Err)
		}
	}
	return &t, nil
}

// Records renders df with a header row. Floats keep full precision in plain
// decimal notation; undefined values print as NaN.
func Records(df dataframe.DataFrame) [][]string {
	records := make([][]string, df.Nrow()+1)
	records[0] = df.Names()
	for i := 1; i < len(records); i++ {
		records[i] = make([]string, df.Ncol())
	}
	for j, name := range df.Names() {
		col := df.Col(name)
		if col.Type() == series.Float {
			for i, v := range col.Float() {
				records[i+1][j] = formatFloat(v)
			}
			continue
		}
		for i, v := range col.Records() {
			records[i+1][j] = v
		}
	}
	return records
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes df comma delimited.
func WriteCSV(w io.Writer, df dataframe.DataFrame) error {
	return writeDelimited(w, df, ',')
}

// WriteTSV writes df tab delimited.
func WriteTSV(w io.Writer, df dataframe.DataFrame) error {
	return writeDelimited(w, df, '\t')
}

func writeDelimited(w io.Writer, df dataframe.DataFrame, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.WriteAll(Records(df)); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	return nil
}

// Write renders results into dir and returns the paths written.
func Write(dir string, results []*pipeline.Result) ([]string, error) {
	tables, err := Build(results)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	outputs := []struct {
		name string
		df   dataframe.DataFrame
		tsv  bool
	}{
		{AnnualFile, tables.Annual, false},
		{MonthlyFile, tables.Monthly, false},
		{AnnualAverageFile, tables.AnnualAverage, true},
		{MonthlyAverageFile, tables.MonthlyAverage, true},
	}

	paths := make([]string, 0, len(outputs))
	for _, o := range outputs {
		path := filepath.Join(dir, o.name)
		if err := writeFile(path, o.df, o.tsv); err != nil {
			return paths, err
		}
		log.Printf("report: wrote %s (%d rows)", path, o.df.Nrow())
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, df dataframe.DataFrame, tsv bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if tsv {
		err = WriteTSV(f, df)
	} else {
		err = WriteCSV(f, df)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
