package ingest

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lox/flowstats/internal/models"
)

const rdbFields = 5

// noDataSentinels are the values USGS writes in place of a daily discharge.
var noDataSentinels = map[string]bool{
	"Eqp": true, // equipment malfunction
	"Ice": true,
	"Ssn": true, // seasonal
	"Bkw": true, // backwater
	"Dis": true, // discontinued
	"Mnt": true, // maintenance
	"Rat": true, // rating being developed
	"Fld": true, // flood damage
	"Dry": true,
	"***": true,
	"NaN": true,
	"NA":  true,
	"":    true,
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006"}

// descriptorField matches an RDB column format spec such as "5s", "20d" or "14n".
var descriptorField = regexp.MustCompile(`^\d+[sdn]$`)

// ParseError reports a malformed data row. A ParseError is fatal for the
// whole source.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// LoadSummary describes what the loader saw while reading a source.
type LoadSummary struct {
	Rows        int
	Missing     int
	Negative    int
	Sentinels   map[string]int
	Descriptors int
}

// Load parses a USGS daily-value record (agency_cd, site_no, Date,
// Discharge, Quality) and returns the series with its missing-value count.
func Load(r io.Reader) (models.DailySeries, int, error) {
	series, summary, err := LoadWithSummary(r)
	if err != nil {
		return models.DailySeries{}, 0, err
	}
	return series, summary.Missing, nil
}

// LoadWithSummary is Load with the full loader summary. Comment lines and
// blank lines are ignored and the first remaining line is the column header.
// Sentinel and negative discharges become missing; the rows are kept.
func LoadWithSummary(r io.Reader) (models.DailySeries, LoadSummary, error) {
	summary := LoadSummary{Sentinels: make(map[string]int)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var obs []models.Observation
	seen := make(map[time.Time]int)
	headerSkipped := false
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !headerSkipped {
			headerSkipped = true
			continue
		}

		raw := strings.TrimRight(scanner.Text(), "\r")
		fields := splitFields(raw)
		if n := len(fields); n == rdbFields+1 && fields[n-1] == "" {
			fields = fields[:rdbFields]
		}
		if isDescriptorRow(fields) {
			summary.Descriptors++
			continue
		}
		if len(fields) != rdbFields {
			return models.DailySeries{}, summary, &ParseError{
				Line:   lineNo,
				Text:   raw,
				Reason: fmt.Sprintf("expected %d fields, got %d", rdbFields, len(fields)),
			}
		}

		date, err := parseDate(fields[2])
		if err != nil {
			return models.DailySeries{}, summary, &ParseError{Line: lineNo, Text: raw, Reason: "unparseable date"}
		}
		if prev, dup := seen[date]; dup {
			return models.DailySeries{}, summary, &ParseError{
				Line:   lineNo,
				Text:   raw,
				Reason: fmt.Sprintf("duplicate date (first seen on line %d)", prev),
			}
		}
		seen[date] = lineNo

		o := models.Observation{
			Date:    date,
			Agency:  fields[0],
			SiteID:  fields[1],
			Quality: fields[4],
		}

		value := fields[3]
		switch {
		case noDataSentinels[value]:
			summary.Sentinels[value]++
		default:
			q, err := strconv.ParseFloat(value, 64)
			if err != nil || math.IsInf(q, 0) {
				return models.DailySeries{}, summary, &ParseError{Line: lineNo, Text: raw, Reason: "unparseable discharge"}
			}
			if q < 0 {
				summary.Negative++
			}
			o.Discharge = sql.NullFloat64{Float64: q, Valid: !math.IsNaN(q)}
		}

		obs = append(obs, ApplyQC(o))
	}
	if err := scanner.Err(); err != nil {
		return models.DailySeries{}, summary, fmt.Errorf("read source: %w", err)
	}

	series := models.NewDailySeries(obs)
	summary.Rows = series.Len()
	summary.Missing = series.MissingCount()
	return series, summary, nil
}

// splitFields splits tab-delimited rows on every tab so an empty discharge
// column survives; other rows split on runs of whitespace.
func splitFields(line string) []string {
	if !strings.Contains(line, "\t") {
		return strings.Fields(line)
	}
	fields := strings.Split(line, "\t")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func isDescriptorRow(fields []string) bool {
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !descriptorField.MatchString(f) {
			return false
		}
	}
	return true
}

func parseDate(s string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
