package ingest

import (
	"encoding/json"
	"strings"

	"github.com/lox/flowstats/internal/models"
)

const (
	FlagDischargeMissing   = "discharge_missing"
	FlagDischargeNegative  = "discharge_negative"
	FlagQualityEstimated   = "quality_estimated"
	FlagQualityProvisional = "quality_provisional"
)

// ValidateObservation returns the QC flags that apply to obs as it stands.
func ValidateObservation(obs *models.Observation) []string {
	var flags []string

	if !obs.Discharge.Valid {
		flags = append(flags, FlagDischargeMissing)
	} else if obs.Discharge.Float64 < 0 {
		flags = append(flags, FlagDischargeNegative)
	}

	// USGS qualifiers are colon separated, e.g. "A", "P:e", "A:<".
	for _, code := range strings.Split(obs.Quality, ":") {
		switch code {
		case "e", "E":
			flags = append(flags, FlagQualityEstimated)
		case "P":
			flags = append(flags, FlagQualityProvisional)
		}
	}

	return flags
}

// ApplyQC returns a copy of obs with its flags set and any negative discharge
// coerced to missing. The row itself is always kept.
func ApplyQC(obs models.Observation) models.Observation {
	flags := ValidateObservation(&obs)
	for _, f := range flags {
		if f == FlagDischargeNegative {
			obs.Discharge.Valid = false
			obs.Discharge.Float64 = 0
		}
	}
	obs.Flags = flags
	return obs
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}

// QualityFlagsFromJSON is the inverse of QualityFlagsToJSON.
func QualityFlagsFromJSON(s string) []string {
	if s == "" {
		return nil
	}
	var flags []string
	if err := json.Unmarshal([]byte(s), &flags); err != nil {
		return nil
	}
	return flags
}
