package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/lox/flowstats/internal/models"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: write response: %v", err)
	}
}

// station resolves the {label} path value, writing a 404 when it is unknown.
func (s *Server) station(w http.ResponseWriter, r *http.Request) (*models.Station, bool) {
	st, err := s.store.GetStation(r.PathValue("label"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if st == nil {
		http.Error(w, "station not found", http.StatusNotFound)
		return nil, false
	}
	return st, true
}

func (s *Server) handleAPIStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.store.GetStations()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	views := make([]StationView, 0, len(stations))
	for _, st := range stations {
		sum, err := s.store.GetObservationSummary(st.Label)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		views = append(views, StationView{
			Label:        st.Label,
			SiteID:       st.SiteID,
			Source:       st.Source,
			Observations: sum.Rows,
			Missing:      sum.Missing,
			FirstDate:    sum.First.String,
			LastDate:     sum.Last.String,
		})
	}
	writeJSON(w, views)
}

func (s *Server) handleAPIAnnual(w http.ResponseWriter, r *http.Request) {
	st, ok := s.station(w, r)
	if !ok {
		return
	}
	rows, err := s.store.GetAnnualStats(st.Label)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]AnnualView, 0, len(rows))
	for _, row := range rows {
		views = append(views, newAnnualView(row))
	}
	writeJSON(w, views)
}

func (s *Server) handleAPIMonthly(w http.ResponseWriter, r *http.Request) {
	st, ok := s.station(w, r)
	if !ok {
		return
	}
	rows, err := s.store.GetMonthlyStats(st.Label)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]MonthlyView, 0, len(rows))
	for _, row := range rows {
		views = append(views, newMonthlyView(row))
	}
	writeJSON(w, views)
}

func (s *Server) handleAPIAverages(w http.ResponseWriter, r *http.Request) {
	st, ok := s.station(w, r)
	if !ok {
		return
	}
	annual, err := s.store.GetAnnualAverage(st.Label)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	monthly, err := s.store.GetMonthlyAverages(st.Label)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, newAveragesView(st.Label, annual, monthly))
}

func (s *Server) handleAPISources(w http.ResponseWriter, r *http.Request) {
	st, ok := s.station(w, r)
	if !ok {
		return
	}
	sources, err := s.store.GetRawSources(st.Label)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]RawSourceView, 0, len(sources))
	for _, src := range sources {
		views = append(views, newRawSourceView(src))
	}
	writeJSON(w, views)
}

// handleAPISource serves an archived discharge file exactly as it was fetched.
func (s *Server) handleAPISource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, "id must be a positive integer", http.StatusBadRequest)
		return
	}
	payload, err := s.store.GetRawSource(id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "source not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write(payload); err != nil {
		log.Printf("api: write source %d: %v", id, err)
	}
}

func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := s.store.GetRecentRuns(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, newRunView(run))
	}
	writeJSON(w, views)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.MigrationVersion()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
		return
	}

	health := HealthStatus{
		Status:        "ok",
		SchemaVersion: version,
		Stations:      []StationHealth{},
	}

	stations, err := s.store.GetStations()
	if err != nil {
		health.Errors = append(health.Errors, err.Error())
	}
	for _, st := range stations {
		run, err := s.store.GetLatestRun(st.Label)
		if err != nil {
			health.Errors = append(health.Errors, st.Label+": "+err.Error())
			continue
		}
		sh := StationHealth{Label: st.Label}
		if run != nil {
			sh.LastRun = &run.StartedAt
			sh.LastSuccess = run.Success
		}
		if !sh.LastSuccess {
			health.Status = "degraded"
		}
		health.Stations = append(health.Stations, sh)
	}

	if len(health.Errors) > 0 {
		health.Status = "error"
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("health: write response: %v", err)
	}
}
