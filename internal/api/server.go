package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/flowstats/internal/store"
)

type Server struct {
	store *store.Store
	port  string
}

func NewServer(store *store.Store, port string) *Server {
	return &Server{
		store: store,
		port:  port,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/stations", s.handleAPIStations)
	mux.HandleFunc("GET /api/stations/{label}/annual", s.handleAPIAnnual)
	mux.HandleFunc("GET /api/stations/{label}/monthly", s.handleAPIMonthly)
	mux.HandleFunc("GET /api/stations/{label}/averages", s.handleAPIAverages)
	mux.HandleFunc("GET /api/stations/{label}/sources", s.handleAPISources)
	mux.HandleFunc("GET /api/sources/{id}", s.handleAPISource)
	mux.HandleFunc("GET /api/runs", s.handleAPIRuns)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
