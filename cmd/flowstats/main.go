package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/flowstats/internal/api"
	"github.com/lox/flowstats/internal/config"
	"github.com/lox/flowstats/internal/ingest"
	"github.com/lox/flowstats/internal/pipeline"
	"github.com/lox/flowstats/internal/report"
	"github.com/lox/flowstats/internal/store"
)

type Globals struct {
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`
	DB      string                   `name:"db" env:"FLOWSTATS_DB" default:"data/flowstats.db" help:"Path to SQLite database."`
}

// StationFlags selects stations and the analysis window.
type StationFlags struct {
	Station       []string `name:"station" short:"s" sep:"none" env:"FLOWSTATS_STATIONS" help:"Station as label=source (path, file://, http(s):// or ftp:// URL). Repeatable. Defaults to Wildcat and Tippe."`
	Start         string   `name:"start" env:"FLOWSTATS_START" default:"${default_start}" help:"First day of the analysis window (YYYY-MM-DD, empty for unbounded)."`
	End           string   `name:"end" env:"FLOWSTATS_END" default:"${default_end}" help:"Last day of the analysis window (YYYY-MM-DD, empty for unbounded)."`
	SkewCorrected bool     `name:"skew-corrected" help:"Use the bias-adjusted skewness estimator."`
	RequireData   bool     `name:"require-data" help:"Fail when a station has no observations in the window."`
}

func (f StationFlags) config() (*config.Config, error) {
	specs := f.Station
	if len(specs) == 0 {
		specs = config.DefaultStations
	}
	return config.New(specs, f.Start, f.End, f.SkewCorrected, f.RequireData)
}

type CLI struct {
	Globals

	Run       RunCmd       `cmd:"" default:"1" help:"Compute streamflow statistics and write the metric tables."`
	Fetch     FetchCmd     `cmd:"" help:"Download a USGS daily discharge record."`
	Recompute RecomputeCmd `cmd:"" help:"Rebuild stored statistics from stored observations."`
	Serve     ServeCmd     `cmd:"" help:"Serve stored statistics over HTTP."`
}

type RunCmd struct {
	StationFlags
	Out     string `name:"out" short:"o" env:"FLOWSTATS_OUT" default:"." help:"Directory to write the metric tables to."`
	NoStore bool   `name:"no-store" help:"Skip writing results to the database."`
}

func (c *RunCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}

	var st *store.Store
	if !c.NoStore {
		db, s, err := openStore(g.DB)
		if err != nil {
			return err
		}
		defer db.Close()
		st = s
	}

	// A nil *store.Store must not become a non-nil interface.
	var sink pipeline.Store
	if st != nil {
		sink = st
	}

	p := pipeline.New(ingest.NewFetcher(), sink, pipeline.OptionsFromConfig(cfg))
	results, err := p.RunAll(ctx, cfg.Stations)
	if err != nil {
		return err
	}

	for _, r := range results {
		log.Printf("%s: %d missing values after load, %d after clipping to %s..%s",
			r.Station.Label, r.LoadedMissing, r.ClippedMissing,
			cfg.Start.Format(config.DateLayout), cfg.End.Format(config.DateLayout))
	}

	if _, err := report.Write(c.Out, results); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

type FetchCmd struct {
	Site  string `arg:"" help:"USGS site number, e.g. 03335000."`
	Start string `name:"start" help:"First day to request (YYYY-MM-DD)."`
	End   string `name:"end" help:"Last day to request (YYYY-MM-DD)."`
	Out   string `name:"out" short:"o" help:"Output file. Defaults to data/<site>.txt."`
}

func (c *FetchCmd) Run(ctx context.Context) error {
	start, end, err := config.ParseWindow(c.Start, c.End)
	if err != nil {
		return err
	}
	if c.End == "" {
		end = time.Time{}
	}

	url := ingest.NWISURL(c.Site, start, end)
	log.Printf("fetch: %s", url)
	body, err := ingest.NewFetcher().Fetch(ctx, url)
	if err != nil {
		return err
	}

	// Parse before writing so a bad download never lands on disk.
	series, missing, err := ingest.Load(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("validate download: %w", err)
	}

	out := c.Out
	if out == "" {
		out = filepath.Join("data", c.Site+".txt")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(out, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	log.Printf("fetch: wrote %s (%d days, %d missing, %s..%s)", out, series.Len(), missing,
		series.Start().Format(config.DateLayout), series.End().Format(config.DateLayout))
	return nil
}

type RecomputeCmd struct {
	StationFlags
}

func (c *RecomputeCmd) Run(g *Globals) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	db, st, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	return pipeline.Recompute(st, cfg.Stations, pipeline.OptionsFromConfig(cfg))
}

type ServeCmd struct {
	StationFlags
	Port    string        `name:"port" env:"PORT" default:"8080" help:"HTTP server port."`
	Refresh time.Duration `name:"refresh" env:"FLOWSTATS_REFRESH" default:"0s" help:"Rerun the pipeline on this interval (0 disables)."`
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	db, st, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.Refresh > 0 {
		cfg, err := c.config()
		if err != nil {
			return err
		}
		p := pipeline.New(ingest.NewFetcher(), st, pipeline.OptionsFromConfig(cfg))
		go pipeline.NewScheduler(p, cfg.Stations, c.Refresh).Run(ctx)
	} else {
		log.Println("refresh disabled (--refresh=0)")
	}

	server := api.NewServer(st, c.Port)
	log.Printf("starting server on :%s", c.Port)
	return server.Run(ctx)
}

func openStore(path string) (*sql.DB, *store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create database dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	log.Println("database migrated")
	return db, st, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("flowstats"),
		kong.Description("Streamflow descriptive statistics for USGS daily discharge records."),
		kong.UsageOnError(),
		kong.Vars{
			"default_start": config.DefaultStart,
			"default_end":   config.DefaultEnd,
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err := kctx.Run(&cli.Globals); err != nil {
		log.Fatalf("%s: %v", kctx.Command(), err)
	}
}
