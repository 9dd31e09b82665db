package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"

	"voxelstream.ai/internal/feedproto"
	"voxelstream.ai/internal/persistence/indexdb"
	persistlog "voxelstream.ai/internal/persistence/log"
	"voxelstream.ai/internal/stream/chunks"
	"voxelstream.ai/internal/stream/driver"
	"voxelstream.ai/internal/stream/gen"
	"voxelstream.ai/internal/stream/tuning"
	"voxelstream.ai/internal/stream/upload"
	"voxelstream.ai/internal/transport/feed"
)

func main() {
	os.Exit(serve())
}

// serve returns the process exit code once every deferred close has run.
func serve() int {
	var (
		configPath = flag.String("config", "./configs/streamer.yaml", "streamer config (empty for defaults)")
		addr       = flag.String("addr", "", "feed listen address (overrides feed.listen)")
		sentryDSN  = flag.String("sentry_dsn", os.Getenv("SENTRY_DSN"), "sentry DSN for worker panics (empty to disable)")
		orbit      = flag.Float64("orbit", 3, "viewer orbit radius in chunks")
		speed      = flag.Float64("speed", 0.25, "viewer speed in chunks per second")
		maxTicks   = flag.Uint64("ticks", 0, "stop after this many ticks (0 runs until interrupted)")
		dataDir    = flag.String("data", "", "write ticks-*.jsonl.zst under this dir for cmd/replay (empty to disable)")
		indexDB    = flag.Bool("index_db", false, "also index uploads in <data>/index.db")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[streamer] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := tuning.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if a := strings.TrimSpace(*addr); a != "" {
		cfg.Feed.Listen = a
	}

	if dsn := strings.TrimSpace(*sentryDSN); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
			logger.Fatalf("sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if sv := strings.TrimSpace(os.Getenv("STATSVIEW_ADDR")); sv != "" {
		viewer.SetConfiguration(viewer.WithAddr(sv))
		mgr := statsview.New()
		go mgr.Start()
		defer mgr.Stop()
		logger.Printf("statsview on http://%s/debug/statsview", sv)
	}

	generator, err := cfg.Generator.Build(cfg.ChunkSide)
	if err != nil {
		logger.Fatalf("generator: %v", err)
	}
	set, err := chunks.NewDisplacementSet(cfg.Radii)
	if err != nil {
		logger.Fatalf("displacements: %v", err)
	}
	pool := chunks.New(set, viewerChunk(0, *orbit, *speed, cfg), gen.Allocator(generator))
	enc, err := upload.NewEncoder(cfg.UploadOptions())
	if err != nil {
		logger.Fatalf("encoder: %v", err)
	}
	defer enc.Close()

	params := feedproto.StreamParams{
		ChunkSide:  cfg.ChunkSide,
		Radii:      [3]int{cfg.Radii.X, cfg.Radii.Y, cfg.Radii.Z},
		Slots:      pool.Len(),
		MapSide:    cfg.MapSide,
		AtlasWidth: cfg.AtlasWidth,
		CellSide:   enc.CellSide(),
		Encoding:   cfg.Encoding,
		TickRateHz: cfg.TickRateHz,
	}
	feedLog := log.New(os.Stdout, "[feed] ", log.LstdFlags|log.Lmicroseconds)
	hub := feed.NewServer(params, feed.Options{Queue: cfg.Feed.Queue, AllowRemote: cfg.Feed.AllowRemote}, feedLog)

	dcfg := driver.Config[*gen.Chunk]{
		Pool:      pool,
		Encoder:   enc,
		Sink:      hub,
		ChunkSide: cfg.ChunkSide,
		MapSide:   cfg.MapSide,
		Logger:    logger,
	}
	if dir := strings.TrimSpace(*dataDir); dir != "" {
		tl := persistlog.NewTickLogger(dir)
		defer tl.Close()
		logs := multiTickLog{tl}
		if *indexDB {
			idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index.db"))
			if err != nil {
				logger.Fatalf("open index db: %v", err)
			}
			defer idx.Close()
			logs = append(logs, idx)
		}
		dcfg.TickLog = logs
	}
	if cfg.Async.Enabled {
		dcfg.Scheduler = chunks.NewScheduler(pool, cfg.Async.Workers, cfg.Async.MaxInFlight, logger)
	}
	drv, err := driver.New(dcfg)
	if err != nil {
		logger.Fatalf("driver: %v", err)
	}
	defer drv.Close()

	st := &status{}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", st.metricsHandler(hub))
	mux.HandleFunc("/feed/bootstrap", hub.BootstrapHandler())
	mux.HandleFunc("/feed/ws", hub.WSHandler())

	srv := &http.Server{Addr: cfg.Feed.Listen, Handler: mux}
	go func() {
		logger.Printf("feed on http://%s (slots=%d encoding=%s)", cfg.Feed.Listen, pool.Len(), cfg.Encoding)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runErr := run(ctx, drv, enc, st, cfg, *orbit, *speed, *maxTicks, logger)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	if runErr != nil {
		logger.Printf("fatal: %v", runErr)
		return 1
	}
	return 0
}

// run ticks until ctx is done, maxTicks is reached or the driver stops.
func run(ctx context.Context, drv *driver.Driver[*gen.Chunk], enc *upload.Encoder, st *status, cfg tuning.Config, orbit, speed float64, maxTicks uint64, logger *log.Logger) error {
	ticker := time.NewTicker(time.Second / time.Duration(cfg.TickRateHz))
	defer ticker.Stop()

	var filled bool
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		start := time.Now()
		rep, err := drv.Tick(viewerPosition(st.ticks()+1, orbit, speed, cfg))
		if fatal := drv.Err(); fatal != nil {
			return fatal
		}
		if err != nil {
			logger.Printf("tick %d: %v", rep.Tick, err)
		}
		stats := drv.Pool().Stats()
		st.record(rep, stats, enc.Stats(), time.Since(start))

		if full := stats.Initialized == stats.Slots; full != filled {
			filled = full
			if full {
				logger.Printf("working set complete at tick %d (%d slots)", rep.Tick, stats.Slots)
			}
		}
		if maxTicks > 0 && rep.Tick >= maxTicks {
			return nil
		}
	}
}

type multiTickLog []driver.TickLog

func (m multiTickLog) WriteTick(e driver.TickEntry) error {
	var errs []error
	for _, l := range m {
		if err := l.WriteTick(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
