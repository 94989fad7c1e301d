// Command camsync keeps camera triggers phase-locked to one or more
// rotating lidars.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"
	"github.com/dustin/go-humanize"

	"github.com/banshee-data/camsync/internal/config"
	"github.com/banshee-data/camsync/internal/httputil"
	"github.com/banshee-data/camsync/internal/journal"
	"github.com/banshee-data/camsync/internal/lidar/network"
	"github.com/banshee-data/camsync/internal/lidar/parse"
	"github.com/banshee-data/camsync/internal/lidar/supervisor"
	"github.com/banshee-data/camsync/internal/lidar/timesync"
	"github.com/banshee-data/camsync/internal/status"
	"github.com/banshee-data/camsync/internal/version"
)

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	Admin      string `arg:"--admin" help:"admin HTTP listen address (overrides admin_address)"`
	Journal    string `arg:"--journal" help:"event journal sqlite path (overrides journal)"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
	Inspect    string `arg:"--inspect" help:"count lidar records per port in a capture file and exit"`
	Model      string `arg:"--model" help:"lidar model for --inspect"`
	Events     int    `arg:"--events" help:"print the newest N journal events and exit"`
}

func (Args) Version() string {
	return version.String()
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/camsync.yaml"
	args.Model = "HDL32E"
	arg.MustParse(&args)
	return args
}

func main() {
	if err := runMain(); err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	if !args.Timestamps {
		log.SetFlags(0)
	}

	if args.Inspect != "" {
		return inspect(args.Inspect, args.Model)
	}

	log.Print(version.String())
	cfg, err := config.Load(args.ConfigFile)
	if err != nil {
		return err
	}
	if args.Admin != "" {
		cfg.AdminAddress = args.Admin
	}
	if args.Journal != "" {
		cfg.Journal = args.Journal
	}
	if args.Events > 0 {
		return printEvents(cfg.Journal, args.Events)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, cfg)
}

// run starts every lidar and blocks until all of them have stopped.
func run(ctx context.Context, cfg *config.Config) error {
	logf := log.Printf
	registry := status.NewRegistry()
	dry := newDryRun(cfg, logf)

	var events timesync.EventSink
	var jnl *journal.Journal
	if cfg.Journal != "" {
		var err error
		jnl, err = journal.Open(cfg.Journal, journal.Options{Version: version.Version, Logf: logf})
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer func() {
			written, dropped, failed := jnl.Stats()
			log.Printf("journal: %s events written, %s dropped, %s failed",
				humanize.Comma(int64(written)), humanize.Comma(int64(dropped)), humanize.Comma(int64(failed)))
			if err := jnl.Close(); err != nil {
				log.Printf("journal close error: %v", err)
			}
		}()
		events = jnl
		log.Printf("journal: %s (run %s)", cfg.Journal, jnl.RunID())
	}

	lidars, err := buildLidars(cfg, wiring{
		Trigger:    dry,
		Capability: dry,
		Events:     events,
		Status:     registry,
		Logf:       logf,
	})
	if err != nil {
		return err
	}
	// Helpers stop with the signal or once every lidar has ended.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sups := make([]*supervisor.Supervisor, 0, len(lidars))
	for _, rt := range lidars {
		sups = append(sups, rt.sup)
		if rt.forwarder != nil {
			rt.forwarder.Start(runCtx)
			defer rt.forwarder.Close()
		}
	}

	var wg sync.WaitGroup
	if cfg.AdminAddress != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveAdmin(runCtx, cfg.AdminAddress, registry, jnl)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		watchdog(runCtx)
	}()

	if _, err := daemon.SdNotify(false, "READY=1"); err != nil {
		log.Printf("sd_notify failed: %v", err)
	}

	results := supervisor.RunAll(runCtx, sups, logf)
	daemon.SdNotify(false, "STOPPING=1")
	cancel()
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			log.Printf("lidar %s stopped: %v", r.Name, r.Err)
		}
	}
	log.Printf("Graceful shutdown complete")

	if failed > 0 && failed == len(results) {
		return fmt.Errorf("all %d lidars failed", failed)
	}
	return nil
}

// watchdog pings systemd at half the configured watchdog interval.
func watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			daemon.SdNotify(false, "WATCHDOG=1")
		}
	}
}

// serveAdmin serves /health and the debug pages until ctx ends.
func serveAdmin(ctx context.Context, addr string, registry *status.Registry, jnl *journal.Journal) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, map[string]string{
			"status":    "ok",
			"service":   "camsync",
			"version":   version.Version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	registry.AttachAdminRoutes(mux)
	if jnl != nil {
		jnl.AttachAdminRoutes(mux)
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		log.Printf("Starting admin HTTP server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("admin server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
}

// inspect prints how many UDP records a capture holds per destination
// port, labelling the model's default firing and positioning ports.
func inspect(path, modelName string) error {
	model, err := parse.LookupModel(modelName)
	if err != nil {
		return err
	}
	firing := parse.DefaultFiringPort
	positioning := model.Family.DefaultPositioningPort()
	counts, err := network.CountRecords(path)
	if err != nil {
		return err
	}
	ports := make([]int, 0, len(counts))
	for p := range counts {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	for _, p := range ports {
		kind := "other"
		switch p {
		case firing:
			kind = "firing"
		case positioning:
			kind = "positioning"
		}
		fmt.Fprintf(os.Stdout, "port %5d %-12s %s\n", p, kind, humanize.Comma(int64(counts[p])))
	}
	if counts[firing] == 0 {
		return fmt.Errorf("%s: no %s firing packets on port %d", path, model.Name, firing)
	}
	if n := counts[firing]; model.PacketRate > 0 {
		secs := float64(n) / model.PacketRate
		fmt.Fprintf(os.Stdout, "about %s of %s data at nominal rate\n",
			time.Duration(secs*float64(time.Second)).Round(time.Second), model.Name)
	}
	return nil
}

func printEvents(path string, n int) error {
	if path == "" {
		return errors.New("no journal configured")
	}
	jnl, err := journal.Open(path, journal.Options{ReadOnly: true})
	if err != nil {
		return err
	}
	defer jnl.Close()
	events, err := jnl.Recent(context.Background(), "", n)
	if err != nil {
		return err
	}
	for _, ev := range events {
		fmt.Fprintln(os.Stdout, journal.FormatEvent(ev))
	}
	return nil
}
