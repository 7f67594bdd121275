package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/emberweb/constellate/internal/broadcast"
	"github.com/emberweb/constellate/internal/config"
	"github.com/emberweb/constellate/internal/crashreport"
	"github.com/emberweb/constellate/internal/eventlog"
	"github.com/emberweb/constellate/internal/hangmon"
	"github.com/emberweb/constellate/internal/ident"
	"github.com/emberweb/constellate/internal/orch"
	"github.com/emberweb/constellate/internal/protocol"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the orchestrator with a set of demo pipelines",
	Long: `Start the dispatch loop, put demo pipelines under hang supervision,
and print any hang alerts and faults until interrupted. The demo
pipelines only exist to exercise the control plane; real embedders
replace them with their own script/layout contexts.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}

	sessionLog, err := eventlog.New(cfg.EventLogPath, logger)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer sessionLog.Close()
	logger.Info("session log open", "path", cfg.EventLogPath, "session", sessionLog.SessionID())

	reporter, err := crashreport.NewFileReporter(cfg.CrashReportPath, logger)
	if err != nil {
		return fmt.Errorf("open crash reports: %w", err)
	}
	defer reporter.Close()

	o := orch.New(orch.Options{
		Logger:             logger,
		CheckpointInterval: cfg.CheckpointInterval(),
		EventLog:           sessionLog,
		Reporter:           reporter,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- o.Run(ctx)
	}()

	var wg sync.WaitGroup
	stopDemo := make(chan struct{})
	startDemoPipelines(o, cfg, logger, &wg, stopDemo)

	wg.Add(1)
	go func() {
		defer wg.Done()
		printAlerts(o, logger, stopDemo)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case s := <-sig:
		logger.Info("signal received, shutting down", "signal", s.String())
	case err := <-runErr:
		close(stopDemo)
		wg.Wait()
		return err
	}

	close(stopDemo)
	wg.Wait()

	stopped := o.Exit()
	o.Send(protocol.ShutdownComplete{})
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		logger.Warn("orchestrator did not stop in time, cancelling")
		cancel()
	}

	err = <-runErr
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func loadConfig(cmd *cobra.Command, logger *slog.Logger) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		if _, statErr := os.Stat(defaultConfigPath); statErr == nil {
			path = defaultConfigPath
		}
	}
	if path == "" {
		logger.Info("no config file, using defaults")
		return config.GenerateDefault(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded configuration", "path", path)
	return cfg, nil
}

// startDemoPipelines stands in for the script/layout contexts a real
// embedder supplies. Two pipelines in different origins subscribe to the
// same channel name, one pipeline keeps chatting, and a third wedges
// itself so hang alerts actually show up.
func startDemoPipelines(o *orch.Orchestrator, cfg *config.Config, logger *slog.Logger, wg *sync.WaitGroup, stop <-chan struct{}) {
	alloc := ident.NewAllocator(o.Issuer().Issue())

	healthy := alloc.NextPipeline()
	wedged := alloc.NextPipeline()
	listener := alloc.NextPipeline()

	healthyRouter := alloc.NextRouter()
	listenerRouter := alloc.NextRouter()
	foreignRouter := alloc.NextRouter()

	for _, p := range []ident.PipelineId{healthy, wedged, listener} {
		o.Send(protocol.RegisterComponent{
			Component: ident.ComponentId{Pipeline: p, Kind: ident.ComponentKindScript},
			Timers:    cfg.Timers(ident.ComponentKindScript),
		})
	}

	deliveries := make(chan broadcast.Message, 16)
	o.Send(protocol.RegisterRouter{Router: listenerRouter, Sink: broadcast.NewChanSink(deliveries, stop)})
	o.Send(protocol.RegisterRouter{Router: healthyRouter, Sink: broadcast.NewChanSink(make(chan broadcast.Message, 16), stop)})
	o.Send(protocol.RegisterRouter{Router: foreignRouter, Sink: broadcast.NewChanSink(make(chan broadcast.Message, 16), stop)})

	const channel = "demo"
	origin := broadcast.Origin("https://example.test")
	o.Send(protocol.Subscribe{Router: listenerRouter, Channel: channel, Origin: origin})
	o.Send(protocol.Subscribe{Router: healthyRouter, Channel: channel, Origin: origin})
	// Same channel name, different origin: must never hear the others.
	o.Send(protocol.Subscribe{Router: foreignRouter, Channel: channel, Origin: broadcast.Origin("https://other.test")})

	// Healthy pipeline: alternates work and wait, broadcasts as it goes.
	wg.Add(1)
	go func() {
		defer wg.Done()
		script := ident.ComponentId{Pipeline: healthy, Kind: ident.ComponentKindScript}
		bridge := o.ScriptBridge("script:"+healthy.String(), healthy)
		scriptLog := slog.New(bridge)
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		n := 0
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				n++
				o.Send(protocol.NotifyActivity{Component: script})
				o.Send(protocol.Broadcast{
					Sender:  healthyRouter,
					Message: broadcast.NewMessage(origin, channel, fmt.Appendf(nil, "tick %d", n)),
				})
				if n%7 == 0 {
					scriptLog.Warn("demo warning", "tick", n)
				}
				o.Send(protocol.NotifyWait{Component: script})
			}
		}
	}()

	// Wedged pipeline: reports activity once and then goes silent.
	o.Send(protocol.NotifyActivity{Component: ident.ComponentId{Pipeline: wedged, Kind: ident.ComponentKindScript}})
	logger.Info("demo pipelines started",
		"healthy", healthy.String(), "wedged", wedged.String(), "listener", listener.String())

	// Listener pipeline: logs what the router delivers to it.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			case msg := <-deliveries:
				logger.Debug("broadcast delivered",
					"channel", msg.Channel, "origin", string(msg.Origin), "data", string(msg.Data))
			}
		}
	}()
}

// printAlerts periodically drains the supervisor's alert queue.
func printAlerts(o *orch.Orchestrator, logger *slog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, alert := range o.CollectAlerts() {
				logAlert(logger, alert)
			}
		}
	}
}

func logAlert(logger *slog.Logger, alert hangmon.Alert) {
	switch alert.Kind {
	case hangmon.AlertPermanent:
		logger.Error("component permanently hung",
			"component", alert.Component.String(), "elapsed", alert.Elapsed)
	default:
		logger.Warn("component unresponsive",
			"component", alert.Component.String(), "elapsed", alert.Elapsed)
	}
}
