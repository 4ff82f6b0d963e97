// Command logo-monitor probes a LOGO!-controlled PV plant, debounces its
// status and notifies Telegram and MQTT subscribers about confirmed faults
// and recoveries.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/sweeney/logo-monitor/internal/config"
	"github.com/sweeney/logo-monitor/internal/gpio"
	"github.com/sweeney/logo-monitor/internal/logic"
	"github.com/sweeney/logo-monitor/internal/metrics"
	"github.com/sweeney/logo-monitor/internal/mqtt"
	"github.com/sweeney/logo-monitor/internal/probe"
	"github.com/sweeney/logo-monitor/internal/report"
	"github.com/sweeney/logo-monitor/internal/status"
	"github.com/sweeney/logo-monitor/internal/store"
	"github.com/sweeney/logo-monitor/internal/telegram"
	"github.com/sweeney/logo-monitor/internal/web"
)

const historyLimit = 10

type flags struct {
	configPath    string
	printState    bool
	importChatIDs string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	pf := pflag.NewFlagSet("logo-monitor", pflag.ContinueOnError)
	pf.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	pf.BoolVar(&f.printState, "print-state", false, "Probe once, print the status report and exit")
	pf.StringVar(&f.importChatIDs, "import-chat-ids", "", "Import a chatIds.json recipient list into the store and exit")
	if err := pf.Parse(args); err != nil {
		return f, err
	}
	return f, nil
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	reporter := newErrorReporter(cfg.Rollbar)
	if err := run(cfg, f, reporter); err != nil {
		reporter.ReportError(err)
		reporter.Wait()
		log.Fatalf("fatal: %v", err)
	}
	reporter.Wait()
}

func run(cfg *config.Config, f flags, reporter errorReporter) error {
	closeLog, err := setupLogging(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	if f.importChatIDs != "" {
		return importChatIDs(cfg, f.importChatIDs)
	}

	// --print-state needs only the probe settings.
	if !f.printState {
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	clock := time.Now

	prober, err := newProber(cfg, clock)
	if err != nil {
		return err
	}
	defer prober.Close()

	if f.printState {
		return printState(os.Stdout, prober, cfg.ProbeTimeout(), loc, clock)
	}

	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	startTime := clock()
	engine, err := logic.NewEngine(cfg.EngineParams(), startTime.In(loc))
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.NewRegistry())

	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.RealConfig{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			BufferSize: cfg.MQTT.BufferSize,
		})
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		publisher, mqttStatus = p, p
	}
	defer publisher.Close()

	tracker := status.NewTracker(startTime, engine.State(), status.Config{
		PollMs:           int64(cfg.Poll.IntervalMs),
		ProbeTimeoutMs:   int64(cfg.Poll.TimeoutMs),
		MinHealthyWindow: int64(cfg.Engine.MinHealthyWindowMs),
		FaultThreshold:   cfg.Engine.FaultConfirmationThreshold,
		HeartbeatMs:      int64(cfg.HeartbeatMs),
		ProbeKind:        cfg.Probe.Kind,
		Broker:           cfg.MQTT.Broker,
		HTTPAddr:         cfg.HTTP.Addr,
		Timezone:         cfg.Timezone,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bot := telegram.New(st, telegram.Options{
		QueueSize: cfg.Telegram.QueueSize,
		Status: func() string {
			return report.Format(tracker.Snapshot().State)
		},
		History: func(ctx context.Context) (string, error) {
			return historyText(ctx, st, loc)
		},
		Delivered: func(chatID int64, err error) {
			m.ObserveNotification(err)
		},
	})
	// Polling starts regardless; broadcasts queue until the Bot API answers.
	go func() {
		if err := bot.Connect(ctx, telegram.Dial(cfg.Telegram.Token), telegram.RetryPolicy(cfg.TelegramRetryMax())); err != nil {
			log.Printf("%v", err)
		}
	}()
	go bot.Run(ctx)
	go bot.RunSender(ctx)

	subscribeTransitions(engine, transitionSinks{
		store:     st,
		publisher: publisher,
		notifier:  bot,
		metrics:   m,
	})

	snap := tracker.Snapshot()
	tracker.SetMQTTConnected(mqttStatus.IsConnected())
	if err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, m.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: probe=%s poll=%v timeout=%v window=%v threshold=%d broker=%q heartbeat=%v",
		cfg.Probe.Kind, cfg.PollInterval(), cfg.ProbeTimeout(), cfg.EngineParams().MinHealthyWindow,
		cfg.Engine.FaultConfirmationThreshold, cfg.MQTT.Broker, cfg.Heartbeat())

	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		prober:     prober,
		engine:     engine,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		recipients: st,
		tracker:    tracker,
		metrics:    m,
		reporter:   reporter,
		timeout:    cfg.ProbeTimeout(),
		heartbeat:  cfg.Heartbeat(),
		loc:        loc,
	}
	return l.run(clock, ticker.C, sigCh)
}

// newProber builds the configured probe. Samples are stamped with now.
func newProber(cfg *config.Config, now func() time.Time) (probe.Prober, error) {
	switch cfg.Probe.Kind {
	case config.ProbeContact:
		c := cfg.Probe.Contact
		reader, err := gpio.NewRealReader(c.Chip, c.Line, c.ActiveLow)
		if err != nil {
			return nil, fmt.Errorf("init gpio: %w", err)
		}
		return probe.NewContactProber(reader, now), nil
	case config.ProbeWeb:
		w := cfg.Probe.Web
		p, err := probe.NewWebProber(probe.WebConfig{
			LoginURL:       w.LoginURL,
			Password:       w.Password,
			PagePath:       w.PagePath,
			Timeout:        cfg.ProbeTimeout(),
			HealthyPowerKW: cfg.Probe.HealthyPowerKW,
			Now:            now,
		})
		if err != nil {
			return nil, fmt.Errorf("init web probe: %w", err)
		}
		return p, nil
	default:
		mb := cfg.Probe.Modbus
		p, err := probe.NewModbusProber(probe.ModbusConfig{
			Endpoint:       mb.Endpoint,
			UnitID:         mb.UnitID,
			Timeout:        cfg.ProbeTimeout(),
			PowerRegister:  mb.PowerRegister,
			PowerScale:     mb.PowerScale,
			StatusCoil:     mb.StatusCoil,
			HealthyPowerKW: cfg.Probe.HealthyPowerKW,
			Now:            now,
		})
		if err != nil {
			return nil, fmt.Errorf("init modbus: %w", err)
		}
		return p, nil
	}
}

func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store dir: %w", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func importChatIDs(cfg *config.Config, path string) error {
	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.ImportRecipientsJSON(context.Background(), path)
	if err != nil {
		return err
	}
	log.Printf("imported %d new recipients from %s", n, path)
	return nil
}

type transitionLister interface {
	RecentTransitions(ctx context.Context, limit int) ([]store.Transition, error)
}

func historyText(ctx context.Context, st transitionLister, loc *time.Location) (string, error) {
	recs, err := st.RecentTransitions(ctx, historyLimit)
	if err != nil {
		return "", err
	}
	entries := make([]report.HistoryEntry, len(recs))
	for i, r := range recs {
		entries[i] = report.HistoryEntry{
			Type:       r.Event,
			OccurredAt: r.OccurredAt.In(loc),
			Power:      r.State.Power,
		}
	}
	return report.FormatHistory(entries), nil
}
