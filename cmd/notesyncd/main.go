// Command notesyncd runs the offline-first notes sync engine as a
// standalone daemon: it owns the durable KV, drains the operation queue on
// connectivity edges and on a timer, subscribes to server push events, and
// exposes a local status control plane for a host shell to poll.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/inkwell-app/notesync-core/internal/auth"
	"github.com/inkwell-app/notesync-core/internal/cache"
	"github.com/inkwell-app/notesync-core/internal/config"
	"github.com/inkwell-app/notesync-core/internal/eventbus"
	"github.com/inkwell-app/notesync-core/internal/httpclient"
	"github.com/inkwell-app/notesync-core/internal/netmonitor"
	"github.com/inkwell-app/notesync-core/internal/offlineapi"
	"github.com/inkwell-app/notesync-core/internal/push"
	"github.com/inkwell-app/notesync-core/internal/queue"
	"github.com/inkwell-app/notesync-core/internal/statusapi"
	"github.com/inkwell-app/notesync-core/internal/store"
	"github.com/inkwell-app/notesync-core/internal/syncengine"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

var (
	configPath  = flag.String("config", "", "Path to configuration file (JSON)")
	showVersion = flag.Bool("version", false, "Show version information")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("notesyncd version %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	setupLogging(*debug, *logLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().
		Str("version", version).
		Str("baseUrl", cfg.BaseURL).
		Str("dataDir", cfg.DataDir).
		Msg("starting notesyncd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("notesyncd exited with error")
		os.Exit(1)
	}
	log.Info().Msg("notesyncd stopped gracefully")
}

func setupLogging(debug bool, level string) {
	zerolog.SetGlobalLevel(parseLogLevel(level))
	if debug {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	kv, err := store.OpenBadgerKV(cfg.DataDir, log.Logger)
	if err != nil {
		return fmt.Errorf("open kv store: %w", err)
	}
	defer kv.Close()

	secure := store.NewSecureStore(cfg.KeyringService, log.Logger)
	tokens := auth.NewTokenStore(secure)

	events := eventbus.New()
	cacheRepo := cache.New(kv)
	opQueue := queue.New(kv)

	hc := httpclient.New(cfg.BaseURL, time.Duration(cfg.TimeoutMs)*time.Millisecond, tokens, events, log.Logger)

	prober := func(probeCtx context.Context) bool {
		req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, cfg.BaseURL+"/auth/me", nil)
		if err != nil {
			return false
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode < http.StatusInternalServerError
	}
	netMon := netmonitor.New(prober, events, 15*time.Second, log.Logger)

	driver := syncengine.New(opQueue, cacheRepo, hc, kv, events, cfg.MaxRetries, log.Logger)

	retryBackOff := newRetryBackOff(cfg.RetryDelaysMs)
	retryTimer := time.NewTimer(time.Hour)
	retryTimer.Stop()
	defer retryTimer.Stop()

	// drainAndReschedule runs one drain and, if it leaves operations queued
	// while the transport is still online, arms retryTimer off
	// retryBackOff instead of waiting for the next fixed tick or
	// connectivity edge. A fully-drained or offline outcome resets the
	// schedule so the next failure starts from RetryDelaysMs[0] again.
	// Calls are serialized: a trigger that arrives while a drain is running
	// waits for it and then drains again, rather than hitting the driver's
	// re-entry guard and reading its empty result as a clean drain.
	var drainMu sync.Mutex
	drainAndReschedule := func() {
		drainMu.Lock()
		defer drainMu.Unlock()
		result, err := driver.Drain(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("drain failed")
		}
		if result.Remaining > 0 && netMon.Snapshot() {
			wait := retryBackOff.NextBackOff()
			log.Info().Dur("retryIn", wait).Int("remaining", result.Remaining).Msg("drain left operations queued, scheduling retry")
			retryTimer.Reset(wait)
		} else {
			retryBackOff.Reset()
		}
	}

	api := offlineapi.New(cacheRepo, opQueue, hc, netMon, func() {
		go drainAndReschedule()
	}, log.Logger)
	_ = api // exposed to whatever transport embeds the daemon (CLI/IPC/UI bridge)

	// The monitor republishes its state on every probe; only a
	// falling→rising edge starts a drain. wasOnline starts false so the
	// startup probe's first online report also counts as an edge.
	wasOnline := false
	unsubOnline := events.Subscribe(eventbus.TopicNetOnline, func(event any) {
		e, ok := event.(eventbus.NetOnlineEvent)
		if !ok {
			return
		}
		rising := e.Online && !wasOnline
		wasOnline = e.Online
		if rising {
			go drainAndReschedule()
		}
	})
	defer unsubOnline()

	statusSrv := statusapi.New(netMon, opQueue, kv, driver, log.Logger)
	httpSrv := &http.Server{Addr: cfg.StatusAddr, Handler: statusSrv.Routes()}
	go func() {
		log.Info().Str("addr", cfg.StatusAddr).Msg("status control plane listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("status server failed")
		}
	}()

	go netMon.Run(ctx)
	go runPushLoop(ctx, cfg, hc, tokens, cacheRepo, events)

	tickInterval := 30 * time.Second
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("status server shutdown error")
			}
			return nil
		case <-ticker.C:
			if !netMon.Snapshot() {
				continue
			}
			drainAndReschedule()
		case <-retryTimer.C:
			drainAndReschedule()
		}
	}
}

// configuredBackOff replays Config.RetryDelaysMs in order, then falls back
// to backoff's own exponential defaults once the configured list is
// exhausted.
type configuredBackOff struct {
	delays   []time.Duration
	idx      int
	fallback *backoff.ExponentialBackOff
}

func newRetryBackOff(delaysMs []int) *configuredBackOff {
	delays := make([]time.Duration, len(delaysMs))
	for i, ms := range delaysMs {
		delays[i] = time.Duration(ms) * time.Millisecond
	}
	return &configuredBackOff{delays: delays, fallback: backoff.NewExponentialBackOff()}
}

func (b *configuredBackOff) NextBackOff() time.Duration {
	if b.idx < len(b.delays) {
		d := b.delays[b.idx]
		b.idx++
		return d
	}
	return b.fallback.NextBackOff()
}

func (b *configuredBackOff) Reset() {
	b.idx = 0
	b.fallback.Reset()
}

// runPushLoop keeps the push subscriber connected, reconnecting with
// exponential backoff whenever the connection drops or the user isn't
// logged in yet.
func runPushLoop(ctx context.Context, cfg *config.Config, hc *httpclient.Client, tokens *auth.TokenStore, cacheRepo *cache.Repository, events *eventbus.Bus) {
	scheme := "wss"
	if !cfg.PushTLS {
		scheme = "ws"
	}
	wsURL := fmt.Sprintf("%s://%s:%d/app/%s", scheme, cfg.PushHost, cfg.PushPort, cfg.PushKey)
	subscriber := push.New(wsURL, hc, cacheRepo, events, log.Logger)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry indefinitely; only ctx cancellation stops the loop

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		token, present, err := tokens.GetToken()
		if err != nil || !present || token == "" {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		userID, ok := auth.UserIDFromToken(token)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		if err := subscriber.Run(ctx, userID); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := bo.NextBackOff()
			log.Warn().Err(err).Dur("retryIn", wait).Msg("push subscriber disconnected, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
	}
}
