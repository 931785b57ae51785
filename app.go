package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kwv/blemap/dashboard"
	"github.com/kwv/blemap/floorplan"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

// App encapsulates the application state and dependencies
type App struct {
	Config     *floorplan.Config
	Store      *floorplan.Store
	Engine     *floorplan.Engine
	Dispatcher *floorplan.Dispatcher
	MQTTClient *floorplan.MQTTClient
	Publisher  *floorplan.Publisher

	// CLI flags
	ConfigFile  string
	StateFile   string
	HTTPPort    int
	SyncOnStart bool

	LogOutput io.Writer
	Out       io.Writer
	Now       func() time.Time
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		ConfigFile: "config.yaml",
		LogOutput:  os.Stderr,
		Out:        os.Stdout,
		Now:        time.Now,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.StateFile = opts.StateFile
	a.HTTPPort = opts.HTTPPort
	a.SyncOnStart = opts.Sync
}

// loadConfig reads the config, applies flag overrides and sets up logging
func (a *App) loadConfig() error {
	cfg, err := floorplan.LoadConfig(a.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.HTTPPort > 0 {
		cfg.HTTP.Port = a.HTTPPort
	}
	if a.StateFile != "" {
		cfg.Storage.StateFile = a.StateFile
	}
	if err := floorplan.SetupLogging(cfg.Logging.Level, cfg.Logging.Format, a.LogOutput); err != nil {
		return err
	}
	a.Config = cfg
	log.Info().Str("config", a.ConfigFile).Str("storage", cfg.Storage.Dir).Msg("Loaded config")
	return nil
}

func (a *App) loadStore() error {
	if err := os.MkdirAll(a.Config.Storage.Dir, 0o755); err != nil {
		return fmt.Errorf("creating storage dir: %w", err)
	}
	st, err := floorplan.LoadStore(a.Config.StatePath())
	if err != nil {
		return err
	}
	a.Store = st
	log.Info().Str("state", a.Config.StatePath()).Int("networks", len(st.Networks())).Msg("Loaded floor metadata")
	return nil
}

func (a *App) saveStore() {
	if a.Store == nil {
		return
	}
	if err := a.Store.Save(a.Config.StatePath()); err != nil {
		log.Error().Err(err).Str("state", a.Config.StatePath()).Msg("Saving floor metadata failed")
	}
}

func (a *App) buildEngine() error {
	annotator, err := floorplan.NewAnnotator(a.Config.Render.FontSize)
	if err != nil {
		return err
	}
	e := floorplan.NewEngine(a.Store, a.Config.Storage.Dir, annotator, floorplan.Resolver{Filter: a.Config.UUIDFilter()})
	e.Versioner = floorplan.NewVersioner(a.Config.Storage.Dir, a.Config.Render.AnnotatedPrefix)
	e.SVGOverlay = a.Config.Render.SVGOverlay
	e.GeoJSON = a.Config.Render.GeoJSON
	if a.Now != nil {
		e.Now = a.Now
	}
	a.Engine = e
	return nil
}

// syncFloorPlans refreshes networks and floor images from the dashboard
func (a *App) syncFloorPlans(ctx context.Context) error {
	if err := a.Config.ValidateSync(); err != nil {
		return err
	}
	client := dashboard.NewClient(a.Config.Meraki.APIKey, dashboard.WithBaseURL(a.Config.Meraki.BaseURL))
	res, err := dashboard.Sync(ctx, client, a.Config.Meraki.Organization, a.Store, a.Config.Storage.Dir)
	if res != nil {
		a.saveStore()
	}
	return err
}

// RunSync downloads floor plans and exits
func (a *App) RunSync() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.loadStore(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.syncFloorPlans(ctx)
}

// RunRender renders one observation batch read from path and exits
func (a *App) RunRender(path string) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.loadStore(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading batch: %w", err)
	}
	batch, err := floorplan.DecodeBatch(data)
	if err != nil {
		return err
	}
	if err := a.buildEngine(); err != nil {
		return err
	}

	report, err := a.Engine.Update(batch)
	if report != nil {
		a.saveStore()
		for _, f := range report.Floors {
			fmt.Fprintf(a.Out, "%s: %s (aps=%d precise=%d fallback=%d skipped=%d)\n",
				f.Key, f.Filename, f.APs, f.Precise, f.Fallback, f.SkippedTotal())
		}
	}
	return err
}

// Update renders a batch and persists the floor metadata it changed
func (a *App) Update(batch *floorplan.ObservationBatch) (*floorplan.UpdateReport, error) {
	report, err := a.Engine.Update(batch)
	if report != nil && len(report.Floors) > 0 {
		a.saveStore()
	}
	return report, err
}

// RunService runs the webhook receiver, the render workers and MQTT until
// SIGINT or SIGTERM.
func (a *App) RunService() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.Config.ValidateWebhook(); err != nil {
		return err
	}
	if err := a.loadStore(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.SyncOnStart || a.Config.Meraki.Sync {
		if err := a.syncFloorPlans(ctx); err != nil {
			log.Error().Err(err).Msg("Floor plan sync failed, continuing with stored metadata")
		}
	}

	if err := a.buildEngine(); err != nil {
		return err
	}
	a.Dispatcher = floorplan.NewDispatcher(a, a.Config.Worker.Count, a.Config.Worker.QueueSize)

	if err := a.startMQTT(); err != nil {
		a.Dispatcher.Close()
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", a.Config.HTTP.Port),
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down service")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	a.Dispatcher.Close()
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	a.saveStore()
	log.Info().Msg("Service stopped")
	return runErr
}

// startMQTT connects when a broker is configured and routes floor updates
// to the publisher. Ingested batches take the same admission path as the webhook.
func (a *App) startMQTT() error {
	client, err := floorplan.InitMQTT(a.Config.MQTT, a.handleIngest)
	if err != nil {
		return fmt.Errorf("initializing MQTT: %w", err)
	}
	if client == nil {
		return nil
	}
	a.MQTTClient = client
	a.Publisher = floorplan.NewPublisher(client.GetClient(), a.Config.MQTT.PublishPrefix)
	a.Engine.Notifier = a.Publisher
	log.Info().Str("prefix", a.Config.MQTT.PublishPrefix).Msg("MQTT floor update publisher initialized")
	return nil
}

func (a *App) handleIngest(topic string, env *floorplan.Envelope, err error) {
	if err != nil {
		return
	}
	id, err := a.admit(env)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Rejected ingested batch")
		return
	}
	log.Debug().Str("topic", topic).Str("job", id).Str("network", env.Data.NetworkID).Msg("Queued ingested batch")
}

// admit checks a decoded envelope against the shared secret and the known
// networks, then queues it for rendering.
func (a *App) admit(env *floorplan.Envelope) (string, error) {
	if err := checkEnvelope(env, a.Config.Meraki.Secret); err != nil {
		floorplan.BatchesTotal.WithLabelValues("rejected").Inc()
		return "", err
	}
	if !a.Store.HasNetwork(env.Data.NetworkID) {
		floorplan.BatchesTotal.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("%w: %s", floorplan.ErrUnknownNetwork, env.Data.NetworkID)
	}
	id, err := a.Dispatcher.Submit(env.Data)
	if err != nil {
		floorplan.BatchesTotal.WithLabelValues("dropped").Inc()
		return "", err
	}
	a.Store.MarkReceived(env.Data.NetworkID, a.now())
	return id, nil
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
