package main

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/kwv/blemap/floorplan"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// maxWebhookBody caps a single observation payload
const maxWebhookBody = 16 << 20

var (
	errBadSecret  = errors.New("incorrect payload secret")
	errBadVersion = errors.New("API version not 3.x")
)

// checkEnvelope applies the shared-secret and API version checks
func checkEnvelope(env *floorplan.Envelope, secret string) error {
	if env.Secret != secret {
		return errBadSecret
	}
	if !strings.Contains(env.Version, "3") {
		return errBadVersion
	}
	return nil
}

// newRouter creates the HTTP handler with all endpoints
func newRouter(a *App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	webhook := r.With()
	if a.Config.HTTP.RateLimit > 0 {
		webhook = r.With(httprate.LimitByIP(a.Config.HTTP.RateLimit, time.Minute))
	}
	webhook.Get("/location_info", a.handleValidator)
	webhook.Post("/location_info", a.handleLocationInfo)

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/networks", a.handleNetworks)
		r.Get("/networks/{networkID}/floors", a.handleFloors)
	})

	files := http.StripPrefix("/floorplans/", http.FileServer(http.Dir(a.Config.Storage.Dir)))
	r.Get("/floorplans/*", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, r)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Encoding HTTP response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleValidator answers the dashboard's endpoint validation probe
func (a *App) handleValidator(w http.ResponseWriter, r *http.Request) {
	log.Debug().Str("remote", r.RemoteAddr).Msg("Validator requested")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, a.Config.Meraki.Validator)
}

func (a *App) handleLocationInfo(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Wrong data format")
		return
	}

	// secret and version are checked before the payload shape
	var head struct {
		Version string `json:"version"`
		Secret  string `json:"secret"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		writeError(w, http.StatusBadRequest, "Wrong data format")
		return
	}
	if err := checkEnvelope(&floorplan.Envelope{Version: head.Version, Secret: head.Secret}, a.Config.Meraki.Secret); err != nil {
		log.Warn().Str("remote", r.RemoteAddr).Err(err).Msg("Rejected webhook")
		floorplan.BatchesTotal.WithLabelValues("rejected").Inc()
		if errors.Is(err, errBadSecret) {
			writeError(w, http.StatusUnauthorized, "Incorrect payload secret")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	env, err := floorplan.DecodeEnvelope(body)
	if err != nil {
		log.Warn().Err(err).Msg("Malformed observation batch")
		floorplan.BatchesTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "Wrong data format")
		return
	}

	id, err := a.admit(env)
	switch {
	case err == nil:
	case errors.Is(err, floorplan.ErrUnknownNetwork):
		log.Warn().Str("network", env.Data.NetworkID).Msg("Batch for unknown network")
		writeError(w, http.StatusBadRequest, "Unknown network")
		return
	case errors.Is(err, floorplan.ErrQueueFull), errors.Is(err, floorplan.ErrDispatcherClosed):
		log.Warn().Err(err).Str("network", env.Data.NetworkID).Msg("Dropping batch")
		writeError(w, http.StatusServiceUnavailable, "Render queue full")
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().
		Str("network", env.Data.NetworkID).
		Str("job", id).
		Int("observations", len(env.Data.Observations)).
		Msg("Accepted observation batch")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "jobId": id})
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
		Networks  int       `json:"networks"`
		MQTT      bool      `json:"mqtt"`
	}{
		Status:    "ok",
		Timestamp: a.now(),
		Networks:  len(a.Store.Networks()),
		MQTT:      a.MQTTClient != nil && a.MQTTClient.IsConnected(),
	}
	writeJSON(w, http.StatusOK, status)
}

type networkView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Floors       int    `json:"floors"`
	LastReceived string `json:"lastReceived"`
}

func (a *App) handleNetworks(w http.ResponseWriter, _ *http.Request) {
	nets := a.Store.Networks()
	out := make([]networkView, 0, len(nets))
	for _, n := range nets {
		v := networkView{ID: n.ID, Name: n.Name, Floors: len(a.Store.Floors(n.ID)), LastReceived: "Never"}
		if !n.LastReceived.IsZero() {
			v.LastReceived = n.LastReceived.Format(floorplan.LastUpdateLayout)
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

type floorView struct {
	Name        string  `json:"name"`
	Filename    string  `json:"filename"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	ImageWidth  int     `json:"imageWidth"`
	ImageHeight int     `json:"imageHeight"`
	LastUpdate  string  `json:"lastupdate"`
}

func (a *App) handleFloors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "networkID")
	if !a.Store.HasNetwork(id) {
		writeError(w, http.StatusNotFound, "Unknown network")
		return
	}
	floors := a.Store.Floors(id)
	out := make([]floorView, 0, len(floors))
	for _, f := range floors {
		out = append(out, floorView{
			Name:        f.Name,
			Filename:    f.Filename,
			Width:       f.Width,
			Height:      f.Height,
			ImageWidth:  f.ImageWidth,
			ImageHeight: f.ImageHeight,
			LastUpdate:  f.LastUpdateString(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
