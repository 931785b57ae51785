package floorplan

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// FloorUpdate is announced after a floor has been rendered and committed
type FloorUpdate struct {
	NetworkID  string `json:"networkId"`
	Floor      string `json:"floor"`
	Filename   string `json:"filename"`
	LastUpdate string `json:"lastupdate"`
	APs        int    `json:"aps"`
	Precise    int    `json:"precise"`
	Fallback   int    `json:"fallback"`
	Skipped    int    `json:"skipped"`
}

// Notifier receives floor updates. Notification failures never fail a render.
type Notifier interface {
	FloorUpdated(u FloorUpdate) error
}

// FloorResult summarizes one successful floor render
type FloorResult struct {
	Key         FloorKey
	Filename    string
	APs         int
	Precise     int
	Fallback    int
	Skipped     map[SkipReason]int
	OutOfBounds int
	Marks       []Mark
}

// SkippedTotal returns the number of devices left off the floor
func (r FloorResult) SkippedTotal() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}

// UpdateReport collects the floors rendered for one batch
type UpdateReport struct {
	NetworkID string
	Floors    []FloorResult
}

// Engine renders observation batches onto the floor images of a network
type Engine struct {
	Store      *Store
	Versioner  Versioner
	Annotator  *Annotator
	Resolver   Resolver
	SVGOverlay bool
	GeoJSON    bool
	Notifier   Notifier
	Now        func() time.Time
}

// NewEngine wires an engine with the default prefix and font when unset
func NewEngine(store *Store, dir string, annotator *Annotator, resolver Resolver) *Engine {
	return &Engine{
		Store:     store,
		Versioner: NewVersioner(dir, ""),
		Annotator: annotator,
		Resolver:  resolver,
		Now:       time.Now,
	}
}

// Update renders every floor registered for the batch's network. Each floor
// is attempted regardless of earlier failures; the returned error joins one
// *FloorError per failed floor. A batch for a network without floor metadata
// fails with ErrUnknownNetwork before any image is touched.
func (e *Engine) Update(batch *ObservationBatch) (*UpdateReport, error) {
	if err := ValidateBatch(batch); err != nil {
		BatchesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if !e.Store.HasNetwork(batch.NetworkID) {
		BatchesTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, batch.NetworkID)
	}
	floors := e.Store.Floors(batch.NetworkID)

	log.Info().
		Str("network", batch.NetworkID).
		Int("floors", len(floors)).
		Int("aps", len(batch.ReportingAPs)).
		Int("observations", len(batch.Observations)).
		Msg("Beginning map update")

	report := &UpdateReport{NetworkID: batch.NetworkID}
	var errs []error
	for _, f := range floors {
		res, err := e.renderFloor(batch, f.Key())
		if err != nil {
			FloorRendersTotal.WithLabelValues("failed").Inc()
			log.Error().Err(err).Str("network", batch.NetworkID).Str("floor", f.Name).Msg("Floor render failed")
			errs = append(errs, &FloorError{Key: f.Key(), Err: err})
			continue
		}
		FloorRendersTotal.WithLabelValues("ok").Inc()
		report.Floors = append(report.Floors, *res)
	}

	if len(errs) > 0 {
		BatchesTotal.WithLabelValues("failed").Inc()
		return report, errors.Join(errs...)
	}
	BatchesTotal.WithLabelValues("rendered").Inc()
	return report, nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// renderFloor holds the floor lock for the whole read-render-commit cycle so
// two batches for the same floor never interleave writes to one destination.
func (e *Engine) renderFloor(batch *ObservationBatch, key FloorKey) (*FloorResult, error) {
	unlock := e.Store.LockFloor(key)
	defer unlock()

	start := time.Now()
	f, ok := e.Store.Floor(key)
	if !ok {
		return nil, fmt.Errorf("floor %s not registered", key)
	}
	if err := NewScale(f, 0, 0).Validate(); err != nil {
		return nil, err
	}
	if f.Filename == "" {
		return nil, fmt.Errorf("%w: floor has no image", ErrImageIO)
	}

	img, err := LoadImage(e.Versioner.SourcePath(f.Filename))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	scale := NewScale(f, bounds.Dx(), bounds.Dy())
	idx := BuildAPIndex(batch.ReportingAPs, f.Name, scale)

	res := &FloorResult{Key: key, Skipped: make(map[SkipReason]int)}
	for _, ap := range idx.All() {
		res.Marks = append(res.Marks, Mark{Kind: MarkAP, Name: ap.Name, Label: ap.Name, Pixel: ap.Pixel})
	}
	res.APs = idx.Len()

	stack := NewLabelStack()
	for _, obs := range batch.Observations {
		p := e.Resolver.Resolve(obs, f.Name, scale, idx, stack)
		if !p.Placed() {
			res.Skipped[p.Skip]++
			DevicePlacements.WithLabelValues(string(p.Skip)).Inc()
			log.Debug().Str("floor", f.Name).Str("device", obs.DisplayName()).Str("reason", string(p.Skip)).Msg("Skipping device")
			continue
		}
		if p.OutOfBounds {
			res.OutOfBounds++
		}
		switch p.Kind {
		case MarkPrecise:
			res.Precise++
		case MarkFallback:
			res.Fallback++
		}
		DevicePlacements.WithLabelValues(string(p.Kind)).Inc()
		res.Marks = append(res.Marks, Mark{Kind: p.Kind, Name: obs.DisplayName(), Label: obs.Label(), Pixel: p.Pixel, Anchor: p.AnchorAP})
	}

	c := e.Annotator.Begin(img)
	for _, m := range res.Marks {
		c.Draw(m)
	}
	_ = c.Close()

	destName := e.Versioner.DestName(f.Filename)
	destPath := e.Versioner.DestPath(f.Filename)
	if err := SaveImage(destPath, c.Image()); err != nil {
		return nil, err
	}
	e.writeSidecars(key, destPath, bounds.Dx(), bounds.Dy(), res.Marks)

	at := e.now()
	if err := e.Store.CommitRender(key, destName, bounds.Dx(), bounds.Dy(), at); err != nil {
		return nil, err
	}
	res.Filename = destName
	FloorRenderDuration.Observe(time.Since(start).Seconds())

	log.Info().
		Str("network", key.NetworkID).
		Str("floor", key.Floor).
		Str("file", destName).
		Int("aps", res.APs).
		Int("precise", res.Precise).
		Int("fallback", res.Fallback).
		Int("skipped", res.SkippedTotal()).
		Int("outOfBounds", res.OutOfBounds).
		Dur("took", time.Since(start)).
		Msg("Floor updated")

	if e.Notifier != nil {
		u := FloorUpdate{
			NetworkID:  key.NetworkID,
			Floor:      key.Floor,
			Filename:   destName,
			LastUpdate: at.Format(LastUpdateLayout),
			APs:        res.APs,
			Precise:    res.Precise,
			Fallback:   res.Fallback,
			Skipped:    res.SkippedTotal(),
		}
		if err := e.Notifier.FloorUpdated(u); err != nil {
			log.Warn().Err(err).Str("floor", key.String()).Msg("Floor update notification failed")
		}
	}
	return res, nil
}

// writeSidecars writes the optional SVG and GeoJSON files next to the
// annotated image. Their failure is logged; the raster is already saved.
func (e *Engine) writeSidecars(key FloorKey, destPath string, w, h int, marks []Mark) {
	base := strings.TrimSuffix(destPath, filepath.Ext(destPath))

	if e.SVGOverlay {
		err := WriteAtomic(base+".svg", func(f io.Writer) error {
			return WriteOverlaySVG(f, w, h, marks)
		})
		if err != nil {
			log.Warn().Err(err).Str("floor", key.String()).Msg("Writing SVG overlay failed")
		}
	}

	if e.GeoJSON {
		data, err := MarksGeoJSON(key, marks).MarshalJSON()
		if err == nil {
			err = WriteAtomic(base+".geojson", func(f io.Writer) error {
				_, werr := f.Write(data)
				return werr
			})
		}
		if err != nil {
			log.Warn().Err(err).Str("floor", key.String()).Msg("Writing GeoJSON sidecar failed")
		}
	}
}
