package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kwv/blemap/floorplan"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultDownloadConcurrency bounds parallel image downloads during a sync
const DefaultDownloadConcurrency = 4

// API is the subset of Client used by Sync
type API interface {
	OrganizationByName(ctx context.Context, name string) (Organization, error)
	Networks(ctx context.Context, orgID string) ([]Network, error)
	FloorPlans(ctx context.Context, networkID string) ([]FloorPlan, error)
	Download(ctx context.Context, imageURL string, w io.Writer) error
}

// SyncResult counts what a sync registered
type SyncResult struct {
	Networks int
	Floors   int
	Failed   int
}

// ImageFilename is the on-disk name of a floor's pristine image
func ImageFilename(networkName, floorName, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "png"
	}
	name := fmt.Sprintf("%s - %s.%s", networkName, floorName, ext)
	return strings.NewReplacer("/", "_", "\\", "_").Replace(name)
}

// Sync pulls the organization's networks and floor plans into store and
// downloads every floor image into dir. Floors whose image fails to download
// are not registered; their errors are returned joined after all downloads.
func Sync(ctx context.Context, api API, orgName string, store *floorplan.Store, dir string) (*SyncResult, error) {
	org, err := api.OrganizationByName(ctx, orgName)
	if err != nil {
		return nil, err
	}
	nets, err := api.Networks(ctx, org.ID)
	if err != nil {
		return nil, fmt.Errorf("listing networks for %s: %w", org.Name, err)
	}

	type pending struct {
		floor floorplan.Floor
		err   error
	}
	var jobs []*pending

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultDownloadConcurrency)

	res := &SyncResult{}
	for _, n := range nets {
		plans, err := api.FloorPlans(ctx, n.ID)
		if err != nil {
			_ = g.Wait()
			return nil, fmt.Errorf("listing floor plans for %s: %w", n.Name, err)
		}
		store.PutNetwork(n.ID, n.Name)
		res.Networks++

		for _, p := range plans {
			job := &pending{floor: floorplan.Floor{
				NetworkID: n.ID,
				Name:      p.Name,
				Filename:  ImageFilename(n.Name, p.Name, p.ImageExtension),
				Width:     p.Width,
				Height:    p.Height,
			}}
			jobs = append(jobs, job)

			g.Go(func() error {
				path := filepath.Join(dir, job.floor.Filename)
				job.err = floorplan.WriteAtomic(path, func(w io.Writer) error {
					return api.Download(gctx, p.ImageURL, w)
				})
				return nil
			})
		}
	}
	_ = g.Wait()

	// register in listing order so floors render in dashboard order
	var failures []error
	for _, job := range jobs {
		f := job.floor
		if job.err != nil {
			log.Error().Err(job.err).Str("network", f.NetworkID).Str("floor", f.Name).Msg("Floor plan download failed")
			failures = append(failures, fmt.Errorf("floor %s: %w", f.Key(), job.err))
			res.Failed++
			continue
		}
		store.PutFloor(f)
		res.Floors++
		log.Debug().Str("network", f.NetworkID).Str("floor", f.Name).Str("file", f.Filename).Msg("Downloaded floor plan")
	}

	log.Info().Str("organization", org.Name).Int("networks", res.Networks).Int("floors", res.Floors).Int("failed", res.Failed).Msg("Floor plan sync complete")
	return res, errors.Join(failures...)
}
