// Package gc removes encrypted payloads that no document references. They
// appear when an upload is cancelled or its commit fails after the payload
// was already written.
package gc

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiabasekou/ged-project/internal/blobstore"
	"github.com/kiabasekou/ged-project/internal/metrics"
)

// DefaultGracePeriod keeps recent payloads whose document insert may still be
// in flight.
const DefaultGracePeriod = 24 * time.Hour

// LocatorSource lists every locator referenced by a stored document.
type LocatorSource interface {
	ReferencedLocators(ctx context.Context) (map[string]struct{}, error)
}

// Report summarizes one sweep.
type Report struct {
	Scanned        int      `json:"scanned" yaml:"scanned"`
	Referenced     int      `json:"referenced" yaml:"referenced"`
	Young          int      `json:"young" yaml:"young"`
	Orphans        []string `json:"orphans" yaml:"orphans"`
	Deleted        int      `json:"deleted" yaml:"deleted"`
	BytesReclaimed int64    `json:"bytesReclaimed" yaml:"bytes_reclaimed"`
	DryRun         bool     `json:"dryRun" yaml:"dry_run"`
}

// Collector sweeps a medium for orphaned payloads.
type Collector struct {
	medium  blobstore.Medium
	refs    LocatorSource
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewCollector builds a Collector.
func NewCollector(medium blobstore.Medium, refs LocatorSource, log zerolog.Logger, m *metrics.Metrics) *Collector {
	return &Collector{medium: medium, refs: refs, log: log, metrics: m, now: time.Now}
}

// Run walks the medium and deletes every payload older than grace that no
// document references. With dryRun it only reports.
func (c *Collector) Run(ctx context.Context, grace time.Duration, dryRun bool) (*Report, error) {
	if grace < 0 {
		grace = 0
	}
	cutoff := c.now().Add(-grace)
	report := &Report{DryRun: dryRun, Orphans: []string{}}

	var candidates []blobstore.ObjectInfo
	err := c.medium.Walk(ctx, func(obj blobstore.ObjectInfo) error {
		report.Scanned++
		if obj.ModTime.After(cutoff) {
			report.Young++
			return nil
		}
		candidates = append(candidates, obj)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk medium: %w", err)
	}

	// Load references after listing so a document committed during the walk
	// still protects its payload.
	refs, err := c.refs.ReferencedLocators(ctx)
	if err != nil {
		return nil, fmt.Errorf("load referenced locators: %w", err)
	}

	for _, obj := range candidates {
		if _, ok := refs[obj.Key]; ok {
			report.Referenced++
			continue
		}
		report.Orphans = append(report.Orphans, obj.Key)
		if dryRun {
			continue
		}
		if err := c.medium.Delete(ctx, obj.Key); err != nil {
			c.log.Warn().Err(err).Str("locator", obj.Key).Msg("delete orphan failed")
			continue
		}
		report.Deleted++
		report.BytesReclaimed += obj.Size
	}
	c.metrics.OrphansRemoved(report.Deleted)
	c.log.Info().
		Int("scanned", report.Scanned).
		Int("orphans", len(report.Orphans)).
		Int("deleted", report.Deleted).
		Bool("dry_run", dryRun).
		Msg("orphan sweep finished")
	return report, nil
}
