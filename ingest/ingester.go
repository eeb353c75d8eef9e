package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rex8112/HumbleScrapperBot/bundle"
)

// Result describes what one ingested month changed.
type Result struct {
	Month   *bundle.Month
	Created bool           // the month was not archived before
	Added   []*bundle.Item // items seen for the first time
}

// Ingester keeps the archived months in memory and merges freshly scraped
// months into them. The store stays the source of truth: after a failed
// save the cache is dropped and reloaded on next use.
type Ingester struct {
	archive *bundle.Archive
	logger  zerolog.Logger

	mu     sync.Mutex
	months map[string]*bundle.Month
}

func NewIngester(archive *bundle.Archive, logger zerolog.Logger) *Ingester {
	return &Ingester{
		archive: archive,
		logger:  logger.With().Str("component", "ingester").Logger(),
	}
}

// Load replaces the cache with the archive's contents.
func (in *Ingester) Load(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.loadLocked(ctx)
}

func (in *Ingester) loadLocked(ctx context.Context) error {
	months, err := in.archive.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading archive: %w", err)
	}
	in.months = months
	return nil
}

func (in *Ingester) ensureLoaded(ctx context.Context) error {
	if in.months != nil {
		return nil
	}
	return in.loadLocked(ctx)
}

// Ingest archives fresh. A month seen before absorbs it; a new month is
// saved as is.
func (in *Ingester) Ingest(ctx context.Context, fresh *bundle.Month) (Result, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if err := in.ensureLoaded(ctx); err != nil {
		return Result{}, err
	}

	res := Result{Month: fresh}
	if known, ok := in.months[fresh.Key()]; ok {
		added, err := known.Absorb(fresh)
		if err != nil {
			return Result{}, err
		}
		res.Month, res.Added = known, added
	} else {
		res.Created = true
		res.Added = fresh.Items()
	}

	if err := in.archive.Save(ctx, res.Month); err != nil {
		// Absorb may have changed a cached month that did not make it to
		// the store.
		in.months = nil
		return Result{}, err
	}
	in.months[res.Month.Key()] = res.Month

	in.logger.Debug().
		Str("url", res.Month.URL()).
		Bool("created", res.Created).
		Int("added", len(res.Added)).
		Msg("month ingested")
	return res, nil
}

// IngestAll ingests months in order and stops at the first error.
func (in *Ingester) IngestAll(ctx context.Context, months []*bundle.Month) ([]Result, error) {
	results := make([]Result, 0, len(months))
	for _, m := range months {
		res, err := in.Ingest(ctx, m)
		if err != nil {
			return results, fmt.Errorf("ingesting %s: %w", m.URL(), err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Months returns the archived months ordered by year, month, then URL.
func (in *Ingester) Months(ctx context.Context) ([]*bundle.Month, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if err := in.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	out := make([]*bundle.Month, 0, len(in.months))
	for _, m := range in.months {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Year() != b.Year() {
			return a.Year() < b.Year()
		}
		if a.Number() != b.Number() {
			return a.Number() < b.Number()
		}
		return a.URL() < b.URL()
	})
	return out, nil
}

// Month returns the archived month with the given persisted id.
func (in *Ingester) Month(ctx context.Context, id bundle.ID) (*bundle.Month, bool, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if err := in.ensureLoaded(ctx); err != nil {
		return nil, false, err
	}
	for _, m := range in.months {
		if mid, ok := m.ID(); ok && mid == id {
			return m, true, nil
		}
	}
	return nil, false, nil
}
