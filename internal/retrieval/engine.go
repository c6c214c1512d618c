// internal/retrieval/engine.go
package retrieval

import (
	"context"
	"sync"
	"time"

	stderrors "trip-report-bot/internal/common/errors"
	"trip-report-bot/internal/common/logger"
	"trip-report-bot/internal/common/metrics"
	"trip-report-bot/internal/filter"
	"trip-report-bot/internal/store"
)

// TripFetcher executes one sub-query against the trip store.
type TripFetcher interface {
	FetchTrips(ctx context.Context, q store.SubQuery) ([]store.TripRecord, error)
}

// StationResolver maps areas to their filling stations.
type StationResolver interface {
	StationsForAreas(ctx context.Context, areas []filter.Area) (map[int][]store.Station, error)
}

// Result is a fully merged retrieval. Records keep sub-query order:
// areas in request order, categories within each area.
type Result struct {
	Filter     filter.Filter
	Records    []store.TripRecord
	SubQueries int
	Elapsed    time.Duration
}

// Engine fans a complete filter out into per (area, category) sub-queries
// with bounded concurrency. Every dispatched sub-query runs to its own
// completion; a failure elsewhere never cancels work in flight. If any
// sub-query still fails after retries the whole retrieval fails and the
// partial records are discarded, with a fatal error reported over a
// transient one.
type Engine struct {
	fetcher       TripFetcher
	stations      StationResolver
	policy        RetryPolicy
	maxConcurrent int
	logger        logger.Logger
}

func NewEngine(fetcher TripFetcher, stations StationResolver, policy RetryPolicy, maxConcurrent int, log logger.Logger) *Engine {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Engine{
		fetcher:       fetcher,
		stations:      stations,
		policy:        policy,
		maxConcurrent: maxConcurrent,
		logger:        log.With(map[string]interface{}{"component": "retrieval"}),
	}
}

func (e *Engine) Run(ctx context.Context, f filter.Filter) (*Result, error) {
	started := time.Now()
	defer func() {
		metrics.RetrievalDuration.Observe(time.Since(started).Seconds())
	}()

	byArea, err := e.stations.StationsForAreas(ctx, f.Areas)
	if err != nil {
		return nil, stderrors.NewFatalStoreError(err)
	}

	queries := expand(f, byArea)
	e.logger.Info("retrieval started", map[string]interface{}{
		"subQueries": len(queries),
		"categories": len(f.Categories),
		"areas":      len(f.Areas),
	})

	if len(queries) == 0 {
		return &Result{Filter: f, Elapsed: time.Since(started)}, nil
	}

	results := make([][]store.TripRecord, len(queries))
	errs := make([]error, len(queries))

	sem := make(chan struct{}, e.maxConcurrent)
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q store.SubQuery) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			errs[i] = e.policy.Do(ctx, func(ctx context.Context) error {
				records, err := e.fetcher.FetchTrips(ctx, q)
				if err != nil {
					return err
				}
				results[i] = records
				return nil
			})

			switch {
			case errs[i] == nil:
				metrics.SubQueriesTotal.WithLabelValues("success").Inc()
			case stderrors.IsTransient(errs[i]):
				metrics.SubQueriesTotal.WithLabelValues("transient").Inc()
			default:
				metrics.SubQueriesTotal.WithLabelValues("fatal").Inc()
			}
		}(i, q)
	}
	wg.Wait()

	if err := worst(errs); err != nil {
		e.logger.Error("retrieval failed", map[string]interface{}{
			"error":      err.Error(),
			"subQueries": len(queries),
		})
		return nil, err
	}

	var merged []store.TripRecord
	for _, r := range results {
		merged = append(merged, r...)
	}

	e.logger.Info("retrieval finished", map[string]interface{}{
		"records": len(merged),
		"elapsed": time.Since(started).String(),
	})
	return &Result{
		Filter:     f,
		Records:    merged,
		SubQueries: len(queries),
		Elapsed:    time.Since(started),
	}, nil
}

// expand builds the (area, category) Cartesian product. An area absent
// from the station directory produces sub-queries with no stations;
// those legitimately match nothing.
func expand(f filter.Filter, byArea map[int][]store.Station) []store.SubQuery {
	if f.Period == nil {
		return nil
	}
	queries := make([]store.SubQuery, 0, len(f.Areas)*len(f.Categories))
	for _, area := range f.Areas {
		ids := make([]string, 0, len(byArea[area.Number]))
		for _, st := range byArea[area.Number] {
			ids = append(ids, st.ID)
		}
		for _, cat := range f.Categories {
			queries = append(queries, store.SubQuery{
				Category:   cat,
				Area:       area,
				Period:     *f.Period,
				StationIDs: ids,
			})
		}
	}
	return queries
}

// worst picks the error that decides the retrieval: any fatal error
// beats any transient one.
func worst(errs []error) error {
	var transient error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !stderrors.IsTransient(err) {
			return err
		}
		if transient == nil {
			transient = err
		}
	}
	return transient
}
