package cachedict

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hashicorp/go-multierror"

	"github.com/josemimbre/cachedict/column"
	"github.com/josemimbre/cachedict/source"
	"github.com/josemimbre/cachedict/storage"
	"github.com/josemimbre/cachedict/updatequeue"
)

// Result is the outcome of a batched lookup. Columns hold one row per
// requested key, in request order; keys without a source value carry their
// attribute defaults.
type Result struct {
	// Columns are the fetched attribute columns, one row per requested key.
	Columns []column.Column

	// Found marks key positions served with a real value. Positions absent
	// from the bitmap got attribute defaults: the backing source does not
	// know the key, or its refresh did not complete.
	Found *roaring.Bitmap

	// Stale marks key positions served with a value past its freshness
	// deadline while a background refresh replaces it. Always empty unless
	// WithAllowReadExpiredKeys is set.
	Stale *roaring.Bitmap
}

// unitFactory builds update units for the dictionary's key representation.
type unitFactory[K updatequeue.Key] func(keys []K, req *column.FetchRequest) (*updatequeue.UpdateUnit[K], error)

// CacheDictionary is an in-memory attribute dictionary over a slower backing
// source. Lookups are served from storage; missing and expired keys are
// refreshed through a bounded update queue.
//
// A dictionary is safe for concurrent use.
type CacheDictionary[K updatequeue.Key] struct {
	name    string
	storage storage.Storage[K]
	source  source.Source[K]
	queue   *updatequeue.UpdateQueue[K]
	newUnit unitFactory[K]

	allowReadExpired bool
	sourceTimeout    time.Duration

	logger  *Logger
	metrics MetricsCollector

	closed atomic.Bool
}

// NewSimple creates a dictionary over fixed-width uint64 keys.
func NewSimple(name string, st storage.Storage[uint64], src source.Source[uint64], optFns ...Option) (*CacheDictionary[uint64], error) {
	return newDictionary[uint64](name, st, src, func(m *updatequeue.Metrics) unitFactory[uint64] {
		return func(keys []uint64, req *column.FetchRequest) (*updatequeue.UpdateUnit[uint64], error) {
			return updatequeue.NewSimpleUnit(keys, req, m), nil
		}
	}, optFns)
}

// NewComplex creates a dictionary over complex keys: multi-column keys
// serialized into byte strings (see column.SerializeKeyRows). The update
// units copy the key bytes into a private arena, so callers may discard
// their key columns as soon as a lookup returns.
func NewComplex(name string, st storage.Storage[string], src source.Source[string], optFns ...Option) (*CacheDictionary[string], error) {
	return newDictionary[string](name, st, src, func(m *updatequeue.Metrics) unitFactory[string] {
		return func(keys []string, req *column.FetchRequest) (*updatequeue.UpdateUnit[string], error) {
			return updatequeue.NewComplexUnitFromSerialized(keys, req, m), nil
		}
	}, optFns)
}

func newDictionary[K updatequeue.Key](name string, st storage.Storage[K], src source.Source[K], factory func(m *updatequeue.Metrics) unitFactory[K], optFns []Option) (*CacheDictionary[K], error) {
	if name == "" {
		return nil, fmt.Errorf("cachedict: dictionary needs a name")
	}
	if st == nil {
		return nil, fmt.Errorf("cachedict: dictionary %q needs a storage", name)
	}
	if src == nil {
		return nil, fmt.Errorf("cachedict: dictionary %q needs a source", name)
	}

	opts := applyOptions(optFns)

	d := &CacheDictionary[K]{
		name:             name,
		storage:          st,
		source:           src,
		allowReadExpired: opts.allowReadExpired,
		sourceTimeout:    opts.sourceTimeout,
		logger:           opts.logger.WithDictionary(name),
		metrics:          opts.metricsCollector,
	}

	qm := updatequeue.NewMetrics()
	d.newUnit = factory(qm)

	queue, err := updatequeue.New(name, opts.queueConfig, d.runUpdate,
		updatequeue.WithLogger(opts.logger.Logger),
		updatequeue.WithMetrics(qm),
	)
	if err != nil {
		return nil, err
	}
	d.queue = queue

	return d, nil
}

// Name returns the dictionary's name.
func (d *CacheDictionary[K]) Name() string {
	return d.name
}

// Len returns the number of cached entries, including negative ones.
func (d *CacheDictionary[K]) Len() int {
	return d.storage.Len()
}

// QueueMetrics returns the update queue's outstanding-work gauges.
func (d *CacheDictionary[K]) QueueMetrics() *updatequeue.Metrics {
	return d.queue.Metrics()
}

// Delete drops key from the cache. The next lookup will refresh it from the
// backing source. It reports whether an entry existed.
func (d *CacheDictionary[K]) Delete(key K) bool {
	return d.storage.Delete(key)
}

// FetchColumns looks up the requested attributes for keys.
//
// Cached fresh keys are served directly. Keys missing from the cache are
// refreshed synchronously: the call blocks until their batch completes or
// times out. Expired keys block too, unless WithAllowReadExpiredKeys is set,
// in which case the stale values are returned immediately and a background
// refresh replaces them.
//
// On error no partial Result is returned.
func (d *CacheDictionary[K]) FetchColumns(ctx context.Context, keys []K, req *column.FetchRequest) (*Result, error) {
	start := time.Now()

	if d.closed.Load() {
		return nil, ErrClosed
	}
	if req == nil {
		return nil, fmt.Errorf("cachedict: fetch request is nil")
	}

	probe := d.storage.Fetch(keys, req)

	// Classify every position: served from cache, served stale with a
	// background refresh, or refreshed synchronously.
	var staleKeys, missKeys []K
	hits := 0
	for i, k := range keys {
		pos := uint32(i)
		if !probe.Found.Contains(pos) {
			missKeys = append(missKeys, k)
			continue
		}
		if probe.Expired.Contains(pos) {
			if !d.allowReadExpired {
				missKeys = append(missKeys, k)
				continue
			}
			staleKeys = append(staleKeys, k)
		}
		hits++
	}

	// Fire the background refresh before blocking on the synchronous one so
	// it makes progress during the wait. A failed push only delays the
	// refresh; the stale values below are still served.
	if len(staleKeys) > 0 {
		d.refreshInBackground(ctx, staleKeys, req)
	}

	var unit *updatequeue.UpdateUnit[K]
	if len(missKeys) > 0 {
		var err error
		unit, err = d.refreshAndWait(missKeys, req)
		if err != nil {
			d.metrics.RecordFetch(len(keys), hits, len(missKeys), time.Since(start), err)
			d.logger.LogFetch(ctx, len(keys), hits, len(missKeys), err)
			return nil, err
		}
	}

	res := &Result{
		Columns: req.MakeResultColumns(),
		Found:   roaring.New(),
		Stale:   roaring.New(),
	}
	attrs := req.Attributes()

	for i, k := range keys {
		pos := uint32(i)
		cached := probe.Found.Contains(pos)
		expired := probe.Expired.Contains(pos)

		if cached && (!expired || d.allowReadExpired) {
			if probe.Missing.Contains(pos) {
				if err := appendDefaults(attrs, res.Columns); err != nil {
					return nil, err
				}
			} else {
				if err := appendValues(res.Columns, probe.Rows[i].Values); err != nil {
					return nil, err
				}
				res.Found.Add(pos)
			}
			if expired {
				res.Stale.Add(pos)
			}
			continue
		}

		// Refreshed synchronously: read the worker's result row.
		row, ok := unit.KeyToResultRow[k]
		if ok && unit.FoundRows.Contains(uint32(row)) {
			for ci := range attrs {
				if err := res.Columns[ci].Append(unit.ResultColumns[ci].Get(row)); err != nil {
					return nil, fmt.Errorf("cachedict: assemble result: %w", err)
				}
			}
			res.Found.Add(pos)
		} else {
			if err := appendDefaults(attrs, res.Columns); err != nil {
				return nil, err
			}
		}
	}

	d.metrics.RecordFetch(len(keys), hits, len(missKeys), time.Since(start), nil)
	d.logger.LogFetch(ctx, len(keys), hits, len(missKeys), nil)
	return res, nil
}

// refreshAndWait pushes a synchronous refresh batch and blocks until it
// completes. The returned unit is done and safe to read.
func (d *CacheDictionary[K]) refreshAndWait(keys []K, req *column.FetchRequest) (*updatequeue.UpdateUnit[K], error) {
	unit, err := d.newUnit(keys, req)
	if err != nil {
		return nil, err
	}

	if err := d.queue.TryPush(unit); err != nil {
		unit.Release()
		return nil, translateError(err)
	}
	if err := d.queue.WaitForUpdateFinish(unit); err != nil {
		return nil, translateError(err)
	}
	return unit, nil
}

// refreshInBackground pushes a fire-and-forget refresh batch for keys being
// served stale. Nobody waits on the unit; the worker's merge into storage is
// the only effect.
func (d *CacheDictionary[K]) refreshInBackground(ctx context.Context, keys []K, req *column.FetchRequest) {
	d.metrics.RecordStaleServe(len(keys))
	d.logger.LogStaleServe(ctx, len(keys))

	unit, err := d.newUnit(keys, req)
	if err != nil {
		d.logger.Warn("background refresh unit not built", "keys", len(keys), "error", err)
		return
	}
	if err := d.queue.TryPush(unit); err != nil {
		unit.Release()
		d.logger.Debug("background refresh not queued", "keys", len(keys), "error", err)
	}
}

// runUpdate is the queue's update function: fetch the unit's keys from the
// backing source, fill the unit's result columns, and merge into storage.
// It appends one row per distinct requested key, defaults for keys the
// source does not know; FoundRows marks the real ones.
func (d *CacheDictionary[K]) runUpdate(unit *updatequeue.UpdateUnit[K]) error {
	start := time.Now()
	keys := unit.RequestedKeys()

	ctx := context.Background()
	if d.sourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.sourceTimeout)
		defer cancel()
	}

	rows, err := d.source.FetchColumns(ctx, keys, unit.Request)
	if err != nil {
		d.metrics.RecordRefresh(len(keys), 0, time.Since(start), err)
		d.logger.LogRefresh(ctx, len(keys), 0, time.Since(start), err)
		return err
	}

	attrs := unit.Request.Attributes()
	row := 0
	found := 0
	for _, k := range keys {
		if _, dup := unit.KeyToResultRow[k]; dup {
			continue
		}

		values, ok := rows[k]
		if ok {
			if err := appendValues(unit.ResultColumns, values); err != nil {
				return fmt.Errorf("merge key %v: %w", k, err)
			}
			unit.FoundRows.Add(uint32(row))
			d.storage.Insert(k, storage.Row{Values: values})
			found++
		} else {
			if err := appendDefaults(attrs, unit.ResultColumns); err != nil {
				return fmt.Errorf("merge key %v: %w", k, err)
			}
			d.storage.InsertMissing(k)
		}
		unit.KeyToResultRow[k] = row
		row++
	}

	d.metrics.RecordRefresh(len(keys), found, time.Since(start), nil)
	d.logger.LogRefresh(ctx, len(keys), found, time.Since(start), nil)
	return nil
}

// Close stops the update queue, letting in-flight batches drain, and closes
// the storage and the backing source. Idempotent; calls after the first
// return nil.
func (d *CacheDictionary[K]) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.queue.StopAndWait()

	var result *multierror.Error
	if err := d.storage.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close storage: %w", err))
	}
	if err := d.source.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close source: %w", err))
	}

	err := result.ErrorOrNil()
	d.logger.LogClose(err)
	return err
}

// FetchComplexColumns looks up attributes for multi-column keys: each
// requested row across keyColumns is serialized to the dictionary's complex
// key form and fetched through d.FetchColumns. Result positions follow the
// order of rows.
func FetchComplexColumns(ctx context.Context, d *CacheDictionary[string], keyColumns []column.Column, rows []int, req *column.FetchRequest) (*Result, error) {
	keys, err := column.SerializeKeyRows(keyColumns, rows)
	if err != nil {
		return nil, err
	}
	return d.FetchColumns(ctx, keys, req)
}

func appendValues(cols []column.Column, values []any) error {
	if len(values) != len(cols) {
		return fmt.Errorf("cachedict: row has %d values, want %d", len(values), len(cols))
	}
	for i, v := range values {
		if err := cols[i].Append(v); err != nil {
			return err
		}
	}
	return nil
}

func appendDefaults(attrs []column.Attribute, cols []column.Column) error {
	for i, a := range attrs {
		if err := a.AppendDefault(cols[i]); err != nil {
			return err
		}
	}
	return nil
}
