package source

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/josemimbre/cachedict/column"
)

// DefaultSQLChunkSize bounds the number of keys per IN clause.
const DefaultSQLChunkSize = 1000

// SQL is a Source reading attribute values from a relational table: one row
// per key, one column per attribute. Large key batches are split into IN
// clause chunks and queried in parallel.
type SQL[K comparable] struct {
	db        *sqlx.DB
	table     string
	keyColumn string
	chunkSize int
	parallel  int
}

// SQLOption configures an SQL source.
type SQLOption[K comparable] func(*SQL[K])

// WithSQLChunkSize sets the maximum number of keys per query.
func WithSQLChunkSize[K comparable](n int) SQLOption[K] {
	return func(s *SQL[K]) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithSQLParallelism bounds how many chunk queries run concurrently.
// Defaults to 4.
func WithSQLParallelism[K comparable](n int) SQLOption[K] {
	return func(s *SQL[K]) {
		if n > 0 {
			s.parallel = n
		}
	}
}

// NewSQL creates an SQL source over db. table and keyColumn name the backing
// table and its key column; attribute names must match the table's column
// names.
func NewSQL[K comparable](db *sqlx.DB, table, keyColumn string, opts ...SQLOption[K]) (*SQL[K], error) {
	if table == "" || keyColumn == "" {
		return nil, fmt.Errorf("source: sql source needs table and key column")
	}

	s := &SQL[K]{
		db:        db,
		table:     table,
		keyColumn: keyColumn,
		chunkSize: DefaultSQLChunkSize,
		parallel:  4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FetchColumns implements Source.
func (s *SQL[K]) FetchColumns(ctx context.Context, keys []K, req *column.FetchRequest) (map[K][]any, error) {
	attrs := req.Attributes()

	names := make([]string, 0, len(attrs)+1)
	names = append(names, s.keyColumn)
	for _, a := range attrs {
		names = append(names, a.Name)
	}
	baseQuery := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s IN (?)",
		strings.Join(names, ", "), s.table, s.keyColumn,
	)

	out := make(map[K][]any, len(keys))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)

	for start := 0; start < len(keys); start += s.chunkSize {
		chunk := keys[start:min(start+s.chunkSize, len(keys))]
		g.Go(func() error {
			return s.fetchChunk(ctx, baseQuery, chunk, attrs, out, &mu)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

func (s *SQL[K]) fetchChunk(ctx context.Context, baseQuery string, chunk []K, attrs []column.Attribute, out map[K][]any, mu *sync.Mutex) error {
	query, args, err := sqlx.In(baseQuery, chunk)
	if err != nil {
		return fmt.Errorf("source: expand IN clause: %w", err)
	}
	query = s.db.Rebind(query)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("source: query %s: %w", s.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		scanned, err := rows.SliceScan()
		if err != nil {
			return fmt.Errorf("source: scan %s: %w", s.table, err)
		}
		if len(scanned) != len(attrs)+1 {
			return fmt.Errorf("source: expected %d columns, got %d", len(attrs)+1, len(scanned))
		}

		key, err := scanKey[K](scanned[0])
		if err != nil {
			return fmt.Errorf("source: key column %s: %w", s.keyColumn, err)
		}

		row := make([]any, len(attrs))
		for i, a := range attrs {
			v, err := column.NormalizeValue(a.Type, scanned[i+1])
			if err != nil {
				return fmt.Errorf("source: column %q: %w", a.Name, err)
			}
			row[i] = v
		}

		mu.Lock()
		out[key] = row
		mu.Unlock()
	}
	return rows.Err()
}

// scanKey converts a driver-returned key value into K.
func scanKey[K comparable](v any) (K, error) {
	var zero K
	switch any(zero).(type) {
	case uint64:
		u, err := column.NormalizeValue(column.TypeUInt64, v)
		if err != nil {
			return zero, err
		}
		return any(u).(K), nil
	case string:
		s, err := column.NormalizeValue(column.TypeString, v)
		if err != nil {
			return zero, err
		}
		return any(s).(K), nil
	default:
		return zero, fmt.Errorf("unsupported key type %T", zero)
	}
}

// Close implements Source.
func (s *SQL[K]) Close() error {
	return s.db.Close()
}
