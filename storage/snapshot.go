package storage

import (
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the snapshot payload codec.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

const (
	snapshotMagic   = "CDS1"
	snapshotVersion = 1
)

func init() {
	// Row values travel through an interface; register the concrete value
	// types columns can hold.
	gob.Register(uint64(0))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register("")
}

type snapshotEntry[K comparable] struct {
	Key       K
	Values    []any
	Missing   bool
	StaleAt   time.Time
	ExpiresAt time.Time
}

// Dump writes the storage's current entries to w so a restarted process can
// warm-start its cache. Entries keep their expiry deadlines: what is stale
// now is stale after Load too.
func (s *TTLStorage[K]) Dump(w io.Writer, c Compression) error {
	var entries []snapshotEntry[K]
	s.cache.Range(func(item *ttlcache.Item[K, entry]) bool {
		e := item.Value()
		entries = append(entries, snapshotEntry[K]{
			Key:       item.Key(),
			Values:    e.row.Values,
			Missing:   e.missing,
			StaleAt:   e.staleAt,
			ExpiresAt: item.ExpiresAt(),
		})
		return true
	})

	header := append([]byte(snapshotMagic), snapshotVersion, byte(c))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("storage: write snapshot header: %w", err)
	}

	payload, closePayload, err := compressionWriter(w, c)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(payload).Encode(entries); err != nil {
		closePayload()
		return fmt.Errorf("storage: encode snapshot: %w", err)
	}
	return closePayload()
}

// Load merges entries from a snapshot written by Dump into the storage.
// Entries whose expiry deadline has passed are skipped.
func (s *TTLStorage[K]) Load(r io.Reader) error {
	header := make([]byte, len(snapshotMagic)+2)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("storage: read snapshot header: %w", err)
	}
	if string(header[:len(snapshotMagic)]) != snapshotMagic {
		return fmt.Errorf("storage: bad snapshot magic %q", header[:len(snapshotMagic)])
	}
	if header[len(snapshotMagic)] != snapshotVersion {
		return fmt.Errorf("storage: unsupported snapshot version %d", header[len(snapshotMagic)])
	}

	payload, closePayload, err := compressionReader(r, Compression(header[len(snapshotMagic)+1]))
	if err != nil {
		return err
	}
	defer closePayload()

	var entries []snapshotEntry[K]
	if err := gob.NewDecoder(payload).Decode(&entries); err != nil {
		return fmt.Errorf("storage: decode snapshot: %w", err)
	}

	now := time.Now()
	for _, se := range entries {
		ttl := se.ExpiresAt.Sub(now)
		if ttl <= 0 {
			continue
		}
		s.cache.Set(se.Key, entry{
			row:     Row{Values: se.Values},
			missing: se.Missing,
			staleAt: se.StaleAt,
		}, ttl)
	}
	return nil
}

func compressionWriter(w io.Writer, c Compression) (io.Writer, func() error, error) {
	switch c {
	case CompressionNone:
		return w, func() error { return nil }, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: zstd writer: %w", err)
		}
		return zw, zw.Close, nil
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		return lw, lw.Close, nil
	default:
		return nil, nil, fmt.Errorf("storage: unknown compression %d", c)
	}
}

func compressionReader(r io.Reader, c Compression) (io.Reader, func(), error) {
	switch c {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: zstd reader: %w", err)
		}
		return zr, zr.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("storage: unknown compression %d", c)
	}
}
