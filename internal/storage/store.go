// Package storage persists enriched events as append only parquet segments
// in object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/parquet-go/parquet-go"
	"github.com/thanos-io/objstore"
	"github.com/vinceanalytics/collector/internal/entry"
	verrors "github.com/vinceanalytics/collector/internal/errors"
)

const DefaultPrefix = "events"

type Store struct {
	bucket objstore.Bucket
	prefix string
	now    func() time.Time
	log    *slog.Logger
}

func New(bucket objstore.Bucket, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
		log:    slog.Default().With("component", "storage"),
	}
}

// Insert implements the batch writer sink. Each call produces one segment.
func (s *Store) Insert(ctx context.Context, events []*entry.EnrichedEvent) error {
	rows := make([]Row, len(events))
	for i, e := range events {
		rows[i] = FromEvent(e)
	}
	_, err := s.InsertRows(ctx, rows)
	return err
}

// InsertRows writes rows in order into a new segment and returns its name.
// Upload failures are transient, encoding failures are fatal.
func (s *Store) InsertRows(ctx context.Context, rows []Row) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[Row](&buf)
	if _, err := w.Write(rows); err != nil {
		return "", verrors.StorageFatal("encoding segment", err)
	}
	if err := w.Close(); err != nil {
		return "", verrors.StorageFatal("encoding segment", err)
	}
	name := segmentName(s.prefix, s.now(), ".parquet")
	if err := s.bucket.Upload(ctx, name, &buf); err != nil {
		return "", verrors.StorageTransient("uploading segment", err)
	}
	s.log.Debug("saved segment", "name", name, "rows", len(rows), "size", buf.Len())
	return name, nil
}

// Segments lists every segment name in lexical, hence creation, order.
func (s *Store) Segments(ctx context.Context) ([]string, error) {
	return list(ctx, s.bucket, s.prefix)
}

func (s *Store) ReadSegment(ctx context.Context, name string) ([]Row, error) {
	r, err := s.bucket.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	pr := parquet.NewGenericReader[Row](bytes.NewReader(b))
	defer pr.Close()
	o := make([]Row, 0, pr.NumRows())
	chunk := make([]Row, 128)
	for {
		n, err := pr.Read(chunk)
		o = append(o, chunk[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return o, nil
			}
			return nil, fmt.Errorf("reading segment %s: %w", name, err)
		}
	}
}

// segmentName is {prefix}/{yyyy}/{mm}/{dd}/{ulid}{ext}.
func segmentName(prefix string, ts time.Time, ext string) string {
	ts = ts.UTC()
	return path.Join(prefix, ts.Format("2006/01/02"), ulid.MustNew(ulid.Timestamp(ts), ulid.DefaultEntropy()).String()+ext)
}

func list(ctx context.Context, bucket objstore.Bucket, dir string) ([]string, error) {
	var o []string
	var walk func(dir string) error
	walk = func(dir string) error {
		return bucket.Iter(ctx, dir, func(name string) error {
			if strings.HasSuffix(name, objstore.DirDelim) {
				return walk(name)
			}
			o = append(o, name)
			return nil
		})
	}
	if err := walk(dir + objstore.DirDelim); err != nil {
		return nil, err
	}
	sort.Strings(o)
	return o, nil
}
