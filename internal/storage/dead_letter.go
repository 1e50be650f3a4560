package storage

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/thanos-io/objstore"
	"github.com/vinceanalytics/collector/internal/entry"
	"github.com/vinceanalytics/collector/internal/metrics"
)

const DefaultDeadLetterPrefix = "dead-letter"

// DeadLetter keeps batches that exhausted their flush attempts as json lines
// for manual recovery. The first line is a Header.
type DeadLetter struct {
	bucket objstore.Bucket
	prefix string
	now    func() time.Time
	log    *slog.Logger
}

type Header struct {
	Cause string    `json:"cause"`
	At    time.Time `json:"at"`
	Count int       `json:"count"`
}

func NewDeadLetter(bucket objstore.Bucket, prefix string) *DeadLetter {
	if prefix == "" {
		prefix = DefaultDeadLetterPrefix
	}
	return &DeadLetter{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
		log:    slog.Default().With("component", "dead-letter"),
	}
}

func (d *DeadLetter) Write(ctx context.Context, events []*entry.EnrichedEvent, cause error) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	h := Header{At: d.now().UTC(), Count: len(events)}
	if cause != nil {
		h.Cause = cause.Error()
	}
	if err := enc.Encode(h); err != nil {
		return err
	}
	for _, e := range events {
		r := FromEvent(e)
		if err := enc.Encode(&r); err != nil {
			return err
		}
	}
	name := segmentName(d.prefix, h.At, ".jsonl")
	if err := d.bucket.Upload(ctx, name, &buf); err != nil {
		return fmt.Errorf("writing dead letter %s: %w", name, err)
	}
	metrics.DeadLettered.Add(float64(len(events)))
	d.log.Warn("dead lettered batch", "name", name, "events", len(events), "cause", h.Cause)
	return nil
}

func (d *DeadLetter) List(ctx context.Context) ([]string, error) {
	return list(ctx, d.bucket, d.prefix)
}

func (d *DeadLetter) Read(ctx context.Context, name string) (Header, []Row, error) {
	var h Header
	r, err := d.bucket.Get(ctx, name)
	if err != nil {
		return h, nil, err
	}
	defer r.Close()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	if !sc.Scan() {
		return h, nil, fmt.Errorf("dead letter %s: missing header", name)
	}
	if err := json.Unmarshal(sc.Bytes(), &h); err != nil {
		return h, nil, fmt.Errorf("dead letter %s: %w", name, err)
	}
	rows := make([]Row, 0, h.Count)
	for sc.Scan() {
		var x Row
		if err := json.Unmarshal(sc.Bytes(), &x); err != nil {
			return h, nil, fmt.Errorf("dead letter %s: %w", name, err)
		}
		rows = append(rows, x)
	}
	return h, rows, sc.Err()
}

// Replay moves every dead lettered batch into s. Batches are deleted only
// after they were stored.
func (d *DeadLetter) Replay(ctx context.Context, s *Store) (int, error) {
	names, err := d.List(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	for _, name := range names {
		_, rows, err := d.Read(ctx, name)
		if err != nil {
			return n, err
		}
		if _, err := s.InsertRows(ctx, rows); err != nil {
			return n, err
		}
		if err := d.bucket.Delete(ctx, name); err != nil {
			return n, err
		}
		n += len(rows)
	}
	return n, nil
}
