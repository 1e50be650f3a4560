package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/vinceanalytics/collector/internal/api"
	"github.com/vinceanalytics/collector/internal/batch"
	"github.com/vinceanalytics/collector/internal/config"
	"github.com/vinceanalytics/collector/internal/dedup"
	"github.com/vinceanalytics/collector/internal/geoip"
	"github.com/vinceanalytics/collector/internal/guard"
	"github.com/vinceanalytics/collector/internal/kv"
	"github.com/vinceanalytics/collector/internal/pipeline"
	"github.com/vinceanalytics/collector/internal/session"
	"github.com/vinceanalytics/collector/internal/storage"
	"github.com/vinceanalytics/collector/internal/userid"
	"github.com/vinceanalytics/collector/internal/visitor"
	"golang.org/x/sync/errgroup"
)

func Serve(ctx context.Context, c *cli.Command) error {
	o, err := config.Load(c)
	if err != nil {
		return err
	}
	log, _ := config.Logger(o.LogLevel)
	slog.SetDefault(log)
	ctx = config.With(ctx, o)
	svr, err := Configure(ctx, o)
	if err != nil {
		return err
	}
	return Run(ctx, svr)
}

// ResourceList is closed in reverse order so that producers stop before the
// things they write to.
type ResourceList []io.Closer

func (r ResourceList) Close() error {
	e := make([]error, 0, len(r))
	for i := len(r) - 1; i >= 0; i-- {
		e = append(e, r[i].Close())
	}
	return errors.Join(e...)
}

type shutdown interface {
	Shutdown(context.Context) error
}

func (r ResourceList) CloseWithGrace(ctx context.Context) error {
	e := make([]error, 0, len(r))
	for i := len(r) - 1; i >= 0; i-- {
		if shut, ok := r[i].(shutdown); ok {
			e = append(e, shut.Shutdown(ctx))
		} else {
			e = append(e, r[i].Close())
		}
	}
	return errors.Join(e...)
}

type graceful func(context.Context) error

func (g graceful) Close() error                       { return g(context.Background()) }
func (g graceful) Shutdown(ctx context.Context) error { return g(ctx) }

type closer func()

func (c closer) Close() error {
	c()
	return nil
}

type Server struct {
	HTTP      *http.Server
	Listener  net.Listener
	Store     *storage.Store
	Dead      *storage.DeadLetter
	Resources ResourceList
	grace     time.Duration
}

// Configure builds every component described by o. On error the resources
// opened so far are released.
func Configure(ctx context.Context, o *config.Options) (_ *Server, err error) {
	var resources ResourceList
	defer func() {
		if err != nil {
			resources.Close()
		}
	}()

	// we start listeners early to make sure we can actually bind to the network.
	ls, err := net.Listen("tcp", o.Listen)
	if err != nil {
		return nil, err
	}
	resources = append(resources, ls)

	geo, err := geoip.Open(o.GeoIPDB)
	if err != nil {
		return nil, err
	}
	resources = append(resources, geo)

	bucket, err := storage.OpenBucket(o.Storage)
	if err != nil {
		return nil, err
	}
	resources = append(resources, bucket)
	store := storage.New(bucket, o.Storage.Prefix)
	dead := storage.NewDeadLetter(bucket, o.Storage.DeadLetterPrefix)

	db, err := kv.Open(o.KV)
	if err != nil {
		return nil, err
	}
	resources = append(resources, db)

	sites, err := guard.NewSites(o.Sites, o.Guard.RateLimit, o.Guard.RateBurst)
	if err != nil {
		return nil, err
	}
	resources = append(resources, closer(sites.Close))

	resolver, err := visitor.New(geo, visitor.Options{
		TTL:     o.Enrich.CacheTTL,
		Entries: o.Enrich.CacheEntries,
	})
	if err != nil {
		return nil, err
	}
	resources = append(resources, closer(resolver.Close))

	var secret []byte
	if o.Session.SaltSecret != "" {
		secret = []byte(o.Session.SaltSecret)
	} else {
		slog.Warn("no salt secret configured, sessions are only stable within this process")
	}
	sessions := session.New(db, userid.New(secret, o.Session.SaltPeriod), session.Options{
		Window:     o.Session.Window,
		Timeout:    o.KV.Timeout,
		IPv4Prefix: o.Session.IPv4Prefix,
		IPv6Prefix: o.Session.IPv6Prefix,
	})
	dd := dedup.New(db, dedup.Options{
		Window:  o.Dedup.Window,
		Timeout: o.KV.Timeout,
	})

	writer := batch.New(store, dead, batch.Options{
		MaxSize:      o.Batch.MaxSize,
		MaxAge:       o.Batch.MaxAge,
		MaxInFlight:  o.Batch.MaxInFlight,
		FlushTimeout: o.Batch.FlushTimeout,
		Retry: batch.Retry{
			Initial:     o.Batch.RetryInitial,
			Max:         o.Batch.RetryMax,
			MaxAttempts: o.Batch.MaxAttempts,
		},
	})
	resources = append(resources, graceful(writer.Close))

	pipe := pipeline.New(resolver, sessions, dd, writer, pipeline.PromMeter{}, pipeline.Options{
		Deadline:    o.Enrich.Deadline,
		Granularity: o.Dedup.Granularity,
		Rules: guard.Rules{
			Retention:  o.Guard.Retention,
			FutureSkew: o.Guard.FutureSkew,
		},
	})

	httpSvr := &http.Server{
		Handler:           api.New(pipe, sites).Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       30 * time.Second,
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}
	// the server owns the listener from here on and is shut down first
	resources = append(resources[1:], httpSvr)

	return &Server{
		HTTP:      httpSvr,
		Listener:  ls,
		Store:     store,
		Dead:      dead,
		Resources: resources,
		grace:     o.ShutdownTimeout,
	}, nil
}

// Run serves until ctx is cancelled or an interrupt is received. Intake stops
// first, pending batches are flushed and then the stores are closed.
func Run(ctx context.Context, s *Server) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	var g errgroup.Group
	g.Go(func() error {
		defer cancel()
		err := s.HTTP.Serve(s.Listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Debug("shutting down gracefully")
		sctx, done := context.WithTimeout(context.Background(), s.grace)
		defer done()
		return s.Resources.CloseWithGrace(sctx)
	})
	slog.Info("started serving http traffic", slog.String("address", s.Listener.Addr().String()))
	return g.Wait()
}

// Replay inserts dead lettered batches back into storage.
func Replay(ctx context.Context, o *config.Options) (int, error) {
	bucket, err := storage.OpenBucket(o.Storage)
	if err != nil {
		return 0, fmt.Errorf("failed opening object storage %w", err)
	}
	defer bucket.Close()
	store := storage.New(bucket, o.Storage.Prefix)
	return storage.NewDeadLetter(bucket, o.Storage.DeadLetterPrefix).Replay(ctx, store)
}
