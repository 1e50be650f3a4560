package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v2"
)

type configKey struct{}

func With(ctx context.Context, o *Options) context.Context {
	return context.WithValue(ctx, configKey{}, o)
}

func Get(ctx context.Context) *Options {
	return ctx.Value(configKey{}).(*Options)
}

// LoadFile decodes the yaml file at path over o. Fields missing from the
// file keep their current value.
func LoadFile(path string, o *Options) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading configuration file %w", err)
	}
	if err := yaml.UnmarshalStrict(b, o); err != nil {
		return fmt.Errorf("invalid configuration file %w", err)
	}
	return nil
}

// Load builds options from defaults, the optional configuration file and
// then flags. Only flags explicitly set on the command line or through the
// environment override file values.
func Load(c *cli.Command) (*Options, error) {
	o := Defaults()
	if path := c.String("config"); path != "" {
		if err := LoadFile(path, o); err != nil {
			return nil, err
		}
	}
	apply(c, o)
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func apply(c *cli.Command, o *Options) {
	str := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	dur := func(name string, dst *time.Duration) {
		if c.IsSet(name) {
			*dst = c.Duration(name)
		}
	}
	num := func(name string, dst *int) {
		if c.IsSet(name) {
			*dst = int(c.Int(name))
		}
	}
	str("listen", &o.Listen)
	str("logLevel", &o.LogLevel)
	dur("shutdownTimeout", &o.ShutdownTimeout)
	str("geoipDbPath", &o.GeoIPDB)

	dur("enrichDeadline", &o.Enrich.Deadline)
	dur("enrichCacheTTL", &o.Enrich.CacheTTL)

	dur("sessionWindow", &o.Session.Window)
	dur("saltPeriod", &o.Session.SaltPeriod)
	str("saltSecret", &o.Session.SaltSecret)
	num("ipv4Prefix", &o.Session.IPv4Prefix)
	num("ipv6Prefix", &o.Session.IPv6Prefix)

	dur("dedupWindow", &o.Dedup.Window)
	dur("dedupGranularity", &o.Dedup.Granularity)

	dur("retentionPeriod", &o.Guard.Retention)
	dur("futureSkew", &o.Guard.FutureSkew)
	num("rateLimit", &o.Guard.RateLimit)
	num("rateBurst", &o.Guard.RateBurst)

	str("kv", &o.KV.Backend)
	dur("kvTimeout", &o.KV.Timeout)
	str("badgerPath", &o.KV.Path)
	str("redisAddr", &o.KV.Redis.Addr)
	str("redisPassword", &o.KV.Redis.Password)
	num("redisDB", &o.KV.Redis.DB)

	num("batchSize", &o.Batch.MaxSize)
	dur("batchAge", &o.Batch.MaxAge)
	num("maxInFlight", &o.Batch.MaxInFlight)
	dur("flushTimeout", &o.Batch.FlushTimeout)
	dur("retryInitial", &o.Batch.RetryInitial)
	dur("retryMax", &o.Batch.RetryMax)
	num("maxAttempts", &o.Batch.MaxAttempts)

	str("storage", &o.Storage.Backend)
	str("data", &o.Storage.Path)
	str("deadLetterPrefix", &o.Storage.DeadLetterPrefix)
	str("s3Bucket", &o.Storage.S3.Bucket)
	str("s3Endpoint", &o.Storage.S3.Endpoint)
	str("s3Region", &o.Storage.S3.Region)
	str("s3AccessKey", &o.Storage.S3.AccessKey)
	str("s3SecretKey", &o.Storage.S3.SecretKey)
	if c.IsSet("s3Insecure") {
		o.Storage.S3.Insecure = c.Bool("s3Insecure")
	}
	if c.IsSet("sites") {
		o.Sites = ParseSites(c.StringSlice("sites"))
	}
}

// ParseSites parses site flags of the form id or id:noenrich.
func ParseSites(ls []string) []Site {
	o := make([]Site, 0, len(ls))
	for _, s := range ls {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, opt, _ := strings.Cut(s, ":")
		o = append(o, Site{ID: id, DisableEnrich: opt == "noenrich"})
	}
	return o
}
