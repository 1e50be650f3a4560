package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	verrors "github.com/vinceanalytics/collector/internal/errors"
)

type Options struct {
	Listen          string        `yaml:"listen"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	GeoIPDB         string        `yaml:"geoip_db"`
	Enrich          Enrich        `yaml:"enrich"`
	Session         Session       `yaml:"session"`
	Dedup           Dedup         `yaml:"dedup"`
	Guard           Guard         `yaml:"guard"`
	KV              KV            `yaml:"kv"`
	Batch           Batch         `yaml:"batch"`
	Storage         Storage       `yaml:"storage"`
	// Sites accepted by the intake. An empty list accepts any site id.
	Sites []Site `yaml:"sites"`
}

type Enrich struct {
	// Deadline bounds visitor context resolution of a single request.
	Deadline     time.Duration `yaml:"deadline"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	CacheEntries int64         `yaml:"cache_entries"`
}

type Session struct {
	Window     time.Duration `yaml:"window"`
	SaltPeriod time.Duration `yaml:"salt_period"`
	// SaltSecret must be shared by every node behind the same kv store.
	SaltSecret string `yaml:"salt_secret"`
	IPv4Prefix int    `yaml:"ipv4_prefix"`
	IPv6Prefix int    `yaml:"ipv6_prefix"`
}

type Dedup struct {
	Window      time.Duration `yaml:"window"`
	Granularity time.Duration `yaml:"granularity"`
}

type Guard struct {
	Retention  time.Duration `yaml:"retention"`
	FutureSkew time.Duration `yaml:"future_skew"`
	// RateLimit is events per second per site, 0 disables limiting.
	RateLimit int `yaml:"rate_limit"`
	RateBurst int `yaml:"rate_burst"`
}

type KV struct {
	Backend string        `yaml:"backend"`
	Timeout time.Duration `yaml:"timeout"`
	// Path of the badger directory, empty keeps state in memory.
	Path  string `yaml:"path"`
	Redis Redis  `yaml:"redis"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Batch struct {
	MaxSize      int           `yaml:"max_size"`
	MaxAge       time.Duration `yaml:"max_age"`
	MaxInFlight  int           `yaml:"max_in_flight"`
	FlushTimeout time.Duration `yaml:"flush_timeout"`
	RetryInitial time.Duration `yaml:"retry_initial"`
	RetryMax     time.Duration `yaml:"retry_max"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

type Storage struct {
	Backend          string `yaml:"backend"`
	Path             string `yaml:"path"`
	Prefix           string `yaml:"prefix"`
	DeadLetterPrefix string `yaml:"dead_letter_prefix"`
	S3               S3     `yaml:"s3"`
}

type S3 struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Insecure  bool   `yaml:"insecure"`
}

type Site struct {
	ID            string `yaml:"id"`
	DisableEnrich bool   `yaml:"disable_enrich"`
}

func Defaults() *Options {
	return &Options{
		Listen:          ":8080",
		LogLevel:        "INFO",
		ShutdownTimeout: 30 * time.Second,
		Enrich: Enrich{
			Deadline:     50 * time.Millisecond,
			CacheTTL:     5 * time.Minute,
			CacheEntries: 1 << 16,
		},
		Session: Session{
			Window:     30 * time.Minute,
			SaltPeriod: 24 * time.Hour,
			IPv4Prefix: 24,
			IPv6Prefix: 48,
		},
		Dedup: Dedup{
			Window:      10 * time.Minute,
			Granularity: time.Second,
		},
		Guard: Guard{
			Retention:  30 * 24 * time.Hour,
			FutureSkew: 5 * time.Minute,
		},
		KV: KV{
			Backend: "badger",
			Timeout: 50 * time.Millisecond,
		},
		Batch: Batch{
			MaxSize:      1000,
			MaxAge:       5 * time.Second,
			MaxInFlight:  8,
			FlushTimeout: 10 * time.Second,
			RetryInitial: 200 * time.Millisecond,
			RetryMax:     5 * time.Second,
			MaxAttempts:  5,
		},
		Storage: Storage{
			Backend:          "filesystem",
			Path:             "vince-data",
			Prefix:           "events",
			DeadLetterPrefix: "dead-letter",
		},
	}
}

// Validate reports every invalid field at once.
func (o *Options) Validate() error {
	var bad []string
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			bad = append(bad, name+" must be positive")
		}
	}
	if o.Listen == "" {
		bad = append(bad, "listen is required")
	}
	positive("enrich.deadline", o.Enrich.Deadline)
	positive("enrich.cache_ttl", o.Enrich.CacheTTL)
	positive("session.window", o.Session.Window)
	positive("session.salt_period", o.Session.SaltPeriod)
	positive("dedup.window", o.Dedup.Window)
	positive("dedup.granularity", o.Dedup.Granularity)
	positive("guard.retention", o.Guard.Retention)
	positive("kv.timeout", o.KV.Timeout)
	positive("batch.max_age", o.Batch.MaxAge)
	positive("batch.flush_timeout", o.Batch.FlushTimeout)
	positive("batch.retry_initial", o.Batch.RetryInitial)
	if o.Session.IPv4Prefix <= 0 || o.Session.IPv4Prefix > 32 {
		bad = append(bad, "session.ipv4_prefix must be in 1..32")
	}
	if o.Session.IPv6Prefix <= 0 || o.Session.IPv6Prefix > 128 {
		bad = append(bad, "session.ipv6_prefix must be in 1..128")
	}
	if o.Guard.FutureSkew < 0 {
		bad = append(bad, "guard.future_skew must not be negative")
	}
	if o.Guard.RateLimit < 0 {
		bad = append(bad, "guard.rate_limit must not be negative")
	}
	if o.Batch.MaxSize <= 0 {
		bad = append(bad, "batch.max_size must be positive")
	}
	if o.Batch.MaxInFlight <= 0 {
		bad = append(bad, "batch.max_in_flight must be positive")
	}
	if o.Batch.MaxAttempts <= 0 {
		bad = append(bad, "batch.max_attempts must be positive")
	}
	if o.Batch.RetryMax < o.Batch.RetryInitial {
		bad = append(bad, "batch.retry_max must not be less than batch.retry_initial")
	}
	switch o.KV.Backend {
	case "badger":
	case "redis":
		if o.KV.Redis.Addr == "" {
			bad = append(bad, "kv.redis.addr is required for the redis backend")
		}
	default:
		bad = append(bad, "kv.backend must be one of badger, redis")
	}
	switch o.Storage.Backend {
	case "filesystem":
		if o.Storage.Path == "" {
			bad = append(bad, "storage.path is required for the filesystem backend")
		}
	case "s3":
		if o.Storage.S3.Bucket == "" || o.Storage.S3.Endpoint == "" {
			bad = append(bad, "storage.s3.bucket and storage.s3.endpoint are required for the s3 backend")
		}
	case "memory":
	default:
		bad = append(bad, "storage.backend must be one of filesystem, s3, memory")
	}
	seen := make(map[string]struct{}, len(o.Sites))
	for _, s := range o.Sites {
		if s.ID == "" {
			bad = append(bad, "sites: id is required")
			continue
		}
		if _, ok := seen[s.ID]; ok {
			bad = append(bad, "sites: duplicate id "+s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	if len(bad) > 0 {
		return verrors.Validation("invalid configuration: %s", strings.Join(bad, "; "))
	}
	return nil
}

// Logger builds the process logger. The returned level can be changed at
// runtime.
func Logger(level string) (*slog.Logger, *slog.LevelVar) {
	var lvl slog.Level
	lvl.UnmarshalText([]byte(level))
	v := &slog.LevelVar{}
	v.Set(lvl)
	return slog.New(
		slog.NewJSONHandler(
			os.Stdout,
			&slog.HandlerOptions{
				Level: v,
			},
		),
	), v
}
