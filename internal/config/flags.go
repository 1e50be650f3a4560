package config

import "github.com/urfave/cli/v3"

// Flags are the serve flags. Defaults shown in help mirror Defaults().
func Flags() []cli.Flag {
	d := Defaults()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to yaml configuration file",
			Sources: cli.EnvVars("VINCE_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "listen",
			Usage:   "HTTP address to listen",
			Value:   d.Listen,
			Sources: cli.EnvVars("VINCE_LISTEN"),
		},
		&cli.StringFlag{
			Name:    "logLevel",
			Value:   d.LogLevel,
			Sources: cli.EnvVars("VINCE_LOG_LEVEL"),
		},
		&cli.DurationFlag{
			Name:    "shutdownTimeout",
			Usage:   "Time allowed to drain pending batches on shutdown",
			Value:   d.ShutdownTimeout,
			Sources: cli.EnvVars("VINCE_SHUTDOWN_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "geoipDbPath",
			Usage:   "Path to geo ip database file",
			Sources: cli.EnvVars("VINCE_GEOIP_DB"),
		},
		&cli.DurationFlag{
			Category: "enrichment",
			Name:     "enrichDeadline",
			Usage:    "Maximum time spent resolving visitor context",
			Value:    d.Enrich.Deadline,
			Sources:  cli.EnvVars("VINCE_ENRICH_DEADLINE"),
		},
		&cli.DurationFlag{
			Category: "enrichment",
			Name:     "enrichCacheTTL",
			Usage:    "How long resolved visitor context is reused",
			Value:    d.Enrich.CacheTTL,
			Sources:  cli.EnvVars("VINCE_ENRICH_CACHE_TTL"),
		},
		&cli.DurationFlag{
			Category: "session",
			Name:     "sessionWindow",
			Usage:    "Inactivity window after which a visitor starts a new session",
			Value:    d.Session.Window,
			Sources:  cli.EnvVars("VINCE_SESSION_WINDOW"),
		},
		&cli.DurationFlag{
			Category: "session",
			Name:     "saltPeriod",
			Usage:    "Rotation period of the fingerprint salt",
			Value:    d.Session.SaltPeriod,
			Sources:  cli.EnvVars("VINCE_SALT_PERIOD"),
		},
		&cli.StringFlag{
			Category: "session",
			Name:     "saltSecret",
			Usage:    "Secret salts are derived from, random when empty",
			Sources:  cli.EnvVars("VINCE_SALT_SECRET"),
		},
		&cli.IntFlag{
			Category: "session",
			Name:     "ipv4Prefix",
			Usage:    "IPv4 prefix length used in fingerprints",
			Value:    d.Session.IPv4Prefix,
			Sources:  cli.EnvVars("VINCE_IPV4_PREFIX"),
		},
		&cli.IntFlag{
			Category: "session",
			Name:     "ipv6Prefix",
			Usage:    "IPv6 prefix length used in fingerprints",
			Value:    d.Session.IPv6Prefix,
			Sources:  cli.EnvVars("VINCE_IPV6_PREFIX"),
		},
		&cli.DurationFlag{
			Category: "dedup",
			Name:     "dedupWindow",
			Usage:    "How long an event is remembered for duplicate detection",
			Value:    d.Dedup.Window,
			Sources:  cli.EnvVars("VINCE_DEDUP_WINDOW"),
		},
		&cli.DurationFlag{
			Category: "dedup",
			Name:     "dedupGranularity",
			Usage:    "Client timestamps are truncated to this granularity for duplicate detection",
			Value:    d.Dedup.Granularity,
			Sources:  cli.EnvVars("VINCE_DEDUP_GRANULARITY"),
		},
		&cli.DurationFlag{
			Category: "guard",
			Name:     "retentionPeriod",
			Usage:    "Events older than this are invalid",
			Value:    d.Guard.Retention,
			Sources:  cli.EnvVars("VINCE_RETENTION_PERIOD"),
		},
		&cli.DurationFlag{
			Category: "guard",
			Name:     "futureSkew",
			Usage:    "Allowed client clock skew into the future",
			Value:    d.Guard.FutureSkew,
			Sources:  cli.EnvVars("VINCE_FUTURE_SKEW"),
		},
		&cli.IntFlag{
			Category: "guard",
			Name:     "rateLimit",
			Usage:    "Events per second accepted per site, 0 disables",
			Sources:  cli.EnvVars("VINCE_RATE_LIMIT"),
		},
		&cli.IntFlag{
			Category: "guard",
			Name:     "rateBurst",
			Usage:    "Burst size of the per site rate limit",
			Sources:  cli.EnvVars("VINCE_RATE_BURST"),
		},
		&cli.StringSliceFlag{
			Category: "guard",
			Name:     "sites",
			Usage:    "Site ids to accept, id:noenrich disables enrichment",
			Sources:  cli.EnvVars("VINCE_SITES"),
		},
		&cli.StringFlag{
			Category: "kv",
			Name:     "kv",
			Usage:    "Shared state backend (badger, redis)",
			Value:    d.KV.Backend,
			Sources:  cli.EnvVars("VINCE_KV"),
		},
		&cli.DurationFlag{
			Category: "kv",
			Name:     "kvTimeout",
			Usage:    "Timeout of a single shared state call",
			Value:    d.KV.Timeout,
			Sources:  cli.EnvVars("VINCE_KV_TIMEOUT"),
		},
		&cli.StringFlag{
			Category: "kv",
			Name:     "badgerPath",
			Usage:    "Path of badger state, in memory when empty",
			Sources:  cli.EnvVars("VINCE_BADGER_PATH"),
		},
		&cli.StringFlag{
			Category: "kv",
			Name:     "redisAddr",
			Sources:  cli.EnvVars("VINCE_REDIS_ADDR"),
		},
		&cli.StringFlag{
			Category: "kv",
			Name:     "redisPassword",
			Sources:  cli.EnvVars("VINCE_REDIS_PASSWORD"),
		},
		&cli.IntFlag{
			Category: "kv",
			Name:     "redisDB",
			Sources:  cli.EnvVars("VINCE_REDIS_DB"),
		},
		&cli.IntFlag{
			Category: "batch",
			Name:     "batchSize",
			Usage:    "Maximum events in a batch",
			Value:    d.Batch.MaxSize,
			Sources:  cli.EnvVars("VINCE_BATCH_SIZE"),
		},
		&cli.DurationFlag{
			Category: "batch",
			Name:     "batchAge",
			Usage:    "Maximum age of a batch since its first event",
			Value:    d.Batch.MaxAge,
			Sources:  cli.EnvVars("VINCE_BATCH_AGE"),
		},
		&cli.IntFlag{
			Category: "batch",
			Name:     "maxInFlight",
			Usage:    "Sealed batches allowed before ingestion is rejected",
			Value:    d.Batch.MaxInFlight,
			Sources:  cli.EnvVars("VINCE_MAX_IN_FLIGHT"),
		},
		&cli.DurationFlag{
			Category: "batch",
			Name:     "flushTimeout",
			Value:    d.Batch.FlushTimeout,
			Sources:  cli.EnvVars("VINCE_FLUSH_TIMEOUT"),
		},
		&cli.DurationFlag{
			Category: "batch",
			Name:     "retryInitial",
			Value:    d.Batch.RetryInitial,
			Sources:  cli.EnvVars("VINCE_RETRY_INITIAL"),
		},
		&cli.DurationFlag{
			Category: "batch",
			Name:     "retryMax",
			Value:    d.Batch.RetryMax,
			Sources:  cli.EnvVars("VINCE_RETRY_MAX"),
		},
		&cli.IntFlag{
			Category: "batch",
			Name:     "maxAttempts",
			Usage:    "Flush attempts before a batch is dead lettered",
			Value:    d.Batch.MaxAttempts,
			Sources:  cli.EnvVars("VINCE_MAX_ATTEMPTS"),
		},
		&cli.StringFlag{
			Category: "storage",
			Name:     "storage",
			Usage:    "Segment storage (filesystem, s3, memory)",
			Value:    d.Storage.Backend,
			Sources:  cli.EnvVars("VINCE_STORAGE"),
		},
		&cli.StringFlag{
			Category: "storage",
			Name:     "data",
			Usage:    "Path to store data",
			Value:    d.Storage.Path,
			Sources:  cli.EnvVars("VINCE_DATA"),
		},
		&cli.StringFlag{
			Category: "storage",
			Name:     "deadLetterPrefix",
			Value:    d.Storage.DeadLetterPrefix,
			Sources:  cli.EnvVars("VINCE_DEAD_LETTER_PREFIX"),
		},
		&cli.StringFlag{
			Category: "storage",
			Name:     "s3Bucket",
			Sources:  cli.EnvVars("VINCE_S3_BUCKET"),
		},
		&cli.StringFlag{
			Category: "storage",
			Name:     "s3Endpoint",
			Sources:  cli.EnvVars("VINCE_S3_ENDPOINT"),
		},
		&cli.StringFlag{
			Category: "storage",
			Name:     "s3Region",
			Sources:  cli.EnvVars("VINCE_S3_REGION"),
		},
		&cli.StringFlag{
			Category: "storage",
			Name:     "s3AccessKey",
			Sources:  cli.EnvVars("VINCE_S3_ACCESS_KEY"),
		},
		&cli.StringFlag{
			Category: "storage",
			Name:     "s3SecretKey",
			Sources:  cli.EnvVars("VINCE_S3_SECRET_KEY"),
		},
		&cli.BoolFlag{
			Category: "storage",
			Name:     "s3Insecure",
			Sources:  cli.EnvVars("VINCE_S3_INSECURE"),
		},
	}
}

