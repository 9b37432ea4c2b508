package config

import (
	"time"

	"github.com/gyaneshwarpardhi/sense/internal/ruleconf"
)

// Config is the top-level YAML structure.
type Config struct {
	Version       string                `yaml:"version"`
	Log           LogConf               `yaml:"log"`
	Server        ServerConf            `yaml:"server"`
	Engine        EngineConf            `yaml:"engine"`
	Statistic     StatisticConf         `yaml:"statistic"`
	EventsCaching CachingConf           `yaml:"events_caching"`
	Provider      ProviderConf          `yaml:"provider"`
	Source        SourceConf            `yaml:"source"`
	Notifier      NotifierConf          `yaml:"notifier"`
	Auth          AuthConf              `yaml:"auth"`
	Rules         []ruleconf.Definition `yaml:"rules"`
}

type LogConf struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

type ServerConf struct {
	Addr                string        `yaml:"addr"`
	DefaultAwaitTimeout time.Duration `yaml:"default_await_timeout"`
	MaxStreamClients    int           `yaml:"max_stream_clients"`
}

// EngineConf holds tunable concurrency settings.
type EngineConf struct {
	ClassifyWorkers int           `yaml:"classify_workers"`
	QueueDepth      int           `yaml:"queue_depth"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	EventTimeoutMs  int           `yaml:"event_timeout_ms"`
}

type StatisticConf struct {
	EventBuckets []time.Duration `yaml:"event_buckets"`
}

type CachingConf struct {
	MaxSize        int `yaml:"max_size"`
	MaxWeightBytes int `yaml:"max_weight_bytes"`
}

const (
	ProviderMemory = "memory"
	ProviderMongo  = "mongo"
)

type ProviderConf struct {
	Kind  string    `yaml:"kind"`
	Mongo MongoConf `yaml:"mongo"`
}

type MongoConf struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// SourceConf configures the optional queue subscription; HTTP ingestion is always on.
type SourceConf struct {
	NATS *NATSSourceConf `yaml:"nats,omitempty"`
}

type NATSSourceConf struct {
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject"`
	Durable string `yaml:"durable"`
}

type NotifierConf struct {
	NATSSubject string `yaml:"nats_subject"` // empty disables the NATS publisher
	NATSURL     string `yaml:"nats_url"`     // defaults to source.nats.url
}

type AuthConf struct {
	JWTSecret string `yaml:"jwt_secret"` // empty disables authentication
}
