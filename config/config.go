// Package config assembles runtime configuration from defaults, an optional
// YAML file, IM_-prefixed environment variables and command-line overrides,
// in ascending priority.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	// NodeID identifies this process on the relay topic. Defaults to
	// hostname plus a random suffix, so restarts get fresh relay queues.
	NodeID string

	Server   Server
	Auth     Auth
	Redis    Redis
	Postgres Postgres
	Relay    Relay
	Presence Presence
	Hub      Hub
	Router   Router
	Delivery Delivery
	Log      Log

	v *viper.Viper
}

type Server struct {
	Addr            string
	WSPath          string
	ShutdownTimeout time.Duration
}

type Auth struct {
	Secret string
	Leeway time.Duration
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Postgres struct {
	DSN      string
	MaxConns int32
}

type Relay struct {
	URL string
}

type Presence struct {
	// OnlineTTL is the lifetime of an online marker between heartbeats.
	OnlineTTL time.Duration
	// QueueTTL is how long an untouched offline queue survives.
	QueueTTL time.Duration
}

type Hub struct {
	MaxConnectionsPerUser int
	MailboxSize           int
	SendTimeout           time.Duration
	WriteTimeout          time.Duration
}

type Router struct {
	// ReadLimit caps a single inbound frame, in bytes.
	ReadLimit int64
	// Rate and Burst shape the per-connection inbound token bucket.
	Rate  float64
	Burst int
}

type Delivery struct {
	PersistTimeout time.Duration
	FlushTimeout   time.Duration
}

type Log struct {
	Level  string
	Format string
}

func LoadConfig() (*Config, error) {
	fs := pflag.NewFlagSet("im-messaging-service", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.String("config_file", "", "path to the configuration file")
	fs.String("server.addr", "", "listen address override")
	fs.String("log.level", "", "log level override")
	fs.String("node_id", "", "stable node identity on the relay")
	_ = fs.Parse(os.Args[1:])

	v := viper.New()
	setDefaults(v)

	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("IM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	cfg := &Config{
		NodeID: v.GetString("node_id"),
		Server: Server{
			Addr:            v.GetString("server.addr"),
			WSPath:          v.GetString("server.ws_path"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Auth: Auth{
			Secret: v.GetString("auth.secret"),
			Leeway: v.GetDuration("auth.leeway"),
		},
		Redis: Redis{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Postgres: Postgres{
			DSN:      v.GetString("postgres.dsn"),
			MaxConns: v.GetInt32("postgres.max_conns"),
		},
		Relay: Relay{
			URL: v.GetString("relay.url"),
		},
		Presence: Presence{
			OnlineTTL: v.GetDuration("presence.online_ttl"),
			QueueTTL:  v.GetDuration("presence.queue_ttl"),
		},
		Hub: Hub{
			MaxConnectionsPerUser: v.GetInt("hub.max_connections_per_user"),
			MailboxSize:           v.GetInt("hub.mailbox_size"),
			SendTimeout:           v.GetDuration("hub.send_timeout"),
			WriteTimeout:          v.GetDuration("hub.write_timeout"),
		},
		Router: Router{
			ReadLimit: v.GetInt64("router.read_limit"),
			Rate:      v.GetFloat64("router.rate"),
			Burst:     v.GetInt("router.burst"),
		},
		Delivery: Delivery{
			PersistTimeout: v.GetDuration("delivery.persist_timeout"),
			FlushTimeout:   v.GetDuration("delivery.flush_timeout"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		v: v,
	}

	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("config: auth.secret is required (IM_AUTH_SECRET)")
	}
	if cfg.NodeID == "" {
		cfg.NodeID = defaultNodeID()
	}

	return cfg, nil
}

// Watch re-reads the config file on change and reports log level updates.
// Levels are the one knob worth flipping on a live node; everything else
// needs a restart anyway.
func (c *Config) Watch(onLevelChange func(level string)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}

	last := c.Log.Level
	c.v.OnConfigChange(func(fsnotify.Event) {
		if level := c.v.GetString("log.level"); level != last {
			last = level
			onLevelChange(level)
		}
	})
	c.v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node_id", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.leeway", 30*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 8)

	v.SetDefault("relay.url", "")

	v.SetDefault("presence.online_ttl", 300*time.Second)
	v.SetDefault("presence.queue_ttl", 720*time.Hour)

	v.SetDefault("hub.max_connections_per_user", 5)
	v.SetDefault("hub.mailbox_size", 256)
	v.SetDefault("hub.send_timeout", 500*time.Millisecond)
	v.SetDefault("hub.write_timeout", 10*time.Second)

	v.SetDefault("router.read_limit", 64*1024)
	v.SetDefault("router.rate", 20)
	v.SetDefault("router.burst", 40)

	v.SetDefault("delivery.persist_timeout", 10*time.Second)
	v.SetDefault("delivery.flush_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// bindFlags binds only the flags the operator actually set, so empty flag
// values do not shadow defaults or the file.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if bindErr := v.BindPFlag(f.Name, f); bindErr != nil {
			err = bindErr
		}
	})
	return err
}

func defaultNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.NewString()[:8]
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
