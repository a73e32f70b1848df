package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Profile selects a deployment tuning set. Development loosens the rate
// caps and runs against the static match store.
type Profile string

const (
	ProfileProduction  Profile = "production"
	ProfileDevelopment Profile = "development"
)

type ServerConf struct {
	Addr string `mapstructure:"addr"`
}

type AuthConf struct {
	CookieName       string        `mapstructure:"cookie_name"`
	Secret           string        `mapstructure:"secret"`
	Alg              string        `mapstructure:"alg"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

type AdmissionConf struct {
	Window time.Duration `mapstructure:"window"`
	Cap    int           `mapstructure:"cap"`
}

// EventCap overrides the window caps for one event class.
type EventCap struct {
	Window       time.Duration `mapstructure:"window"`
	MaxEvents    int           `mapstructure:"max_events"`
	MaxMegabytes int           `mapstructure:"max_megabytes"`
}

type RateLimitConf struct {
	Window       time.Duration       `mapstructure:"window"`
	MaxEvents    int                 `mapstructure:"max_events"`
	MaxMegabytes int                 `mapstructure:"max_megabytes"`
	PerEvent     map[string]EventCap `mapstructure:"per_event"`
	SweepEvery   time.Duration       `mapstructure:"sweep_every"`
	IdleAfter    time.Duration       `mapstructure:"idle_after"`
}

type PresenceConf struct {
	RecipientTimeout time.Duration `mapstructure:"recipient_timeout"`
	MirrorTTL        time.Duration `mapstructure:"mirror_ttl"`
}

type RedisConf struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoConf struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type NatsConf struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type Config struct {
	Profile   Profile       `mapstructure:"profile"`
	Server    ServerConf    `mapstructure:"server"`
	Auth      AuthConf      `mapstructure:"auth"`
	Admission AdmissionConf `mapstructure:"admission"`
	RateLimit RateLimitConf `mapstructure:"rate_limit"`
	Presence  PresenceConf  `mapstructure:"presence"`
	Redis     RedisConf     `mapstructure:"redis"`
	Mongo     MongoConf     `mapstructure:"mongo"`
	Nats      NatsConf      `mapstructure:"nats"`
}

// Load builds the configuration: profile defaults, then the optional
// JSON file at path, then environment overrides. A .env file in the
// working directory is honored first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	profile := Profile(os.Getenv("AMORA_PROFILE"))
	if profile == "" {
		profile = ProfileProduction
	}

	cfg := Defaults(profile)

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	cfg.norm()

	if cfg.Profile == ProfileProduction && cfg.Auth.Secret == "" {
		return nil, errors.New("config: JWT_SECRET required in production")
	}
	return cfg, nil
}

// Defaults returns the tuning set for a profile.
func Defaults(profile Profile) *Config {
	cfg := &Config{
		Profile: profile,
		Server:  ServerConf{Addr: ":8080"},
		Auth: AuthConf{
			CookieName:       "amora_session",
			Alg:              "HS256",
			HandshakeTimeout: 10 * time.Second,
		},
		Admission: AdmissionConf{Window: 60 * time.Second, Cap: 3},
		RateLimit: RateLimitConf{
			Window:       5 * time.Minute,
			MaxEvents:    50,
			MaxMegabytes: 1,
			SweepEvery:   10 * time.Minute,
			IdleAfter:    30 * time.Minute,
		},
		Presence: PresenceConf{
			RecipientTimeout: 3 * time.Second,
			MirrorTTL:        2 * time.Minute,
		},
		Redis: RedisConf{Addr: "127.0.0.1:6379"},
		Mongo: MongoConf{URI: "mongodb://127.0.0.1:27017", Database: "amora"},
		Nats:  NatsConf{URL: "nats://127.0.0.1:4222", SubjectPrefix: "presence"},
	}
	if profile == ProfileDevelopment {
		cfg.Auth.Secret = "dev-only-secret"
		cfg.Admission.Cap = 10
		cfg.RateLimit.MaxEvents = 500
		cfg.RateLimit.MaxMegabytes = 10
	}
	return cfg
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "config: read %s", path)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return errors.Wrapf(err, "config: parse %s", path)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     cfg,
		TagName:    "mapstructure",
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return errors.Wrap(err, "config: decoder")
	}
	if err := dec.Decode(m); err != nil {
		return errors.Wrapf(err, "config: decode %s", path)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("GATEWAY_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("MONGO_DB"); v != "" {
		cfg.Mongo.Database = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.Nats.URL = v
	}
}

func (c *Config) norm() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = "amora_session"
	}
	if c.Auth.Alg == "" {
		c.Auth.Alg = "HS256"
	}
	if c.Auth.HandshakeTimeout <= 0 {
		c.Auth.HandshakeTimeout = 10 * time.Second
	}
	if c.Admission.Window <= 0 {
		c.Admission.Window = 60 * time.Second
	}
	if c.Admission.Cap <= 0 {
		c.Admission.Cap = 3
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = 5 * time.Minute
	}
	if c.RateLimit.MaxEvents <= 0 {
		c.RateLimit.MaxEvents = 50
	}
	if c.RateLimit.MaxMegabytes <= 0 {
		c.RateLimit.MaxMegabytes = 1
	}
	if c.RateLimit.SweepEvery <= 0 {
		c.RateLimit.SweepEvery = 10 * time.Minute
	}
	if c.RateLimit.IdleAfter <= 0 {
		c.RateLimit.IdleAfter = 30 * time.Minute
	}
	if c.Presence.RecipientTimeout <= 0 {
		c.Presence.RecipientTimeout = 3 * time.Second
	}
	if c.Presence.MirrorTTL <= 0 {
		c.Presence.MirrorTTL = 2 * time.Minute
	}
	if c.Nats.SubjectPrefix == "" {
		c.Nats.SubjectPrefix = "presence"
	}
}
