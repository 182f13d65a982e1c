package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Gateway struct {
		Addr string `yaml:"addr"`
	} `yaml:"gateway"`
	API struct {
		Addr string `yaml:"addr"`
	} `yaml:"api"`
	Store struct {
		Driver      string   `yaml:"driver"` // scylla|memory
		ScyllaHosts []string `yaml:"scylla_hosts"`
		Keyspace    string   `yaml:"keyspace"`
	} `yaml:"store"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers     []string `yaml:"brokers"`
		NotifyTopic string   `yaml:"notify_topic"`
		PushTopic   string   `yaml:"push_topic"`
		GroupID     string   `yaml:"group_id"`
	} `yaml:"kafka"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
		DevLogin  bool          `yaml:"dev_login"` // mounts POST /login on the API
	} `yaml:"auth"`
	Messaging struct {
		MaxMessageLength int   `yaml:"max_message_length"`
		SnowflakeNode    int64 `yaml:"snowflake_node"`
	} `yaml:"messaging"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json|console
	} `yaml:"logging"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	cfg.Gateway.Addr = ":8080"
	cfg.API.Addr = ":8081"
	cfg.Store.Driver = "scylla"
	cfg.Store.ScyllaHosts = []string{"localhost:9042"}
	cfg.Store.Keyspace = "chat"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Kafka.Brokers = []string{"localhost:19092"}
	cfg.Kafka.NotifyTopic = "chat-notify"
	cfg.Kafka.PushTopic = "chat-push"
	cfg.Kafka.GroupID = "messaging-service-group"
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Messaging.MaxMessageLength = 2000
	cfg.Messaging.SnowflakeNode = 1
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return cfg
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, in that order. A .env file in the working directory is
// loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("CHAT_CONFIG")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			if parts := splitList(v); len(parts) > 0 {
				*dst = parts
			}
		}
	}

	str("GATEWAY_ADDR", &cfg.Gateway.Addr)
	str("API_ADDR", &cfg.API.Addr)
	str("STORE_DRIVER", &cfg.Store.Driver)
	list("SCYLLA_HOSTS", &cfg.Store.ScyllaHosts)
	str("SCYLLA_KEYSPACE", &cfg.Store.Keyspace)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	list("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	str("KAFKA_NOTIFY_TOPIC", &cfg.Kafka.NotifyTopic)
	str("KAFKA_PUSH_TOPIC", &cfg.Kafka.PushTopic)
	str("KAFKA_GROUP_ID", &cfg.Kafka.GroupID)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	if v := strings.TrimSpace(os.Getenv("JWT_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: JWT_TTL: %w", err)
		}
		cfg.Auth.TokenTTL = d
	}
	if v := strings.TrimSpace(os.Getenv("AUTH_DEV_LOGIN")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: AUTH_DEV_LOGIN: %w", err)
		}
		cfg.Auth.DevLogin = b
	}
	if v := strings.TrimSpace(os.Getenv("MAX_MESSAGE_LENGTH")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: MAX_MESSAGE_LENGTH: %w", err)
		}
		cfg.Messaging.MaxMessageLength = n
	}
	if v := strings.TrimSpace(os.Getenv("SNOWFLAKE_NODE")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: SNOWFLAKE_NODE: %w", err)
		}
		cfg.Messaging.SnowflakeNode = n
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("config: token ttl must be positive")
	}
	if c.Messaging.MaxMessageLength <= 0 {
		return errors.New("config: max message length must be positive")
	}
	if c.Messaging.SnowflakeNode < 0 || c.Messaging.SnowflakeNode > 1023 {
		return errors.New("config: snowflake node must be between 0 and 1023")
	}
	switch c.Store.Driver {
	case "scylla":
		if len(c.Store.ScyllaHosts) == 0 {
			return errors.New("config: at least one scylla host is required")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
