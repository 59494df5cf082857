package config

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	pkgconfig "github.com/weiawesome/wes-io-chat/pkg/config"
	"github.com/weiawesome/wes-io-chat/pkg/database"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

type Config struct {
	InstanceID string `mapstructure:"instance_id"`
	Server     ServerConfig
	WebSocket  WebSocketConfig
	Database   database.Config
	Redis      RedisConfig
	Cache      CacheConfig
	PubSub     pubsub.Config `mapstructure:"pubsub"`
	Presence   PresenceConfig
	Kafka      KafkaConfig
	Auth       AuthConfig
	Log        log.Config
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type WebSocketConfig struct {
	Path           string
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	Enabled bool
	Prefix  string
	TTL     time.Duration
}

type PresenceConfig struct {
	// Driver is "database" (users table columns) or "redis".
	Driver string
	Prefix string
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

type AuthConfig struct {
	// Mode is "header" (identity asserted by a trusted proxy) or "jwt".
	Mode       string
	Header     string
	JWTSecret  string `mapstructure:"jwt_secret"`
	JWTIssuer  string `mapstructure:"jwt_issuer"`
	QueryParam string `mapstructure:"query_param"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load(pkgconfig.GetEnv("CONFIG_PATH", "./config"), "config")
	if err != nil {
		return nil, err
	}

	v.SetDefault("instance_id", "")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 64*1024)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "chat.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.prefix", "chat:conversation")
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.driver", "redis")
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "chat-gateway")
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("presence.driver", "database")
	v.SetDefault("presence.prefix", "chat:presence")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "chat-messages")
	v.SetDefault("kafka.partitions", 8)
	v.SetDefault("auth.mode", "header")
	v.SetDefault("auth.header", "X-User-ID")
	v.SetDefault("auth.query_param", "token")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "chat-gateway")

	// Override from environment
	v.BindEnv("instance_id", "INSTANCE_ID")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("pubsub.enabled", "PUBSUB_ENABLED")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("auth.mode", "AUTH_MODE")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.jwt_issuer", "JWT_ISSUER")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.pretty", "LOG_PRETTY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Cache.TTL = parseDuration(v, "cache.ttl", time.Hour)

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.New().String()
	}
	cfg.Log.InstanceID = cfg.InstanceID
	cfg.PubSub.InstanceID = cfg.InstanceID
	cfg.PubSub.Redis.Address = cfg.Redis.Address
	cfg.PubSub.Redis.Password = cfg.Redis.Password
	cfg.PubSub.Redis.DB = cfg.Redis.DB

	return &cfg, nil
}

// DefaultWebSocketConfig returns the settings used when none are configured.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		Path:           "/ws",
		PingInterval:   30 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
