package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env:"LISTEN_BIND_IP" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env:"LISTEN_PORT" env-default:"8080"`
}

type MailConfig struct {
	// Domain is the mail domain every registered account belongs to,
	// e.g. "example.org" for alice@example.org.
	Domain string `yaml:"domain" env:"MAIL_DOMAIN" env-default:""`
}

type CacheConfig struct {
	Enabled bool   `yaml:"enabled" env:"CACHE_ENABLED" env-default:"false"`
	URL     string `yaml:"url" env:"CACHE_URL" env-default:""`
	AuthKey string `yaml:"auth_key" env:"CACHE_AUTH_KEY" env-default:""`
	// TimeoutMs bounds each cache call; exceeding it degrades to a miss.
	TimeoutMs int `yaml:"timeout_ms" env:"CACHE_TIMEOUT_MS" env-default:"300"`
	// TTLs in seconds for the cached views.
	UserTTL          int `yaml:"user_ttl" env:"CACHE_USER_TTL" env-default:"86400"`
	UserCheckTTL     int `yaml:"user_check_ttl" env:"CACHE_USER_CHECK_TTL" env-default:"3600"`
	UserNegativeTTL  int `yaml:"user_negative_ttl" env:"CACHE_USER_NEGATIVE_TTL" env-default:"300"`
	TokenSnapshotTTL int `yaml:"token_snapshot_ttl" env:"CACHE_TOKEN_TTL" env-default:"300"`
}

type MySqlConfig struct {
	HostName string `yaml:"host" env:"MYSQL_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"MYSQL_PORT" env-default:"3306"`
	UserName string `yaml:"user" env:"MYSQL_USER" env-default:""`
	Password string `yaml:"password" env:"MYSQL_PASSWORD" env-default:""`
	Database string `yaml:"database" env:"MYSQL_DATABASE" env-default:"mailgate"`
}

type MongoConfig struct {
	Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
	Host     string `yaml:"host" env:"MONGO_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
	User     string `yaml:"user" env:"MONGO_USER" env-default:""`
	Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:""`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"mailgate"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled" env:"TELEGRAM_ENABLED" env-default:"false"`
	ApiKey  string `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
	ChatId  int64  `yaml:"chat_id" env:"TELEGRAM_CHAT_ID" env-default:"0"`
}

type RateLimitConfig struct {
	// RequestsPerMinute applies per client IP on the /api routes.
	RequestsPerMinute int `yaml:"requests_per_minute" env:"RATE_LIMIT_RPM" env-default:"60"`
}

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	Listen    Listen          `yaml:"listen"`
	Mail      MailConfig      `yaml:"mail"`
	Cache     CacheConfig     `yaml:"cache"`
	MySql     MySqlConfig     `yaml:"mysql"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
