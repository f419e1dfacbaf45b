package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env:"LISTEN_BIND_IP" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env:"LISTEN_PORT" env-default:"8080"`
}

type MongoConfig struct {
	Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
	Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
	User     string `yaml:"user" env:"MONGO_USER" env-default:""`
	Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:""`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"momento"`
}

type MySQLConfig struct {
	Enabled  bool   `yaml:"enabled" env:"MYSQL_ENABLED" env-default:"false"`
	Host     string `yaml:"host" env:"MYSQL_HOST" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"MYSQL_PORT" env-default:"3306"`
	User     string `yaml:"user" env:"MYSQL_USER" env-default:""`
	Password string `yaml:"password" env:"MYSQL_PASSWORD" env-default:""`
	Database string `yaml:"database" env:"MYSQL_DATABASE" env-default:"momento"`
	Prefix   string `yaml:"prefix" env:"MYSQL_PREFIX" env-default:""`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"127.0.0.1:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type TelegramConfig struct {
	Enabled  bool    `yaml:"enabled" env:"TELEGRAM_ENABLED" env-default:"false"`
	ApiKey   string  `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
	AdminIds []int64 `yaml:"admin_ids" env:"TELEGRAM_ADMIN_IDS" env-separator:","`
	MinLevel string  `yaml:"min_level" env-default:"warn"`
}

type StorageConfig struct {
	Provider string `yaml:"provider" env:"STORAGE_PROVIDER" env-default:"local"`
	// local
	Directory string `yaml:"directory" env:"STORAGE_DIRECTORY" env-default:"./uploads"`
	// drive
	CredentialsFile string `yaml:"credentials_file" env:"DRIVE_CREDENTIALS_FILE" env-default:""`
	RootFolderId    string `yaml:"root_folder_id" env:"DRIVE_ROOT_FOLDER_ID" env-default:""`
}

type LimitsConfig struct {
	RateLimitRequests int           `yaml:"rate_limit_requests" env-default:"30"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window" env-default:"1m"`
	StoreTimeout      time.Duration `yaml:"store_timeout" env-default:"3s"`
	StoreRetries      uint          `yaml:"store_retries" env-default:"3"`
	MaxUploadMB       int           `yaml:"max_upload_mb" env-default:"200"`
	RequestTimeout    time.Duration `yaml:"request_timeout" env-default:"10s"`
	UploadTimeout     time.Duration `yaml:"upload_timeout" env-default:"5m"`
}

type AdminConfig struct {
	Username string `yaml:"username" env:"ADMIN_USERNAME" env-default:"admin"`
	Token    string `yaml:"token" env:"ADMIN_TOKEN" env-default:""`
}

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	Listen   Listen         `yaml:"listen"`
	Mongo    MongoConfig    `yaml:"mongo"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Redis    RedisConfig    `yaml:"redis"`
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Limits   LimitsConfig   `yaml:"limits"`
	Admin    AdminConfig    `yaml:"admin"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance, err = Load(path)
		if err != nil {
			log.Fatal(err)
		}
	})
	return instance
}

// Load reads the yaml file at path and applies environment overrides.
func Load(path string) (*Config, error) {
	conf := &Config{}
	if err := cleanenv.ReadConfig(path, conf); err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		return nil, fmt.Errorf("config: %s; %s", err, desc)
	}
	if err := conf.check(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return conf, nil
}

func (c *Config) check() error {
	if c.Mongo.Enabled && c.MySQL.Enabled {
		return fmt.Errorf("database: enable either mongo or mysql, not both")
	}
	switch c.Storage.Provider {
	case "local":
	case "drive":
		if c.Storage.CredentialsFile == "" || c.Storage.RootFolderId == "" {
			return fmt.Errorf("storage: drive provider needs credentials_file and root_folder_id")
		}
	default:
		return fmt.Errorf("storage: unknown provider %q", c.Storage.Provider)
	}
	if c.Telegram.Enabled && c.Telegram.ApiKey == "" {
		return fmt.Errorf("telegram: api_key is required when enabled")
	}
	if c.Limits.StoreRetries == 0 {
		c.Limits.StoreRetries = 1
	}
	return nil
}
