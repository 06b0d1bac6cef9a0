package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Model      ModelConfig      `mapstructure:"model"`
	Generation GenerationConfig `mapstructure:"generation"`
	Image      ImageConfig      `mapstructure:"image"`
	Export     ExportConfig     `mapstructure:"export"`
	Settings   SettingsConfig   `mapstructure:"settings"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
	// MaxUploadMB bounds multipart request bodies.
	MaxUploadMB int64 `mapstructure:"max_upload_mb"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	URL             string        `mapstructure:"url"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver != "postgres" {
		return c.Path
	}
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

type StorageConfig struct {
	// Type is one of local, memory, s3, r2 or s3compatible.
	Type      string `mapstructure:"type"`
	LocalRoot string `mapstructure:"local_root"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type GenerationConfig struct {
	// MaxConcurrency caps in-flight requests during generate-all. Zero means
	// one request per pending asset.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// DefaultMode is the model mode used until the user switches it.
	DefaultMode string `mapstructure:"default_mode"`
}

type ImageConfig struct {
	MaxDimension int `mapstructure:"max_dimension"`
	JPEGQuality  int `mapstructure:"jpeg_quality"`
}

type ExportConfig struct {
	Rename          bool   `mapstructure:"rename"`
	IncludeWorkbook bool   `mapstructure:"include_workbook"`
	UploadPrefix    string `mapstructure:"upload_prefix"`
}

type SettingsConfig struct {
	Theme string `mapstructure:"theme"`
}

func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets and deployment-specific values
	v.BindEnv("model.api_key", "GEMINI_API_KEY", "API_KEY")
	v.BindEnv("model.base_url", "MODEL_BASE_URL")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.bucket", "S3_BUCKET")
	v.BindEnv("storage.public_url", "S3_PUBLIC_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Model.ResolveEnvVars()
	if err := cfg.Model.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.max_upload_mb", 512)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/stockmeta.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "stockmeta")
	v.SetDefault("database.dbname", "stockmeta")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_root", "./data/blobs")
	v.SetDefault("storage.bucket", "stockmeta")
	v.SetDefault("storage.use_ssl", true)

	v.SetDefault("model.provider", ProviderGenAI)
	v.SetDefault("model.quality_model", "gemini-3-pro-preview")
	v.SetDefault("model.fast_model", "gemini-flash-lite-latest")
	v.SetDefault("model.fallback_model", "gemini-2.5-flash")
	v.SetDefault("model.trend_model", "gemini-2.5-flash")
	v.SetDefault("model.thinking_budget", 2048)
	v.SetDefault("model.max_retries", 3)
	v.SetDefault("model.backoff_base", 2*time.Second)
	v.SetDefault("model.timeout", 120*time.Second)

	v.SetDefault("generation.max_concurrency", 0)
	v.SetDefault("generation.default_mode", "fast")

	v.SetDefault("image.max_dimension", 2048)
	v.SetDefault("image.jpeg_quality", 80)

	v.SetDefault("export.rename", true)
	v.SetDefault("export.include_workbook", false)
	v.SetDefault("export.upload_prefix", "exports")

	v.SetDefault("settings.theme", "dark")
}
