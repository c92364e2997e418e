package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort    int    `mapstructure:"http_port"`
	GRPCPort    int    `mapstructure:"grpc_port"`
	LogLevel    string `mapstructure:"log_level"`
	ServiceName string `mapstructure:"service_name"` // Used for Consul registration and API docs
	JwtSecret   string `mapstructure:"jwt_secret"`

	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Export   ExportConfig   `mapstructure:"export"`
	Seed     SeedConfig     `mapstructure:"seed"`
	Consul   ConsulConfig   `mapstructure:"consul"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Server   ServerConfig   `mapstructure:"server"`
}

type AuthConfig struct {
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	Issuer   string        `mapstructure:"issuer"`
	// OpenRoleRegistration lets anonymous callers register as admin or super_admin.
	OpenRoleRegistration bool `mapstructure:"open_role_registration"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite, postgres or mysql
	URL      string `mapstructure:"url"`
	LogLevel string `mapstructure:"log_level"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ExportConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type SeedConfig struct {
	SuperAdmin SeedUser `mapstructure:"super_admin"`
}

type SeedUser struct {
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

type ConsulConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	CheckHost string `mapstructure:"check_host"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type ServerConfig struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

var AppConfig Config

// InitConfig loads the configuration into AppConfig and panics on malformed input.
func InitConfig() {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	AppConfig = cfg
}

// Load reads config.yaml (if present) and HKL_* environment overrides.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("HKL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("fatal error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 5000)
	v.SetDefault("grpc_port", 50051)
	v.SetDefault("log_level", "info")
	v.SetDefault("service_name", "hkl-events")
	v.SetDefault("jwt_secret", "default-very-insecure-secret-key") // CHANGE THIS IN PRODUCTION

	v.SetDefault("auth.token_ttl", "168h")
	v.SetDefault("auth.issuer", "hkl-api")
	v.SetDefault("auth.open_role_registration", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "hkl.db")
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("export.timezone", "UTC")

	v.SetDefault("seed.super_admin.name", "Super Admin")
	v.SetDefault("seed.super_admin.email", "")
	v.SetDefault("seed.super_admin.password", "")

	v.SetDefault("consul.enabled", false)
	v.SetDefault("consul.address", "127.0.0.1:8500")
	v.SetDefault("consul.check_host", "localhost")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("server.shutdown_timeout", "10s")
}
