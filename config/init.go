package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Конечная структура конфигурации приложения.
// Расширяем по мере роста проекта.
type Config struct {
	Server struct {
		Address  string `mapstructure:"address"`   // 0.0.0.0
		HTTPPort string `mapstructure:"http_port"` // 8080
		// Токен, которым чат-мост авторизуется на HTTP-границе.
		BridgeToken string `mapstructure:"bridge_token"`
	} `mapstructure:"server"`

	Logging struct {
		Level  string `mapstructure:"level"`  // trace|debug|info|warning|error|fatal
		Format string `mapstructure:"format"` // text|json
		File   string `mapstructure:"file"`   // путь/префикс файла, пусто — только stdout
	} `mapstructure:"logs"`

	Database struct {
		Driver string `mapstructure:"driver"` // "postgres" | "mysql" | "" (in-memory)
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Registry struct {
		// purge — запись удаляется сразу; archive — остаётся помеченной
		// удалённой ради истории трафика.
		Retention string `mapstructure:"retention"`
	} `mapstructure:"registry"`

	WireGuard struct {
		Interface       string        `mapstructure:"interface"`         // wg0
		SubnetCIDR      string        `mapstructure:"subnet_cidr"`       // 10.0.0.0/24
		Endpoint        string        `mapstructure:"endpoint"`          // host:port для клиентских конфигов
		ServerPublicKey string        `mapstructure:"server_public_key"` // публичный ключ сервера
		DNS             string        `mapstructure:"dns"`               // адрес DNS в клиентском конфиге
		ConfigFile      string        `mapstructure:"config_file"`       // серверный файл с пир-блоками
		StatsFeed       string        `mapstructure:"stats_feed"`        // снапшот `wg show <iface> dump`; пусто — читать устройство
		ApplyInterval   time.Duration `mapstructure:"apply_interval"`
		StatsInterval   time.Duration `mapstructure:"stats_interval"`
		ApplyMaxFail    int           `mapstructure:"apply_max_failures"`
	} `mapstructure:"wireguard"`

	Auth struct {
		AdminIDs []int64 `mapstructure:"admin_ids"`
		// Класс разрешённых символов имени пользователя (тело [...]).
		UsernamePattern string `mapstructure:"username_pattern"`
	} `mapstructure:"auth"`
}

// Load читает конфиг из env/файла с дефолтами.
func Load() (*Config, error) {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Дефолты (минимальный рабочий набор)
	viper.SetDefault("server.address", "0.0.0.0")
	viper.SetDefault("server.http_port", "8080")
	viper.SetDefault("server.bridge_token", "CHANGE_ME")

	viper.SetDefault("logs.level", "info")
	viper.SetDefault("logs.format", "text")
	viper.SetDefault("logs.file", "")

	viper.SetDefault("database.driver", "")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("registry.retention", "archive")

	viper.SetDefault("wireguard.interface", "wg0")
	viper.SetDefault("wireguard.subnet_cidr", "10.0.0.0/24")
	viper.SetDefault("wireguard.endpoint", "")
	viper.SetDefault("wireguard.server_public_key", "")
	viper.SetDefault("wireguard.dns", "")
	viper.SetDefault("wireguard.config_file", "/etc/wireguard/peers.conf")
	viper.SetDefault("wireguard.stats_feed", "")
	viper.SetDefault("wireguard.apply_interval", time.Minute)
	viper.SetDefault("wireguard.stats_interval", 5*time.Minute)
	viper.SetDefault("wireguard.apply_max_failures", 5)

	viper.SetDefault("auth.admin_ids", []int64{})
	viper.SetDefault("auth.username_pattern", "a-zA-Z0-9_")

	// Источник файла
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			viper.AddConfigPath(filepath.Join(xdg, "wgwarden"))
		}
		viper.AddConfigPath("/etc/wgwarden")
	}

	// Чтение файла (опционально)
	if err := viper.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func validate(c *Config) error {
	if strings.TrimSpace(c.Server.BridgeToken) == "" || c.Server.BridgeToken == "CHANGE_ME" {
		return errors.New("server.bridge_token must be set (not empty and not CHANGE_ME)")
	}
	if strings.TrimSpace(c.Server.HTTPPort) == "" {
		return errors.New("server.http_port must not be empty")
	}
	if _, _, err := net.ParseCIDR(c.WireGuard.SubnetCIDR); err != nil {
		return fmt.Errorf("wireguard.subnet_cidr: %w", err)
	}
	if _, err := regexp.Compile("^[" + c.Auth.UsernamePattern + "]+$"); err != nil {
		return fmt.Errorf("auth.username_pattern: %w", err)
	}
	switch c.Registry.Retention {
	case "purge", "archive":
	default:
		return fmt.Errorf("registry.retention must be purge or archive, got %q", c.Registry.Retention)
	}
	return nil
}
