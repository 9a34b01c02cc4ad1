package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/semmidev/donky/internal/domain"
	"github.com/spf13/viper"
)

const (
	DefaultRegistry       = "docker.io"
	DefaultDatabaseImage  = "percona/percona-server"
	DefaultRestoreImage   = "perconalab/percona-xtrabackup"
	DefaultPort           = 3306
	DefaultRestoreTimeout = time.Hour
	DefaultPortTimeout    = 60 * time.Second
	DefaultBootstrapWait  = 20 * time.Second
	DefaultWorkers        = 4
)

type Config struct {
	App         AppConfig                   `mapstructure:"app"`
	Notify      NotifyConfig                `mapstructure:"notify"`
	Obfuscators map[string]ObfuscatorConfig `mapstructure:"obfuscators"`
}

type AppConfig struct {
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	LogLevel        string `mapstructure:"log_level"`
	LogFile         string `mapstructure:"log_file"`
	ContainerEngine string `mapstructure:"container_engine"`
	Socket          string `mapstructure:"socket"`
	Workers         int    `mapstructure:"workers"`
	Tmp             string `mapstructure:"tmp"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BotToken  string `mapstructure:"bot_token"`
	ChatID    string `mapstructure:"chat_id"`
	OnlyError bool   `mapstructure:"only_error"`
}

// ObfuscatorConfig is one obfuscation job as written in the config file.
type ObfuscatorConfig struct {
	DBType         string        `mapstructure:"db_type"`
	BackupType     string        `mapstructure:"backup_type"`
	BackupSource   string        `mapstructure:"backup_source"`
	SearchName     string        `mapstructure:"search_name"`
	Registry       string        `mapstructure:"registry"`
	Image          string        `mapstructure:"image"`
	RestoreImage   string        `mapstructure:"restore_image"`
	Port           int           `mapstructure:"port"`
	Workers        int           `mapstructure:"workers"`
	RestoreTimeout time.Duration `mapstructure:"restore_timeout"`
	PortTimeout    time.Duration `mapstructure:"port_timeout"`
	BootstrapWait  time.Duration `mapstructure:"bootstrap_wait"`
	Schedule       string        `mapstructure:"schedule"`
	KeepContainers bool          `mapstructure:"keep_containers"`
	// ProtectVolume refuses to reuse an existing data volume instead of
	// removing it.
	ProtectVolume bool         `mapstructure:"protect_volume"`
	Script        ScriptConfig `mapstructure:"script"`
}

type ScriptConfig struct {
	Source string `mapstructure:"source"` // local, s3, gdrive, git
	Path   string `mapstructure:"path"`

	// git
	Repository string `mapstructure:"repository"`
	Ref        string `mapstructure:"ref"`

	// s3
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`

	// gdrive
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("donky")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "donky")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.container_engine", "podman")
	v.SetDefault("app.workers", DefaultWorkers)
	v.SetDefault("app.tmp", "/tmp")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for name, o := range c.Obfuscators {
		if o.DBType == "" {
			o.DBType = "mysql"
		}
		if o.BackupType == "" {
			o.BackupType = string(domain.BackupTypeBinary)
		}
		if o.Registry == "" {
			o.Registry = DefaultRegistry
		}
		if o.Image == "" {
			o.Image = DefaultDatabaseImage
		}
		if o.RestoreImage == "" {
			o.RestoreImage = DefaultRestoreImage
		}
		if o.Port == 0 {
			o.Port = DefaultPort
		}
		if o.Workers == 0 {
			o.Workers = c.App.Workers
		}
		if o.RestoreTimeout == 0 {
			o.RestoreTimeout = DefaultRestoreTimeout
		}
		if o.PortTimeout == 0 {
			o.PortTimeout = DefaultPortTimeout
		}
		if o.BootstrapWait == 0 {
			o.BootstrapWait = DefaultBootstrapWait
		}
		if o.Script.Source == "" {
			o.Script.Source = "local"
		}
		c.Obfuscators[name] = o
	}
}

func (c *Config) Validate() error {
	if _, err := domain.ParseBackend(c.App.ContainerEngine); err != nil {
		return fmt.Errorf("app.container_engine: %w", err)
	}
	if c.App.Workers < 1 {
		return fmt.Errorf("app.workers must be positive")
	}

	if len(c.Obfuscators) == 0 {
		return fmt.Errorf("at least one obfuscator configuration is required")
	}

	for name, o := range c.Obfuscators {
		if name == "all" {
			return fmt.Errorf("obfuscator name %q is reserved", name)
		}
		if o.DBType != "mysql" {
			return fmt.Errorf("obfuscator %s: unsupported db_type %q", name, o.DBType)
		}
		if o.BackupSource == "" {
			return fmt.Errorf("obfuscator %s: backup_source is required", name)
		}
		if o.SearchName == "" {
			return fmt.Errorf("obfuscator %s: search_name is required", name)
		}
		if o.Script.Path == "" {
			return fmt.Errorf("obfuscator %s: script.path is required", name)
		}
		switch o.Script.Source {
		case "local":
		case "git":
			if o.Script.Repository == "" {
				return fmt.Errorf("obfuscator %s: script.repository is required for git", name)
			}
		case "s3":
			if o.Script.Bucket == "" {
				return fmt.Errorf("obfuscator %s: script.bucket is required for s3", name)
			}
		case "gdrive":
			if o.Script.CredentialsFile == "" || o.Script.FolderID == "" {
				return fmt.Errorf("obfuscator %s: script.credentials_file and script.folder_id are required for gdrive", name)
			}
		default:
			return fmt.Errorf("obfuscator %s: unknown script source %q", name, o.Script.Source)
		}
		if o.Port < 1 || o.Port > 65535 {
			return fmt.Errorf("obfuscator %s: port must be between 1 and 65535", name)
		}
		if o.Workers < 1 {
			return fmt.Errorf("obfuscator %s: workers must be positive", name)
		}
	}

	if t := c.Notify.Telegram; t.Enabled && (t.BotToken == "" || t.ChatID == "") {
		return fmt.Errorf("notify.telegram: bot_token and chat_id are required when enabled")
	}

	return nil
}

func (c *Config) Backend() domain.Backend {
	b, _ := domain.ParseBackend(c.App.ContainerEngine)
	return b
}

// ObfuscatorNames returns the configured obfuscator names in a stable order.
func (c *Config) ObfuscatorNames() []string {
	names := make([]string, 0, len(c.Obfuscators))
	for name := range c.Obfuscators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) Obfuscator(name string) (ObfuscatorConfig, error) {
	o, ok := c.Obfuscators[strings.ToLower(name)]
	if !ok {
		return ObfuscatorConfig{}, fmt.Errorf("%w: no config section for obfuscator %q", domain.ErrConfiguration, name)
	}
	return o, nil
}

func (c *Config) GetScheduledObfuscators() map[string]ObfuscatorConfig {
	scheduled := make(map[string]ObfuscatorConfig)
	for name, o := range c.Obfuscators {
		if o.Schedule != "" {
			scheduled[name] = o
		}
	}
	return scheduled
}
