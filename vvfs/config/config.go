package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/vvfs-filetypes/vvfs"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filesystem/watcher"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/ignore"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/matcher"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	FileTypes FileTypesConfig `mapstructure:"filetypes"`
	Watcher   WatcherConfig   `mapstructure:"watcher"`
	LogLevel  string          `mapstructure:"logLevel"`
}

// FileTypesConfig stores the detection engine settings.
type FileTypesConfig struct {
	SniffLimit          int                 `mapstructure:"sniffLimit"`
	RedetectChunkSize   int                 `mapstructure:"redetectChunkSize"`
	CrashBackoffSeconds int                 `mapstructure:"crashBackoffSeconds"`
	MaxCrashRetries     int                 `mapstructure:"maxCrashRetries"`
	IgnoredFiles        string              `mapstructure:"ignoredFiles"`
	IgnoreFile          string              `mapstructure:"ignoreFile"`
	Associations        []AssociationConfig `mapstructure:"associations"`
	AttributeStore      DatabaseConfig      `mapstructure:"attributeStore"`
}

// AssociationConfig maps name patterns and interpreters to a file type.
// Unknown type names register a new type.
type AssociationConfig struct {
	Type        string   `mapstructure:"type"`
	Description string   `mapstructure:"description"`
	Binary      bool     `mapstructure:"binary"`
	Patterns    []string `mapstructure:"patterns"`
	HashBangs   []string `mapstructure:"hashBangs"`
}

// DatabaseConfig stores database connection details.
// An empty DSN keeps attributes in memory.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// WatcherConfig stores the change watcher settings.
type WatcherConfig struct {
	Paths             []string `mapstructure:"paths"`
	DebounceMillis    int      `mapstructure:"debounceMillis"`
	MaxDebounceMillis int      `mapstructure:"maxDebounceMillis"`
	QueueCapacity     int      `mapstructure:"queueCapacity"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetDefault("logLevel", "info")

	v.SetDefault("filetypes.sniffLimit", filetypes.DefaultSniffLimit)
	v.SetDefault("filetypes.redetectChunkSize", filetypes.DefaultRedetectChunkSize)
	v.SetDefault("filetypes.crashBackoffSeconds", int(filetypes.DefaultCrashBackoff/time.Second))
	v.SetDefault("filetypes.maxCrashRetries", filetypes.DefaultMaxCrashRetries)
	v.SetDefault("filetypes.ignoredFiles", ignore.DefaultIgnoredMasks)
	v.SetDefault("filetypes.ignoreFile", "")
	v.SetDefault("filetypes.attributeStore.dsn", "")

	defaults := watcher.DefaultConfig()
	v.SetDefault("watcher.paths", []string{})
	v.SetDefault("watcher.debounceMillis", defaults.DebounceDelay.Milliseconds())
	v.SetDefault("watcher.maxDebounceMillis", defaults.MaxDebounceDelay.Milliseconds())
	v.SetDefault("watcher.queueCapacity", defaults.QueueCapacity)

	v.AutomaticEnv()                                   // Read in environment variables that match
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // filetypes.sniffLimit becomes FILETYPES_SNIFFLIMIT

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	AppConfig = cfg
	return &AppConfig, nil
}

// Options converts the section into manager options. The caller fills in the
// stores and the owner.
func (c FileTypesConfig) Options() filetypes.Options {
	return filetypes.Options{
		SniffLimit:      c.SniffLimit,
		ChunkSize:       c.RedetectChunkSize,
		CrashBackoff:    time.Duration(c.CrashBackoffSeconds) * time.Second,
		MaxCrashRetries: c.MaxCrashRetries,
		IgnoredFiles:    c.IgnoredFiles,
	}
}

// Settings converts the section into watcher settings.
func (c WatcherConfig) Settings() watcher.WatcherConfig {
	return watcher.WatcherConfig{
		DebounceDelay:    time.Duration(c.DebounceMillis) * time.Millisecond,
		MaxDebounceDelay: time.Duration(c.MaxDebounceMillis) * time.Millisecond,
		QueueCapacity:    c.QueueCapacity,
	}
}

// Apply replays the configured associations and ignore rules on m. The
// rules file applies under each of roots. Restarting with an unchanged
// configuration keeps m's generation.
func (c FileTypesConfig) Apply(m *filetypes.Manager, roots ...string) error {
	return m.LoadState(func(l *filetypes.StateLoader) error {
		if err := applyAssociations(l, c.Associations); err != nil {
			return err
		}
		if c.IgnoreFile == "" {
			return nil
		}
		if err := l.LoadIgnoreRules(c.IgnoreFile, roots...); err != nil {
			return fmt.Errorf("failed to load ignore rules: %w", err)
		}
		return nil
	})
}

// applyAssociations installs the associations. Types that are not
// registered yet are created from the entry.
func applyAssociations(l *filetypes.StateLoader, associations []AssociationConfig) error {
	for _, a := range associations {
		if a.Type == "" {
			return errors.New("association without a type name")
		}

		matchers := make([]matcher.FileNameMatcher, 0, len(a.Patterns))
		for _, p := range a.Patterns {
			fm, err := matcher.Parse(p)
			if err != nil {
				return fmt.Errorf("association %s: %w", a.Type, err)
			}
			matchers = append(matchers, fm)
		}

		t, err := l.Materialize(a.Type)
		switch {
		case errors.Is(err, filetypes.ErrUnknownFileType):
			t = filetypes.NewFileType(a.Type, a.Description, a.Binary)
			l.RegisterFileType(t, matchers...)
		case err != nil:
			return err
		default:
			for _, fm := range matchers {
				if l.IsAssociatedWith(t, fm) {
					slog.Debug("Association already registered, raising its priority",
						"type", t.Name(), "pattern", fm.PresentableString())
				}
				l.Associate(t, fm)
			}
		}

		for _, hb := range a.HashBangs {
			l.AddHashBang(t, hb)
		}
	}
	return nil
}
