package config

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const configFileName = "rangedl"

// Config holds the configuration options for the application.
type Config struct {
	MaxConcurrentDownloads int             `yaml:"maxConcurrentDownloads,omitempty"`
	StateDB                string          `yaml:"stateDB,omitempty"`
	Download               *DownloadConfig `yaml:"download,omitempty"`
}

// DownloadConfig holds the per-download defaults applied by the get command.
type DownloadConfig struct {
	DownloadDir        string        `yaml:"dir,omitempty"`
	RangeLength        int           `yaml:"rangeLength,omitempty"`
	ConnectTimeout     time.Duration `yaml:"connectTimeout,omitempty"`
	InactivityTimeout  time.Duration `yaml:"inactivityTimeout,omitempty"`
	ReconnectDelay     time.Duration `yaml:"reconnectDelay,omitempty"`
	CACertFile         string        `yaml:"caCertFile,omitempty"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify,omitempty"`
	Proxy              string        `yaml:"proxy,omitempty"`
}

// CACert reads the configured CA bundle, or returns nil when none is set.
func (d *DownloadConfig) CACert() ([]byte, error) {
	if d.CACertFile == "" {
		return nil, nil
	}

	return os.ReadFile(d.CACertFile)
}

// Path returns the location of the configuration file.
func Path() string {
	return filepath.Join(xdg.ConfigHome, configFileName)
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default configuration.
func GetConfig() (*Config, error) {
	defaults := DefaultConfig()

	b, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	dlCfg := zeroOr(cfg.Download, defaults.Download)

	return &Config{
		MaxConcurrentDownloads: zeroOr(cfg.MaxConcurrentDownloads, defaults.MaxConcurrentDownloads),
		StateDB:                zeroOr(cfg.StateDB, defaults.StateDB),
		Download: &DownloadConfig{
			DownloadDir:        zeroOr(dlCfg.DownloadDir, defaults.Download.DownloadDir),
			RangeLength:        zeroOr(dlCfg.RangeLength, defaults.Download.RangeLength),
			ConnectTimeout:     zeroOr(dlCfg.ConnectTimeout, defaults.Download.ConnectTimeout),
			InactivityTimeout:  zeroOr(dlCfg.InactivityTimeout, defaults.Download.InactivityTimeout),
			ReconnectDelay:     zeroOr(dlCfg.ReconnectDelay, defaults.Download.ReconnectDelay),
			CACertFile:         zeroOr(dlCfg.CACertFile, defaults.Download.CACertFile),
			InsecureSkipVerify: zeroOr(dlCfg.InsecureSkipVerify, defaults.Download.InsecureSkipVerify),
			Proxy:              zeroOr(dlCfg.Proxy, defaults.Download.Proxy),
		},
	}, nil
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentDownloads: maxConcurrentDownloads,
		StateDB:                stateDB(),
		Download: &DownloadConfig{
			DownloadDir:       downloadDir,
			RangeLength:       rangeLength,
			ConnectTimeout:    connectTimeout,
			InactivityTimeout: inactivityTimeout,
			ReconnectDelay:    reconnectDelay,
		},
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
