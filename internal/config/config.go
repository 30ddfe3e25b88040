package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"go2tv.app/castads/castprotocol"
)

type Config struct {
	Device         string   `json:"device" mapstructure:"device"`
	ReceiverAppID  string   `json:"receiverAppID" mapstructure:"receiverAppID"`
	Namespaces     []string `json:"namespaces" mapstructure:"namespaces"`
	LogFile        string   `json:"logFile" mapstructure:"logFile"`
	Debug          bool     `json:"debug" mapstructure:"debug"`
	TrackerRetries int      `json:"trackerRetries" mapstructure:"trackerRetries"`
	TrackerRate    float64  `json:"trackerRate" mapstructure:"trackerRate"`
}

// Default returns the settings written on first use.
func Default() *Config {
	return &Config{
		ReceiverAppID:  castprotocol.DefaultMediaReceiverAppID,
		Namespaces:     []string{castprotocol.CustomReceiverNamespace, castprotocol.MediaNamespace},
		TrackerRetries: 2,
		TrackerRate:    10,
	}
}

// GetAppConfig loads the settings file, creating it with defaults if it
// does not exist yet.
func GetAppConfig() (*Config, error) {
	path, err := appPath()
	if err != nil {
		return nil, fmt.Errorf("GetAppConfig: failed to access config path due to error %w", err)
	}

	return Load(path)
}

// Load reads the settings file at path. A missing file is created with
// the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("Load: failed to open config due to error %w", err)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("Load: failed to create default path due to error %w", err)
		}

		conf := Default()
		if err := conf.Save(path); err != nil {
			return nil, err
		}
		return conf, nil
	}

	return Decode(b)
}

// Decode parses settings JSON on top of the defaults. Values of the wrong
// JSON type are converted where that is unambiguous ("5" for a number,
// "true" for a bool).
func Decode(b []byte) (*Config, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("Decode: failed to decode config due to error %w", err)
	}

	conf := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ZeroFields:       true,
		Result:           conf,
	})
	if err != nil {
		return nil, fmt.Errorf("Decode: failed to build decoder due to error %w", err)
	}

	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("Decode: failed to decode config due to error %w", err)
	}

	return conf, nil
}

func appPath() (string, error) {
	oscfg, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("appPath: failed to get config file due to error %w", err)
	}

	return filepath.Join(oscfg, "castads", "settings.json"), nil
}

// Save writes the settings to path.
func (s *Config) Save(path string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("Save: failed to marshal json due to error %w", err)
	}

	if err := os.WriteFile(path, b, 0600); err != nil {
		return fmt.Errorf("Save: failed save config due to error %w", err)
	}

	return nil
}
