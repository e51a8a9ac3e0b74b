package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gdamore/tcell/v2"
	"gopkg.in/yaml.v3"
)

const (
	AppName        = "gapless"
	AppTagline     = "Gapless terminal audio player"
	AppDescription = "A terminal audio player that joins consecutive tracks without gaps"
	AppProjectURL  = "https://github.com/glebovdev/gapless"

	ConfigDir      = ".config/gapless"
	ConfigFileName = "config.yml"
	DefaultVolume  = 70
	MinVolume      = 0
	MaxVolume      = 100

	DefaultPreGain      = 1.0
	MaxPreGain          = 1.0
	DefaultBackend      = "speaker"
	DefaultBufferMillis = 250
	MinBufferMillis     = 20
	MaxBufferMillis     = 2000

	DefaultRingCapacity  = 16384
	DefaultRingChunkSize = 2048
)

var ErrInvalidConfig = errors.New("invalid config")

var backends = map[string]bool{"speaker": true, "oto": true, "null": true}

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/gapless/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type Theme struct {
	Background       string `yaml:"background"`
	Foreground       string `yaml:"foreground"`
	Borders          string `yaml:"borders"`
	Highlight        string `yaml:"highlight"`
	MutedVolume      string `yaml:"muted_volume"`
	HeaderBackground string `yaml:"header_background"`
	HelpBackground   string `yaml:"help_background"`
	HelpForeground   string `yaml:"help_foreground"`
	HelpHotkey       string `yaml:"help_hotkey"`
	ModalBackground  string `yaml:"modal_background"`
}

type Output struct {
	Backend      string  `yaml:"backend"`
	BufferMillis int     `yaml:"buffer_ms"`
	PreGain      float64 `yaml:"pre_gain"`
}

type RingBuffer struct {
	Capacity  int `yaml:"capacity"`
	ChunkSize int `yaml:"chunk_size"`
}

type Config struct {
	Volume     int        `yaml:"volume"`
	LastDir    string     `yaml:"last_dir"`
	Debug      bool       `yaml:"debug"`
	Output     Output     `yaml:"output"`
	RingBuffer RingBuffer `yaml:"ring_buffer"`
	Theme      Theme      `yaml:"theme"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Volume = ClampVolume(cfg.Volume)
	cfg.clamp()

	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), err
	}

	return cfg, nil
}

// clamp pulls numeric settings back into range; Validate catches the rest.
func (c *Config) clamp() {
	if c.Output.PreGain < 0 {
		c.Output.PreGain = 0
	}
	if c.Output.PreGain > MaxPreGain {
		c.Output.PreGain = MaxPreGain
	}
	if c.Output.BufferMillis < MinBufferMillis {
		c.Output.BufferMillis = MinBufferMillis
	}
	if c.Output.BufferMillis > MaxBufferMillis {
		c.Output.BufferMillis = MaxBufferMillis
	}
}

// Validate reports settings the player would reject.
func (c *Config) Validate() error {
	if !backends[c.Output.Backend] {
		return fmt.Errorf("%w: unknown output backend %q", ErrInvalidConfig, c.Output.Backend)
	}
	rb := c.RingBuffer
	if rb.Capacity <= 0 || rb.ChunkSize <= 0 {
		return fmt.Errorf("%w: ring buffer capacity and chunk size must be positive", ErrInvalidConfig)
	}
	if rb.ChunkSize > rb.Capacity {
		return fmt.Errorf("%w: ring buffer chunk size %d exceeds capacity %d", ErrInvalidConfig, rb.ChunkSize, rb.Capacity)
	}
	return nil
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = ""
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Volume:  DefaultVolume,
		LastDir: "",
		Debug:   false,
		Output: Output{
			Backend:      DefaultBackend,
			BufferMillis: DefaultBufferMillis,
			PreGain:      DefaultPreGain,
		},
		RingBuffer: RingBuffer{
			Capacity:  DefaultRingCapacity,
			ChunkSize: DefaultRingChunkSize,
		},
		Theme: Theme{
			Background:       "#1a1b25",
			Foreground:       "#a3aacb",
			Borders:          "#40445b",
			Highlight:        "#ff9d65",
			MutedVolume:      "#fe0702",
			HeaderBackground: "#473533",
			HelpBackground:   "#322f45",
			HelpForeground:   "#9aa3c6",
			HelpHotkey:       "#ff9d65",
			ModalBackground:  "#282a36",
		},
	}
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
