// Package config loads the headset runtime configuration.
//
// Values come from built-in defaults, an optional YAML file and HEADSET_
// prefixed environment variables, in increasing order of precedence. Nested
// keys map to environment names by replacing dots with underscores, so
// mic.offset_filter.bypass is HEADSET_MIC_OFFSET_FILTER_BYPASS.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ardnew/usbheadset/pkg"
)

// EnvPrefix is the environment variable prefix for overrides.
const EnvPrefix = "HEADSET"

// Mic producer names.
const (
	ProducerI2S       = "i2s"
	ProducerSynthetic = "synthetic"
)

// Config is the root configuration structure.
type Config struct {
	Audio   AudioConfig   `mapstructure:"audio"`
	I2S     I2SConfig     `mapstructure:"i2s"`
	Mic     MicConfig     `mapstructure:"mic"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Log     LogConfig     `mapstructure:"log"`
	Monitor MonitorConfig `mapstructure:"monitor"`
}

// AudioConfig configures stream formats.
type AudioConfig struct {
	DefaultRate     uint32 `mapstructure:"default_rate"`
	SpeakerChannels int    `mapstructure:"speaker_channels"`
	MicChannels     int    `mapstructure:"mic_channels"`
	ResolutionBits  int    `mapstructure:"resolution_bits"`
}

// I2SConfig configures the codec transport.
type I2SConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	DMADescNum  int           `mapstructure:"dma_desc_num"`
	NarrowShift uint          `mapstructure:"narrow_shift"`
}

// MicConfig configures the capture path.
type MicConfig struct {
	Producer         string                 `mapstructure:"producer"`
	OffsetFilter     OffsetFilterConfig     `mapstructure:"offset_filter"`
	HostVolumeOffset HostVolumeOffsetConfig `mapstructure:"host_volume_offset"`
	Synthetic        SyntheticConfig        `mapstructure:"synthetic"`
}

// OffsetFilterConfig configures DC offset cancellation.
type OffsetFilterConfig struct {
	Bypass         bool `mapstructure:"bypass"`
	Shift          uint `mapstructure:"shift"`
	ResolutionBits uint `mapstructure:"resolution_bits"`
}

// HostVolumeOffsetConfig adds a fixed dB offset to host-set mic volumes.
// Some host drivers refuse a volume range above 0 dB, so the device
// advertises a lower range and shifts it internally.
type HostVolumeOffsetConfig struct {
	Enabled bool `mapstructure:"enabled"`
	DB      int  `mapstructure:"db"`
}

// SyntheticConfig configures the test tone producer.
type SyntheticConfig struct {
	ToneHz    int `mapstructure:"tone_hz"`
	Amplitude int `mapstructure:"amplitude"`
}

// BridgeConfig configures the speaker pump back-off intervals.
type BridgeConfig struct {
	EmptyBackoff time.Duration `mapstructure:"empty_backoff"`
	ShortBackoff time.Duration `mapstructure:"short_backoff"`
	IdleSleep    time.Duration `mapstructure:"idle_sleep"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// MonitorConfig configures the HTTP status monitor.
type MonitorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`

	// Profile mounts the pprof handlers under /debug/pprof.
	Profile bool `mapstructure:"pprof"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			DefaultRate:     16000,
			SpeakerChannels: 2,
			MicChannels:     2,
			ResolutionBits:  16,
		},
		I2S: I2SConfig{
			Timeout:     200 * time.Millisecond,
			DMADescNum:  2,
			NarrowShift: 14,
		},
		Mic: MicConfig{
			Producer: ProducerI2S,
			OffsetFilter: OffsetFilterConfig{
				Shift:          2,
				ResolutionBits: 24,
			},
			HostVolumeOffset: HostVolumeOffsetConfig{
				Enabled: true,
				DB:      20,
			},
			Synthetic: SyntheticConfig{
				ToneHz:    220,
				Amplitude: 1000,
			},
		},
		Bridge: BridgeConfig{
			EmptyBackoff: 10 * time.Millisecond,
			ShortBackoff: 1 * time.Millisecond,
			IdleSleep:    50 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Monitor: MonitorConfig{
			Enabled: false,
			Address: "127.0.0.1:9090",
		},
	}
}

// Load loads configuration from the YAML file at path (if any), then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			pkg.LogWarn(pkg.ComponentConfig, "config file not found, using defaults", "path", path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pkg.LogDebug(pkg.ComponentConfig, "config loaded",
		"rate", cfg.Audio.DefaultRate,
		"producer", cfg.Mic.Producer,
		"bypass", cfg.Mic.OffsetFilter.Bypass)
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("audio.default_rate", d.Audio.DefaultRate)
	v.SetDefault("audio.speaker_channels", d.Audio.SpeakerChannels)
	v.SetDefault("audio.mic_channels", d.Audio.MicChannels)
	v.SetDefault("audio.resolution_bits", d.Audio.ResolutionBits)

	v.SetDefault("i2s.timeout", d.I2S.Timeout)
	v.SetDefault("i2s.dma_desc_num", d.I2S.DMADescNum)
	v.SetDefault("i2s.narrow_shift", d.I2S.NarrowShift)

	v.SetDefault("mic.producer", d.Mic.Producer)
	v.SetDefault("mic.offset_filter.bypass", d.Mic.OffsetFilter.Bypass)
	v.SetDefault("mic.offset_filter.shift", d.Mic.OffsetFilter.Shift)
	v.SetDefault("mic.offset_filter.resolution_bits", d.Mic.OffsetFilter.ResolutionBits)
	v.SetDefault("mic.host_volume_offset.enabled", d.Mic.HostVolumeOffset.Enabled)
	v.SetDefault("mic.host_volume_offset.db", d.Mic.HostVolumeOffset.DB)
	v.SetDefault("mic.synthetic.tone_hz", d.Mic.Synthetic.ToneHz)
	v.SetDefault("mic.synthetic.amplitude", d.Mic.Synthetic.Amplitude)

	v.SetDefault("bridge.empty_backoff", d.Bridge.EmptyBackoff)
	v.SetDefault("bridge.short_backoff", d.Bridge.ShortBackoff)
	v.SetDefault("bridge.idle_sleep", d.Bridge.IdleSleep)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("monitor.enabled", d.Monitor.Enabled)
	v.SetDefault("monitor.address", d.Monitor.Address)
	v.SetDefault("monitor.pprof", d.Monitor.Profile)
}

// Validate checks the configuration for values the headset cannot run with.
func (c *Config) Validate() error {
	switch c.Audio.DefaultRate {
	case 16000, 24000, 32000, 44100:
	default:
		return fmt.Errorf("audio.default_rate %d: %w", c.Audio.DefaultRate, pkg.ErrUnsupportedRate)
	}
	if c.Audio.SpeakerChannels < 1 || c.Audio.SpeakerChannels > 2 {
		return invalid("audio.speaker_channels", c.Audio.SpeakerChannels)
	}
	if c.Audio.MicChannels < 1 || c.Audio.MicChannels > 2 {
		return invalid("audio.mic_channels", c.Audio.MicChannels)
	}
	if c.Audio.ResolutionBits != 16 {
		return invalid("audio.resolution_bits", c.Audio.ResolutionBits)
	}
	if c.I2S.Timeout <= 0 {
		return invalid("i2s.timeout", c.I2S.Timeout)
	}
	if c.I2S.DMADescNum < 2 {
		return invalid("i2s.dma_desc_num", c.I2S.DMADescNum)
	}
	if c.I2S.NarrowShift > 16 {
		return invalid("i2s.narrow_shift", c.I2S.NarrowShift)
	}
	if c.Mic.Producer != ProducerI2S && c.Mic.Producer != ProducerSynthetic {
		return invalid("mic.producer", c.Mic.Producer)
	}
	if c.Mic.OffsetFilter.Shift > 31 {
		return invalid("mic.offset_filter.shift", c.Mic.OffsetFilter.Shift)
	}
	if c.Mic.OffsetFilter.ResolutionBits < 1 || c.Mic.OffsetFilter.ResolutionBits > 32 {
		return invalid("mic.offset_filter.resolution_bits", c.Mic.OffsetFilter.ResolutionBits)
	}
	if c.Mic.HostVolumeOffset.DB < 0 || c.Mic.HostVolumeOffset.DB > 40 {
		return invalid("mic.host_volume_offset.db", c.Mic.HostVolumeOffset.DB)
	}
	if c.Mic.Synthetic.ToneHz < 1 {
		return invalid("mic.synthetic.tone_hz", c.Mic.Synthetic.ToneHz)
	}
	if c.Mic.Synthetic.Amplitude < 0 || c.Mic.Synthetic.Amplitude > 32767 {
		return invalid("mic.synthetic.amplitude", c.Mic.Synthetic.Amplitude)
	}
	if c.Bridge.EmptyBackoff <= 0 || c.Bridge.ShortBackoff <= 0 || c.Bridge.IdleSleep <= 0 {
		return fmt.Errorf("bridge back-off intervals must be positive: %w", pkg.ErrInvalidParameter)
	}
	if _, err := pkg.ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := pkg.ParseLogFormat(c.Log.Format); err != nil {
		return err
	}
	if c.Monitor.Enabled && c.Monitor.Address == "" {
		return invalid("monitor.address", c.Monitor.Address)
	}
	return nil
}

// ApplyLogging configures the pkg logger from the log section.
func (c *Config) ApplyLogging() error {
	level, err := pkg.ParseLogLevel(c.Log.Level)
	if err != nil {
		return err
	}
	format, err := pkg.ParseLogFormat(c.Log.Format)
	if err != nil {
		return err
	}
	pkg.SetLogLevel(level)
	pkg.SetLogFormat(format)
	return nil
}

func invalid(key string, value any) error {
	return fmt.Errorf("%s %v: %w", key, value, pkg.ErrInvalidParameter)
}
