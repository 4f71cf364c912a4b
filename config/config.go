// Package config loads the settings shared by the serial link, the G-code
// interpreter and the server. A Config is built once at startup and passed
// down by value.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mastercactapus/lasergrbl/gcode"
	"github.com/mastercactapus/lasergrbl/machine"
	"github.com/mastercactapus/lasergrbl/machine/grbl"
)

// EnvPrefix is prepended to environment overrides, e.g. LASERCNC_GRBL_PORT.
const EnvPrefix = "LASERCNC"

type Config struct {
	Grbl     GrblConfig     `mapstructure:"grbl"`
	Terminal TerminalConfig `mapstructure:"terminal"`
	GCode    GCodeConfig    `mapstructure:"gcode"`
	Job      JobConfig      `mapstructure:"job"`
	Server   ServerConfig   `mapstructure:"server"`
}

type GrblConfig struct {
	Port            string        `mapstructure:"port"`
	BaudRate        int           `mapstructure:"baud_rate"`
	RxBufferSize    int           `mapstructure:"rx_buffer_size"`
	BufferMargin    int           `mapstructure:"buffer_margin"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	WakeDelay       time.Duration `mapstructure:"wake_delay"`
	FlowPoll        time.Duration `mapstructure:"flow_poll"`
	SettingsTimeout time.Duration `mapstructure:"settings_timeout"`
	SettingsLastKey string        `mapstructure:"settings_last_key"`
}

type TerminalConfig struct {
	History int `mapstructure:"history"`
}

type GCodeConfig struct {
	DefaultFeed  float64 `mapstructure:"default_feed"`
	ArcSteps     int     `mapstructure:"arc_steps"`
	ArcTolerance float64 `mapstructure:"arc_tolerance"`
}

type JobConfig struct {
	Lookahead    int `mapstructure:"lookahead"`
	TrimDecimals int `mapstructure:"trim_decimals"`
	Repeat       int `mapstructure:"repeat"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	DataDir         string        `mapstructure:"data_dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("grbl.port", "/dev/ttyUSB0")
	v.SetDefault("grbl.baud_rate", 115200)
	v.SetDefault("grbl.rx_buffer_size", 128)
	v.SetDefault("grbl.buffer_margin", 2)
	v.SetDefault("grbl.poll_interval", "200ms")
	v.SetDefault("grbl.wake_delay", "500ms")
	v.SetDefault("grbl.flow_poll", "2ms")
	v.SetDefault("grbl.settings_timeout", "2s")
	v.SetDefault("grbl.settings_last_key", "$132")

	v.SetDefault("terminal.history", 300)

	v.SetDefault("gcode.default_feed", 1000)
	v.SetDefault("gcode.arc_steps", 25)
	v.SetDefault("gcode.arc_tolerance", 0.001)

	v.SetDefault("job.lookahead", 3)
	v.SetDefault("job.trim_decimals", 3)
	v.SetDefault("job.repeat", 1)

	v.SetDefault("server.addr", ":9091")
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.shutdown_timeout", "5s")
}

// Load reads the YAML file at path, if any, on top of the defaults.
// Environment variables override both.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would make the link or interpreter misbehave.
func (c *Config) Validate() error {
	var errs []error
	if c.Grbl.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("grbl.baud_rate must be positive, got %d", c.Grbl.BaudRate))
	}
	if c.Grbl.BufferMargin < 0 || c.Grbl.BufferMargin >= c.Grbl.RxBufferSize {
		errs = append(errs, fmt.Errorf("grbl.buffer_margin must be in [0, %d), got %d", c.Grbl.RxBufferSize, c.Grbl.BufferMargin))
	}
	if c.Grbl.PollInterval <= 0 {
		errs = append(errs, errors.New("grbl.poll_interval must be positive"))
	}
	if c.GCode.ArcSteps <= 0 {
		errs = append(errs, fmt.Errorf("gcode.arc_steps must be positive, got %d", c.GCode.ArcSteps))
	}
	if c.Job.Lookahead < 0 {
		errs = append(errs, fmt.Errorf("job.lookahead must not be negative, got %d", c.Job.Lookahead))
	}
	return errors.Join(errs...)
}

// Link returns the serial link settings.
func (c GrblConfig) Link() grbl.Config {
	return grbl.Config{
		RxBufferSize:    c.RxBufferSize,
		BufferMargin:    c.BufferMargin,
		PollInterval:    c.PollInterval,
		WakeDelay:       c.WakeDelay,
		FlowPoll:        c.FlowPoll,
		SettingsTimeout: c.SettingsTimeout,
		SettingsLastKey: c.SettingsLastKey,
	}
}

func (c GCodeConfig) Options() gcode.Options {
	return gcode.Options{
		DefaultFeed:  c.DefaultFeed,
		ArcSteps:     c.ArcSteps,
		ArcTolerance: c.ArcTolerance,
	}
}

func (c JobConfig) Options() machine.JobOptions {
	return machine.JobOptions{
		Lookahead:    c.Lookahead,
		TrimDecimals: c.TrimDecimals,
		Repeat:       c.Repeat,
	}
}
