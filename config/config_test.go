package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Grbl.Port)
	assert.Equal(t, 115200, cfg.Grbl.BaudRate)
	assert.Equal(t, 200*time.Millisecond, cfg.Grbl.PollInterval)
	assert.Equal(t, "$132", cfg.Grbl.SettingsLastKey)
	assert.Equal(t, 300, cfg.Terminal.History)
	assert.Equal(t, 25, cfg.GCode.ArcSteps)
	assert.Equal(t, 3, cfg.Job.Lookahead)
	assert.Equal(t, ":9091", cfg.Server.Addr)

	link := cfg.Grbl.Link()
	assert.Equal(t, 128, link.RxBufferSize)
	assert.Equal(t, 2, link.BufferMargin)
	assert.Equal(t, 2*time.Millisecond, link.FlowPoll)

	opt := cfg.GCode.Options()
	assert.Equal(t, 1000.0, opt.DefaultFeed)
	assert.Equal(t, 0.001, opt.ArcTolerance)

	job := cfg.Job.Options()
	assert.Equal(t, 3, job.TrimDecimals)
	assert.Equal(t, 1, job.Repeat)
}

func TestLoad_FileAndEnv(t *testing.T) {
	name := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(name, []byte(`
grbl:
  port: /dev/ttyACM0
  poll_interval: 100ms
gcode:
  arc_steps: 50
`), 0o644))
	t.Setenv("LASERCNC_GRBL_BAUD_RATE", "9600")

	cfg, err := Load(viper.New(), name)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", cfg.Grbl.Port)
	assert.Equal(t, 100*time.Millisecond, cfg.Grbl.PollInterval)
	assert.Equal(t, 9600, cfg.Grbl.BaudRate)
	assert.Equal(t, 50, cfg.GCode.ArcSteps)
	assert.Equal(t, 128, cfg.Grbl.RxBufferSize)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	cfg.Grbl.BufferMargin = 200
	cfg.GCode.ArcSteps = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grbl.buffer_margin")
	assert.Contains(t, err.Error(), "gcode.arc_steps")
}
