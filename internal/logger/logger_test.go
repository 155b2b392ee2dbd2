package logger

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"

	"github.com/scan-io-git/warden/internal/config"
)

func TestDetermineLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		cfgLevel string
		want     hclog.Level
	}{
		{name: "default", want: hclog.Info},
		{name: "config level", cfgLevel: "debug", want: hclog.Debug},
		{name: "env wins over config", env: "error", cfgLevel: "debug", want: hclog.Error},
		{name: "warning alias", cfgLevel: "warning", want: hclog.Warn},
		{name: "unknown falls back to info", cfgLevel: "loud", want: hclog.Info},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WARDEN_LOG_LEVEL", tt.env)
			cfg := &config.Config{Logger: config.Logger{Level: tt.cfgLevel}}
			assert.Equal(t, tt.want, determineLogLevel(cfg))
		})
	}
}

func TestNewLoggerNilConfig(t *testing.T) {
	t.Setenv("WARDEN_LOG_LEVEL", "")
	l := NewLogger(nil, "test")
	assert.Equal(t, "test", l.Name())
	assert.True(t, l.IsInfo())
}
