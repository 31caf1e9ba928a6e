package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestNew_Levels(t *testing.T) {
	if New(false).Core().Enabled(zap.DebugLevel) {
		t.Error("production logger must not log debug")
	}

	if !New(true).Core().Enabled(zap.DebugLevel) {
		t.Error("debug logger must log debug")
	}
}
