package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(prefix string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(prefix)
	l.SetWriter(&buf)
	return l, &buf
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"Error":   ERROR,
		"bogus":   INFO,
		"":        INFO,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newTestLogger("imu")
	l.Debug("hidden")
	assert.Empty(t, buf.String())

	l.SetLevel(DEBUG)
	l.Debugf("gyro %d", 3)
	assert.Contains(t, buf.String(), "[DEBUG] imu: gyro 3")

	buf.Reset()
	l.SetLevel(ERROR)
	l.Warn("dropped")
	l.Error("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestFieldsAreSorted(t *testing.T) {
	l, buf := newTestLogger("mixer")
	l.WithFields(Fields{"motors": 4, "servos": 0, "mode": "QuadX"}).Info("preset loaded")

	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasSuffix(line, "preset loaded {mode=QuadX, motors=4, servos=0}"), line)
}

func TestEntryChainingAndError(t *testing.T) {
	l, buf := newTestLogger("sensors")
	l.WithError(errors.New("nack")).WithField("addr", "0x6a").Warnf("read failed on %s", "gyro")

	out := buf.String()
	assert.Contains(t, out, "[WARN ] sensors: read failed on gyro")
	assert.Contains(t, out, "addr=0x6a")
	assert.Contains(t, out, "error=nack")
}

func TestNamedChild(t *testing.T) {
	l, buf := newTestLogger("wingfc")
	child := l.Named("flight")
	child.Info("armed")
	assert.Contains(t, buf.String(), "wingfc.flight: armed")
}
