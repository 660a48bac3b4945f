package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetVerbosity(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetVerbosity(int(Info))
	})

	SetVerbosity(int(Info))
	Debugf("hidden %d", 1)
	Infof("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")

	buf.Reset()
	SetVerbosity(int(Debug))
	Debugf("now visible")
	assert.Contains(t, buf.String(), "now visible")

	buf.Reset()
	SetVerbosity(int(Error))
	Infof("quiet")
	Warnf("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		Init("info", "text")
	})

	Init("debug", "json")
	WithField("rows", 3).Debug("batch done")
	assert.Contains(t, buf.String(), `"rows":3`)
	assert.Contains(t, buf.String(), `"msg":"batch done"`)
}
