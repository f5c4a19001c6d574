package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/fcaptcha/clickguard/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Level(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, logger.New("debug").GetLevel())
	assert.Equal(t, logrus.WarnLevel, logger.New("warn").GetLevel())
	assert.Equal(t, logrus.InfoLevel, logger.New("chatty").GetLevel())
}

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithOutput("info", &buf)

	log.WithField("page", "p1").Warn("redirect blocked")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "redirect blocked", line["msg"])
	assert.Equal(t, "warning", line["level"])
	assert.Equal(t, "p1", line["page"])
	assert.Contains(t, line, "time")
}
