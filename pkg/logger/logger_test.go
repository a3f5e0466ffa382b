package logger_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wekeepgrowing/bursar/pkg/logger"
)

func TestEchoZapLogger_Level(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := logger.NewEchoZapLogger(zap.New(core))

	l.Debug("hidden")
	l.Infof("shown %d", 1)
	l.SetLevel(log.ERROR)
	l.Warn("hidden")
	l.Error("shown", 2)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "shown 1", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestEchoRequestLogger_MasksSignatures(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	e := echo.New()
	e.Use(logger.NewEchoRequestLogger(zap.New(core)))
	e.POST("/webhook/:gateway", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook/card", nil)
	req.Header.Set("Stripe-Signature", "t=1700000000,v1=0123456789abcdef0123456789")
	e.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("Request completed").All()
	require.Len(t, entries, 1)
	headers, ok := entries[0].ContextMap()["request.headers"].(map[string]string)
	require.True(t, ok)
	assert.NotContains(t, headers["Stripe-Signature"], "0123456789abcdef0123")
}

func TestWithEchoLogger_ErrorBody(t *testing.T) {
	e := echo.New()
	logger.WithEchoLogger(e, zap.NewNop())
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("database is on fire")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"INTERNAL"`)
	assert.NotContains(t, rec.Body.String(), "on fire")
}

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := logger.NewGormLogger(zap.New(core), gormlogger.Warn, 100*time.Millisecond, true)
	sql := func() (string, int64) { return "SELECT 1", 1 }
	ctx := context.Background()

	gl.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
	gl.Trace(ctx, time.Now(), sql, nil)
	assert.Zero(t, logs.Len())

	gl.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	gl.Trace(ctx, time.Now(), sql, errors.New("syntax error"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Slow query", entries[0].Message)
	assert.Equal(t, "Query failed", entries[1].Message)

	verbose := gl.LogMode(gormlogger.Info)
	verbose.Trace(ctx, time.Now(), sql, nil)
	assert.Equal(t, 3, logs.Len())
}

func TestNewZapLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bursar.log")

	l, err := logger.NewZapLogger(logger.Config{Level: "warn", Output: "file", FilePath: path, Service: "bursar"})
	require.NoError(t, err)
	l.Info("dropped")
	l.Warn("kept")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), `"message":"kept"`)
	assert.Contains(t, string(data), `"service":"bursar"`)

	_, err = logger.NewZapLogger(logger.Config{Output: "file"})
	assert.Error(t, err)
}
