package logger

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apperrors "github.com/wekeepgrowing/bursar/pkg/errors"
)

// 로그에 원문을 남기면 안 되는 헤더
var maskedHeaders = map[string]bool{
	"Authorization":      true,
	"Stripe-Signature":   true,
	"X-Bursar-Signature": true,
}

// NewEchoRequestLogger는 Echo 서버를 위한 Request Logger를 생성합니다.
// zap을 사용하여 HTTP 요청과 응답을 로깅합니다.
func NewEchoRequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	config := middleware.RequestLoggerConfig{
		// 헬스체크는 로그에서 제외
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health"
		},
		HandleError: true,

		LogLatency:   true,
		LogRemoteIP:  true,
		LogMethod:    true,
		LogURI:       true,
		LogRoutePath: true,
		LogRequestID: true,
		LogUserAgent: true,
		LogStatus:    true,
		LogError:     true,
		LogHeaders:   []string{"Content-Type", "Authorization", "Stripe-Signature", "X-Bursar-Signature"},

		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("request.remote_ip", v.RemoteIP),
				zap.String("request.method", v.Method),
				zap.String("request.uri", v.URI),
				zap.String("request.route", v.RoutePath),
				zap.String("request.user_agent", v.UserAgent),
				zap.String("request.request_id", v.RequestID),
				zap.Int("response.status", v.Status),
				zap.Duration("response.latency", v.Latency),
			}

			if len(v.Headers) > 0 {
				headers := make(map[string]string, len(v.Headers))
				for k, values := range v.Headers {
					if len(values) == 0 {
						continue
					}
					if maskedHeaders[k] {
						headers[k] = maskValue(values[0])
					} else {
						headers[k] = values[0]
					}
				}
				fields = append(fields, zap.Any("request.headers", headers))
			}

			switch {
			case v.Error != nil:
				logger.Error("Request failed", append(fields, zap.Error(v.Error))...)
			case v.Status >= 500:
				logger.Error("Server error", fields...)
			case v.Status >= 400:
				logger.Warn("Client error", fields...)
			default:
				logger.Info("Request completed", fields...)
			}
			return nil
		},
	}

	return middleware.RequestLoggerWithConfig(config)
}

// maskValue 토큰 일부만 표시합니다 (예: "Bearer xxx...xxxx")
func maskValue(val string) string {
	if len(val) > 15 {
		return val[:10] + "..." + val[len(val)-4:]
	}
	return "[MASKED]"
}

// WithEchoLogger Echo에 zap 로거와 커스텀 에러 핸들러를 설정합니다.
// 핸들러가 반환한 에러는 pkg/errors 코드에 따라 HTTP 상태로 변환됩니다.
func WithEchoLogger(e *echo.Echo, logger *zap.Logger) {
	e.Logger = NewEchoZapLogger(logger)

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		he := apperrors.ToHTTPError(err)

		if he.Code >= http.StatusInternalServerError {
			apperrors.LogError(logger, err, "HTTP error",
				zap.Int("status", he.Code),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.String("ip", c.RealIP()),
			)
		}

		if c.Response().Committed {
			return
		}

		var respErr error
		if c.Request().Method == http.MethodHead {
			respErr = c.NoContent(he.Code)
		} else {
			respErr = c.JSON(he.Code, map[string]interface{}{
				"error":   http.StatusText(he.Code),
				"message": he.Message,
				"code":    apperrors.CodeOf(err),
			})
		}
		if respErr != nil {
			logger.Error("Failed to send error response", zap.Error(respErr))
		}
	}
}

// EchoZapLogger는 echo.Logger를 zap으로 구현합니다.
// SetLevel로 지정한 레벨보다 낮은 메시지는 버립니다.
type EchoZapLogger struct {
	base   *zap.Logger
	level  log.Lvl
	prefix string
}

// NewEchoZapLogger는 INFO 레벨의 Echo 로거를 생성합니다.
func NewEchoZapLogger(logger *zap.Logger) *EchoZapLogger {
	return &EchoZapLogger{base: logger, level: log.INFO}
}

// echo 레벨 -> zap 레벨
var echoLevels = map[log.Lvl]zapcore.Level{
	log.DEBUG: zapcore.DebugLevel,
	log.INFO:  zapcore.InfoLevel,
	log.WARN:  zapcore.WarnLevel,
	log.ERROR: zapcore.ErrorLevel,
}

func (l *EchoZapLogger) named() *zap.Logger {
	if l.prefix == "" {
		return l.base
	}
	return l.base.Named(l.prefix)
}

func (l *EchoZapLogger) enabled(lvl zapcore.Level) bool {
	floor, ok := echoLevels[l.level]
	if !ok {
		// OFF
		return lvl >= zapcore.DPanicLevel
	}
	return lvl >= floor
}

func (l *EchoZapLogger) emit(lvl zapcore.Level, msg string, fields ...zap.Field) {
	if !l.enabled(lvl) {
		return
	}
	if ce := l.named().Check(lvl, msg); ce != nil {
		ce.Write(fields...)
	}
}

func (l *EchoZapLogger) print(lvl zapcore.Level, i []interface{}) {
	l.emit(lvl, fmt.Sprint(i...))
}

func (l *EchoZapLogger) printf(lvl zapcore.Level, format string, i []interface{}) {
	l.emit(lvl, fmt.Sprintf(format, i...))
}

func (l *EchoZapLogger) printj(lvl zapcore.Level, j log.JSON) {
	l.emit(lvl, "json_message", zap.Any("json", j))
}

func (l *EchoZapLogger) Output() io.Writer      { return &zapWriter{logger: l.base} }
func (l *EchoZapLogger) SetOutput(io.Writer)    {}
func (l *EchoZapLogger) Level() log.Lvl         { return l.level }
func (l *EchoZapLogger) SetLevel(v log.Lvl)     { l.level = v }
func (l *EchoZapLogger) SetHeader(string)       {}
func (l *EchoZapLogger) Prefix() string         { return l.prefix }
func (l *EchoZapLogger) SetPrefix(p string)     { l.prefix = p }
func (l *EchoZapLogger) Print(i ...interface{}) { l.print(zapcore.InfoLevel, i) }
func (l *EchoZapLogger) Printf(format string, i ...interface{}) {
	l.printf(zapcore.InfoLevel, format, i)
}
func (l *EchoZapLogger) Printj(j log.JSON)      { l.printj(zapcore.InfoLevel, j) }
func (l *EchoZapLogger) Debug(i ...interface{}) { l.print(zapcore.DebugLevel, i) }
func (l *EchoZapLogger) Debugf(format string, i ...interface{}) {
	l.printf(zapcore.DebugLevel, format, i)
}
func (l *EchoZapLogger) Debugj(j log.JSON)     { l.printj(zapcore.DebugLevel, j) }
func (l *EchoZapLogger) Info(i ...interface{}) { l.print(zapcore.InfoLevel, i) }
func (l *EchoZapLogger) Infof(format string, i ...interface{}) {
	l.printf(zapcore.InfoLevel, format, i)
}
func (l *EchoZapLogger) Infoj(j log.JSON)      { l.printj(zapcore.InfoLevel, j) }
func (l *EchoZapLogger) Warn(i ...interface{}) { l.print(zapcore.WarnLevel, i) }
func (l *EchoZapLogger) Warnf(format string, i ...interface{}) {
	l.printf(zapcore.WarnLevel, format, i)
}
func (l *EchoZapLogger) Warnj(j log.JSON)       { l.printj(zapcore.WarnLevel, j) }
func (l *EchoZapLogger) Error(i ...interface{}) { l.print(zapcore.ErrorLevel, i) }
func (l *EchoZapLogger) Errorf(format string, i ...interface{}) {
	l.printf(zapcore.ErrorLevel, format, i)
}
func (l *EchoZapLogger) Errorj(j log.JSON)      { l.printj(zapcore.ErrorLevel, j) }
func (l *EchoZapLogger) Fatal(i ...interface{}) { l.print(zapcore.FatalLevel, i) }
func (l *EchoZapLogger) Fatalf(format string, i ...interface{}) {
	l.printf(zapcore.FatalLevel, format, i)
}
func (l *EchoZapLogger) Fatalj(j log.JSON)      { l.printj(zapcore.FatalLevel, j) }
func (l *EchoZapLogger) Panic(i ...interface{}) { l.print(zapcore.PanicLevel, i) }
func (l *EchoZapLogger) Panicf(format string, i ...interface{}) {
	l.printf(zapcore.PanicLevel, format, i)
}
func (l *EchoZapLogger) Panicj(j log.JSON) { l.printj(zapcore.PanicLevel, j) }

// zapWriter는 echo가 Output()으로 쓰는 내용을 INFO로 남깁니다.
type zapWriter struct {
	logger *zap.Logger
}

func (w *zapWriter) Write(p []byte) (int, error) {
	w.logger.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
