// File: pkg/logger/zap.go
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 로거 설정
type Config struct {
	// Level 로그 레벨 (debug, info, warn, error). 알 수 없는 값은 info
	Level string `yaml:"level"`
	// Format json 또는 console
	Format string `yaml:"format"`
	// Output stdout, stderr 또는 file
	Output string `yaml:"output"`
	// FilePath Output이 file일 때 추가 기록할 파일
	FilePath string `yaml:"file_path"`
	// Development 컬러 레벨과 호출자 정보를 붙입니다
	Development bool `yaml:"development"`
	// Service 모든 로그에 붙는 서비스 이름
	Service string `yaml:"-"`
}

// NewZapLogger 설정에 맞는 zap 로거를 생성합니다.
// 에러 이상 레벨은 스택을 함께 기록합니다.
func NewZapLogger(config Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	sink, err := openSink(config)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(newEncoder(config), sink, zap.NewAtomicLevelAt(level))
	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if config.Development {
		opts = append(opts, zap.AddCaller(), zap.Development())
	}
	if config.Service != "" {
		opts = append(opts, zap.Fields(zap.String("service", config.Service)))
	}

	return zap.New(core, opts...), nil
}

// newEncoder는 운영에서는 ECS 스타일 키를, 개발에서는 읽기 쉬운 형식을 씁니다.
func newEncoder(config Config) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "@timestamp"
	ec.LevelKey = "log.level"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	if config.Development {
		ec = zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if config.Format == "console" {
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func openSink(config Config) (zapcore.WriteSyncer, error) {
	switch config.Output {
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	case "file":
		if config.FilePath == "" {
			return nil, fmt.Errorf("log output is file but file_path is empty")
		}
		f, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return zapcore.Lock(f), nil
	default:
		return zapcore.Lock(os.Stdout), nil
	}
}
