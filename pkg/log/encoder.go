package log

import (
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	formatJSON = "json"
	formatText = "text"
)

// newZapEncoder 根据 cfg.Format 构造 zap 编码器。
//
// 说明：
//   - json：使用 zapcore 的 JSON 编码器，便于日志采集；
//   - text/console/空：使用 console 编码器，字段以 tab 分隔；
//   - DisableErrorVerbose 为 true 时不输出 errorVerbose 字段。
func newZapEncoder(cfg *Config) zapcore.Encoder {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "name",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000 -07:00"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if cfg.DisableTimestamp {
		encCfg.TimeKey = ""
	}

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case formatJSON:
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	if cfg.DisableErrorVerbose {
		return &terseErrorEncoder{Encoder: enc}
	}
	return enc
}

// terseErrorEncoder 在编码前丢弃 zap.Error 产生的 errorVerbose 字段。
// cockroachdb/errors 的 verbose 输出包含完整堆栈，线上日志通常不需要。
type terseErrorEncoder struct {
	zapcore.Encoder
}

func (e *terseErrorEncoder) Clone() zapcore.Encoder {
	return &terseErrorEncoder{Encoder: e.Encoder.Clone()}
}

func (e *terseErrorEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	filtered := fields[:0:0]
	for _, f := range fields {
		if f.Type == zapcore.ErrorType {
			if err, ok := f.Interface.(error); ok {
				filtered = append(filtered, zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: err.Error()})
				continue
			}
		}
		filtered = append(filtered, f)
	}
	return e.Encoder.EncodeEntry(ent, filtered)
}
