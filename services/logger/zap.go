package logsvc

import (
	"strings"

	"go.uber.org/zap"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/user"
)

// ZapLogger is a core.Logger on top of a zap sugared logger.
// args are key/value pairs; errors and user.User values may be passed without a key.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ core.Logger = (*ZapLogger)(nil)

// NewZapLogger builds a production logger for QA and PROD, a development one otherwise.
func NewZapLogger(env string) (*ZapLogger, error) {
	var cfg zap.Config
	switch strings.ToUpper(env) {
	case "PROD", "QA":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: zl.Sugar()}, nil
}

// NewZapLoggerFrom wraps an existing zap logger (tests use zaptest/observer).
func NewZapLoggerFrom(zl *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: zl.Sugar()}
}

func (l *ZapLogger) With(args ...interface{}) *ZapLogger {
	return &ZapLogger{sugar: l.sugar.With(fields(args)...)}
}

func (l *ZapLogger) Sync() {
	_ = l.sugar.Sync()
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.sugar.Debugw(msg, fields(args)...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.sugar.Infow(msg, fields(args)...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.sugar.Warnw(msg, fields(args)...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.sugar.Errorw(msg, fields(args)...) }
func (l *ZapLogger) Fatal(msg string, args ...interface{}) { l.sugar.Fatalw(msg, fields(args)...) }

// fields turns loose errors, users and maps into zap fields; the rest stays key/value.
func fields(args []interface{}) []interface{} {
	out := make([]interface{}, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch arg := args[i].(type) {
		case error:
			out = append(out, zap.Error(arg))
		case user.User:
			out = append(out, zap.String("user_id", arg.ID), zap.String("username", arg.Username))
		case map[string]interface{}:
			for k, v := range arg {
				out = append(out, zap.Any(k, v))
			}
		case string:
			if i+1 < len(args) {
				out = append(out, zap.Any(arg, args[i+1]))
				i++
			} else {
				out = append(out, zap.String("extra", arg))
			}
		default:
			out = append(out, zap.Any("extra", arg))
		}
	}
	return out
}
