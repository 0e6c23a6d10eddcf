package log

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitLoggerLevel(t *testing.T) {
	lg, props, err := InitLogger(&Config{Level: "warn"})
	require.NoError(t, err)
	require.NotNil(t, lg)
	assert.Equal(t, zapcore.WarnLevel, props.Level.Level())

	_, _, err = InitLogger(&Config{Level: "not-a-level"})
	assert.Error(t, err)
}

func TestInitLoggerRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	_, _, err := InitLogger(&Config{Level: "info", File: FileLogConfig{RootPath: dir, Filename: ""}})
	require.NoError(t, err)

	_, _, err = InitLogger(&Config{Level: "info", File: FileLogConfig{RootPath: "/", Filename: dir[1:]}})
	assert.Error(t, err)
}

func TestCtxCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := context.WithValue(context.Background(), CtxLogKey, &MLogger{Logger: zap.New(core)})
	ctx = WithFields(ctx, FieldLiveSession("ls-1"))
	ctx = WithModule(ctx, "livesession")

	Ctx(ctx).Info("opened")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ls-1", fields[FieldNameLiveSession])
	assert.Equal(t, "livesession", fields[FieldNameModule])
}

func TestCtxNilFallsBackToGlobal(t *testing.T) {
	//nolint:staticcheck
	assert.NotNil(t, Ctx(nil))
	assert.NotNil(t, Ctx(context.Background()).Logger)
}

func TestTerseErrorEncoder(t *testing.T) {
	enc := newZapEncoder(&Config{Format: "json", DisableErrorVerbose: true, DisableTimestamp: true})
	buf, err := enc.EncodeEntry(zapcore.Entry{Level: zapcore.ErrorLevel, Message: "boom"},
		[]zapcore.Field{zap.Error(errors.New("disk full"))})
	require.NoError(t, err)
	line := buf.String()
	assert.Contains(t, line, `"error":"disk full"`)
	assert.NotContains(t, line, "errorVerbose")
}

func TestBinderFallsBackToGlobal(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	named := With(FieldComponent("monitor"))
	b.SetLogger(named)
	assert.Same(t, named, b.Logger())

	b.SetLogger(nil)
	assert.NotNil(t, b.Logger())
}

func TestBinderBindComponent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var b Binder
	b.SetLogger(&MLogger{Logger: zap.New(core).With(FieldModule("livesession"))})

	bound := b.BindComponent("open-scheduler")
	assert.Same(t, bound, b.Logger())
	b.Logger().Info("tick")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "livesession", fields[FieldNameModule])
	assert.Equal(t, "open-scheduler", fields[FieldNameComponent])
}

func TestRatedGroupDropsOverBudget(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := (&MLogger{Logger: zap.New(core)}).WithRateGroup("test.rated", 0.0001, 1)

	assert.True(t, l.RatedWarn(1, "first"))
	assert.False(t, l.RatedWarn(1, "second"))
	assert.Len(t, logs.All(), 1)

	// 子 Logger 继承限流分组。
	assert.False(t, l.With(FieldComponent("x")).RatedInfo(1, "third"))
}

func TestGlobalRateLimiterDefaultsToNop(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.True(t, R().CheckCredit(1))
	}
}
