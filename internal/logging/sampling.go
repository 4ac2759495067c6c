package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore samples each level listed in cfg.Levels independently.
// Error and above, and levels without a rate, are written unsampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled || len(cfg.Levels) == 0 {
		return core
	}

	sampled := func(l zapcore.Level) bool {
		_, ok := cfg.Levels[l]
		return ok && l < zapcore.ErrorLevel
	}

	cores := []zapcore.Core{
		&levelCore{Core: core, accept: func(l zapcore.Level) bool { return !sampled(l) }},
	}
	for level, rate := range cfg.Levels {
		if !sampled(level) {
			continue
		}
		only := level
		cores = append(cores, zapcore.NewSamplerWithOptions(
			&levelCore{Core: core, accept: func(l zapcore.Level) bool { return l == only }},
			cfg.Tick.Duration(),
			rate.Initial,
			rate.Thereafter,
		))
	}
	return zapcore.NewTee(cores...)
}

// levelCore passes through only the levels accept allows.
type levelCore struct {
	zapcore.Core
	accept func(zapcore.Level) bool
}

func (c *levelCore) Enabled(l zapcore.Level) bool {
	return c.accept(l) && c.Core.Enabled(l)
}

func (c *levelCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.accept(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelCore{Core: c.Core.With(fields), accept: c.accept}
}
