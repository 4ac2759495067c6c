package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug. Transcript line handling logs at this level.
const TraceLevel = zapcore.Level(-2)

// ParseLevel reads a level name from the config document. It accepts the
// zap names plus "trace" and "warning", in any case.
func ParseLevel(name string) (zapcore.Level, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "trace":
		return TraceLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	default:
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(n)); err != nil {
			return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
		}
		return l, nil
	}
}
