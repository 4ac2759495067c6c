package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration written as text ("2s", "250ms") in the
// config document and in environment overrides.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText writes the value back in the form UnmarshalText reads, so
// JSON and YAML output round-trips.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d Duration) String() string {
	return d.Duration().String()
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
