package scenario

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trading-ecosystem/chaos-coordinator/pkg/cerrors"
)

// Duration is a scenario-document duration. The document grammar is an
// integer count followed by a single unit: ms, s, m or h.
type Duration time.Duration

// D unwraps to a time.Duration
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string {
	v := time.Duration(d)
	switch {
	case v == 0:
		return "0s"
	case v%time.Hour == 0:
		return fmt.Sprintf("%dh", v/time.Hour)
	case v%time.Minute == 0:
		return fmt.Sprintf("%dm", v/time.Minute)
	case v%time.Second == 0:
		return fmt.Sprintf("%ds", v/time.Second)
	}
	return fmt.Sprintf("%dms", v/time.Millisecond)
}

// UnmarshalYAML parses the strict document grammar
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := parseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the canonical document form
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

var durationUnits = []struct {
	suffix string
	unit   time.Duration
}{
	{"ms", time.Millisecond},
	{"s", time.Second},
	{"m", time.Minute},
	{"h", time.Hour},
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	for _, u := range durationUnits {
		if !strings.HasSuffix(raw, u.suffix) {
			continue
		}
		digits := strings.TrimSuffix(raw, u.suffix)
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil || n < 0 {
			continue
		}
		return time.Duration(n) * u.unit, nil
	}
	return 0, cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Reason: fmt.Sprintf("invalid duration '%s', expected <integer><ms|s|m|h>", raw)}
}
