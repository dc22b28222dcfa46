package kernel

import (
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Time is simulated time in femtoseconds.
type Time uint64

const (
	FS Time = 1
	PS      = 1000 * FS
	NS      = 1000 * PS
	US      = 1000 * NS
	MS      = 1000 * US
	S       = 1000 * MS
)

func (t Time) Seconds() float64 { return float64(t) / float64(S) }

func (t Time) String() string {
	if t == 0 {
		return "0 s"
	}
	return humanize.SIWithDigits(t.Seconds(), 3, "s")
}

// ParseTime parses durations such as "10ns", "2.5 us" or "1s". A bare
// number is taken as nanoseconds.
func ParseTime(s string) (Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty time")
	}
	if strings.HasSuffix(s, "us") {
		s = strings.TrimSuffix(s, "us") + "µs"
	}
	v, unit, err := humanize.ParseSI(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse time %q", s)
	}
	switch unit {
	case "s":
	case "":
		if strings.ContainsAny(s[len(s)-1:], "0123456789.") {
			v *= 1e-9
			break
		}
		return 0, errors.Errorf("parse time %q: unknown unit", s)
	default:
		return 0, errors.Errorf("parse time %q: unit %q is not seconds", s, unit)
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Errorf("parse time %q: out of range", s)
	}
	return Time(math.Round(v * float64(S))), nil
}
