// Package timerange normalizes user-supplied time boundaries and enforces
// per-datasource range limits. Time strings arrive in four shapes: "now",
// relative offsets like "-1h", Unix epoch seconds, and ISO-8601 timestamps.
package timerange

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/overwatch-obs/overwatch-mcp/internal/errors"
)

// Kind selects the active TimeSpec variant.
type Kind int

const (
	// KindNow is the current instant at resolution time.
	KindNow Kind = iota
	// KindRelative is a fixed offset before now.
	KindRelative
	// KindAbsolute is a fixed epoch instant.
	KindAbsolute
)

// TimeSpec is a normalized time boundary: now, a relative offset before
// now, or an absolute instant. Exactly one variant is active.
type TimeSpec struct {
	kind   Kind
	offset time.Duration // negative or zero, KindRelative only
	epoch  float64       // epoch seconds, KindAbsolute only
	raw    string
}

// Kind returns the active variant.
func (t TimeSpec) Kind() Kind { return t.kind }

// IsRelative reports whether the spec resolves against "now".
func (t TimeSpec) IsRelative() bool { return t.kind != KindAbsolute }

// Raw returns the original input text.
func (t TimeSpec) Raw() string { return t.raw }

// Resolve converts the spec to an absolute instant relative to now.
func (t TimeSpec) Resolve(now time.Time) time.Time {
	switch t.kind {
	case KindNow:
		return now
	case KindRelative:
		return now.Add(t.offset)
	default:
		sec := int64(t.epoch)
		nsec := int64((t.epoch - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec)
	}
}

// EpochSeconds resolves the spec to Unix epoch seconds.
func (t TimeSpec) EpochSeconds(now time.Time) float64 {
	if t.kind == KindAbsolute {
		return t.epoch
	}
	resolved := t.Resolve(now)
	return float64(resolved.UnixNano()) / float64(time.Second)
}

// Options controls backend-specific parse variance.
type Options struct {
	// AllowEpoch accepts bare Unix epoch numbers (Prometheus). It is
	// tried before ISO-8601 so that "1706356800" parses as an epoch,
	// not a malformed date.
	AllowEpoch bool
}

var relativePattern = regexp.MustCompile(`^-(\d+)([mhd])$`)

// isoLayouts mirrors the formats datetime.fromisoformat accepts; the
// trailing "Z" is normalized to an explicit UTC offset first.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse converts a time string to a TimeSpec. Unrecognized input fails
// with INVALID_QUERY.
func Parse(text string, opts Options) (TimeSpec, error) {
	if text == "now" {
		return TimeSpec{kind: KindNow, raw: text}, nil
	}

	if m := relativePattern.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return TimeSpec{}, errors.Newf(errors.CodeInvalidQuery, "invalid time format: %s", text)
		}
		var unit time.Duration
		switch m[2] {
		case "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		case "d":
			unit = 24 * time.Hour
		}
		return TimeSpec{kind: KindRelative, offset: -time.Duration(n) * unit, raw: text}, nil
	}

	if opts.AllowEpoch {
		if epoch, err := strconv.ParseFloat(text, 64); err == nil {
			return TimeSpec{kind: KindAbsolute, epoch: epoch, raw: text}, nil
		}
	}

	normalized := text
	if strings.HasSuffix(normalized, "Z") {
		normalized = strings.TrimSuffix(normalized, "Z") + "+00:00"
	}
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, normalized); err == nil {
			return TimeSpec{
				kind:  KindAbsolute,
				epoch: float64(ts.UnixNano()) / float64(time.Second),
				raw:   text,
			}, nil
		}
	}

	return TimeSpec{}, errors.Newf(errors.CodeInvalidQuery, "invalid time format: %s", text).
		WithDetails(map[string]interface{}{"value": text})
}

// ValidatedRange is a parsed and limit-checked (from, to) pair. The
// resolved instants are fixed at validation time; a later backend call
// sees a marginally stale "now", which is accepted.
type ValidatedRange struct {
	From     TimeSpec
	To       TimeSpec
	FromTime time.Time
	ToTime   time.Time
}

// SpanHours returns the resolved range width in hours.
func (r *ValidatedRange) SpanHours() float64 {
	return r.ToTime.Sub(r.FromTime).Hours()
}

// Validate parses both bounds and enforces ordering and the maximum span.
// The tolerance absorbs clock drift between constructing a relative bound
// and validating it; pass zero for strict enforcement.
func Validate(fromText, toText string, maxHours int, tolerance time.Duration, opts Options) (*ValidatedRange, error) {
	from, err := Parse(fromText, opts)
	if err != nil {
		return nil, errors.Newf(errors.CodeInvalidQuery, "invalid from_time format: %s", fromText).
			WithDetails(map[string]interface{}{"error": err.Error()})
	}
	to, err := Parse(toText, opts)
	if err != nil {
		return nil, errors.Newf(errors.CodeInvalidQuery, "invalid to_time format: %s", toText).
			WithDetails(map[string]interface{}{"error": err.Error()})
	}

	now := time.Now()
	fromTime := from.Resolve(now)
	toTime := to.Resolve(now)

	if !fromTime.Before(toTime) {
		return nil, errors.New(errors.CodeInvalidQuery, "from_time must be before to_time").
			WithDetails(map[string]interface{}{"from_time": fromText, "to_time": toText})
	}

	span := toTime.Sub(fromTime)
	limit := time.Duration(maxHours)*time.Hour + tolerance
	if span > limit {
		requested := span.Hours()
		return nil, errors.Newf(errors.CodeTimeRangeExceeded,
			"requested time range (%.1fh) exceeds maximum allowed (%dh)", requested, maxHours).
			WithDetails(map[string]interface{}{
				"requested_hours": requested,
				"max_hours":       maxHours,
			})
	}

	return &ValidatedRange{From: from, To: to, FromTime: fromTime, ToTime: toTime}, nil
}

// GraylogTolerance absorbs floating-point and clock drift for Graylog
// range validation (0.01h). Prometheus applies no tolerance.
const GraylogTolerance = 36 * time.Second
