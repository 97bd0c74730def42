package domain

import (
	"fmt"
	"time"
)

// DefaultTimestampLayout mirrors the "02-01-2006/15:04:05" input format of
// the original configuration's formatting.timestamp.
const DefaultTimestampLayout = "02-01-2006/15:04:05"

// PointInTime is an absolute instant paired with the timezone used for
// display. Comparisons, cache keys and upstream queries always use the UTC
// instant; the zone only affects rendering.
type PointInTime struct {
	utc  time.Time
	zone *time.Location
}

// NewPointInTime normalizes t to UTC and remembers zone for display.
// A nil zone falls back to UTC.
func NewPointInTime(t time.Time, zone *time.Location) PointInTime {
	if zone == nil {
		zone = time.UTC
	}
	return PointInTime{utc: t.UTC(), zone: zone}
}

// ParsePointInTime interprets value in the named timezone using the given
// layout.
func ParsePointInTime(value, layout, zoneName string) (PointInTime, error) {
	zone, err := time.LoadLocation(zoneName)
	if err != nil {
		return PointInTime{}, fmt.Errorf("invalid timezone %q: %w", zoneName, err)
	}
	t, err := time.ParseInLocation(layout, value, zone)
	if err != nil {
		return PointInTime{}, fmt.Errorf("parsing %q with layout %q: %w", value, layout, err)
	}
	return NewPointInTime(t, zone), nil
}

// UTC returns the normalized absolute instant.
func (p PointInTime) UTC() time.Time { return p.utc }

// Unix returns the normalized instant as unix seconds.
func (p PointInTime) Unix() int64 { return p.utc.Unix() }

// Display returns the instant in its display timezone.
func (p PointInTime) Display() time.Time {
	if p.zone == nil {
		return p.utc
	}
	return p.utc.In(p.zone)
}

// ZoneName returns the display timezone name, "UTC" when unset.
func (p PointInTime) ZoneName() string {
	if p.zone == nil {
		return "UTC"
	}
	return p.zone.String()
}

// Truncate buckets the instant down to a multiple of g, preserving the
// display zone. Used for price-cache keys at a source's native granularity.
func (p PointInTime) Truncate(g time.Duration) PointInTime {
	if g <= 0 {
		return p
	}
	return PointInTime{utc: p.utc.Truncate(g), zone: p.zone}
}

func (p PointInTime) String() string {
	return p.Display().Format(time.RFC3339)
}
