package database

import (
	"math"
	"time"

	"cloud.google.com/go/civil"
)

// EpochOffset is the number of seconds between the Unix epoch and the store's
// reference date, 2001-01-01T00:00:00Z.
const EpochOffset = 978307200

// Boundary picks which instant of a calendar day ToEpoch returns.
type Boundary int

const (
	BoundaryStart Boundary = iota
	BoundaryEnd
)

// Mapper converts between store timestamps and calendar dates in one location.
type Mapper struct {
	loc *time.Location
}

// NewMapper returns a Mapper for loc; nil means local time.
func NewMapper(loc *time.Location) Mapper {
	if loc == nil {
		loc = time.Local
	}
	return Mapper{loc: loc}
}

// Location reports the zone dates are resolved in.
func (m Mapper) Location() *time.Location {
	if m.loc == nil {
		return time.Local
	}
	return m.loc
}

// Time converts a store timestamp to an instant.
func (m Mapper) Time(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec)+EpochOffset, int64(math.Round(frac*1e9))).In(m.Location())
}

// ToDate converts a store timestamp to the calendar date it falls on.
func (m Mapper) ToDate(ts float64) civil.Date {
	return civil.DateOf(m.Time(ts))
}

// ToEpoch returns the store timestamp of the first or last instant of d.
func (m Mapper) ToEpoch(d civil.Date, b Boundary) float64 {
	t := d.In(m.Location())
	if b == BoundaryEnd {
		t = t.AddDate(0, 0, 1).Add(-time.Microsecond)
	}
	return float64(t.Unix()-EpochOffset) + float64(t.Nanosecond())/1e9
}

// Today returns the current date in the mapper's location.
func (m Mapper) Today() civil.Date {
	return civil.DateOf(time.Now().In(m.Location()))
}
