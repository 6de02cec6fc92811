package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/objectfs/rgwbridge/pkg/native"
)

// TimeUnit is the unit of the timestamps in an Attributes record.
type TimeUnit int

const (
	// Milliseconds is the default unit.
	Milliseconds TimeUnit = iota
	Seconds
)

// String returns the unit name used in configuration.
func (u TimeUnit) String() string {
	switch u {
	case Seconds:
		return "seconds"
	case Milliseconds:
		return "milliseconds"
	default:
		return fmt.Sprintf("TimeUnit(%d)", int(u))
	}
}

// perSecond is the number of units in one second.
func (u TimeUnit) perSecond() int64 {
	if u == Seconds {
		return 1
	}
	return 1000
}

// ParseTimeUnit accepts "seconds"/"s" and "milliseconds"/"ms".
func ParseTimeUnit(s string) (TimeUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ms", "millis", "milliseconds":
		return Milliseconds, nil
	case "s", "sec", "seconds":
		return Seconds, nil
	default:
		return Milliseconds, fmt.Errorf("unknown time unit %q", s)
	}
}

// Attributes is the caller-visible attribute record. Atime and Mtime are
// expressed in Unit.
type Attributes struct {
	Size  int64
	Mode  uint32
	UID   uint32
	GID   uint32
	Atime int64
	Mtime int64
	Unit  TimeUnit
}

// IsDir reports whether the directory bit (0x4000) is set.
func (a Attributes) IsDir() bool { return a.Mode&native.ModeDir != 0 }

// Perm returns the permission bits.
func (a Attributes) Perm() uint32 { return a.Mode & native.ModePerm }

// AccessTime returns Atime as a time.Time.
func (a Attributes) AccessTime() time.Time { return a.Unit.toTime(a.Atime) }

// ModifyTime returns Mtime as a time.Time.
func (a Attributes) ModifyTime() time.Time { return a.Unit.toTime(a.Mtime) }

func (u TimeUnit) toTime(v int64) time.Time {
	if u == Seconds {
		return time.Unix(v, 0)
	}
	return time.UnixMilli(v)
}

// ToRecord copies a native stat into a record, converting timestamps from
// seconds to unit.
func ToRecord(st native.Stat, unit TimeUnit) Attributes {
	scale := unit.perSecond()
	return Attributes{
		Size:  st.Size,
		Mode:  st.Mode,
		UID:   st.UID,
		GID:   st.GID,
		Atime: st.Atime * scale,
		Mtime: st.Mtime * scale,
		Unit:  unit,
	}
}

// FromRecord builds the native creation request for a record. Only
// ownership and mode are carried.
func FromRecord(a Attributes) (native.Stat, native.SetattrMask) {
	return native.Stat{
		Mode: a.Mode,
		UID:  a.UID,
		GID:  a.GID,
	}, native.SetattrUID | native.SetattrGID | native.SetattrMode
}

// entryAttributes completes the attributes of a listing entry. Listings do
// not guarantee mode bits, so the mode is synthesized from the entry flags.
func entryAttributes(st *native.Stat, flags native.LookupFlags, unit TimeUnit) Attributes {
	var a Attributes
	if st != nil {
		a = ToRecord(*st, unit)
	} else {
		a.Unit = unit
	}
	a.Mode = native.ModePerm
	if flags&native.LookupFlagDir != 0 {
		a.Mode += native.ModeDir
	}
	return a
}
