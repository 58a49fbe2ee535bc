package eventlog

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	millisWidth = 16
	seqWidth    = 20
	keyWidth    = millisWidth + seqWidth
)

// Key orders log records. Millis is the logical time of the record, Seq
// disambiguates records written in the same millisecond. The string form is
// fixed width, so byte order and numeric order agree.
type Key struct {
	Millis int64
	Seq    uint64
}

// seq is seeded from the wall clock so keys written after a restart still sort
// after same-millisecond keys from the previous run.
var seq atomic.Uint64

func init() {
	seq.Store(uint64(time.Now().UnixNano()))
}

// NewKey returns a key for logical time at.
func NewKey(at time.Time) Key {
	millis := at.UnixMilli()
	if millis < 0 {
		millis = 0
	}
	return Key{Millis: millis, Seq: seq.Add(1)}
}

func (k Key) String() string {
	return fmt.Sprintf("%0*d%0*d", millisWidth, k.Millis, seqWidth, k.Seq)
}

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool {
	if k.Millis != o.Millis {
		return k.Millis < o.Millis
	}
	return k.Seq < o.Seq
}

// Time is the logical time the key was issued for.
func (k Key) Time() time.Time {
	return time.UnixMilli(k.Millis)
}

// ParseKey reverses Key.String.
func ParseKey(s string) (Key, error) {
	if len(s) != keyWidth {
		return Key{}, fmt.Errorf("invalid log key %q: want %d digits", s, keyWidth)
	}
	millis, err := strconv.ParseInt(s[:millisWidth], 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("invalid log key %q: %w", s, err)
	}
	n, err := strconv.ParseUint(s[millisWidth:], 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("invalid log key %q: %w", s, err)
	}
	return Key{Millis: millis, Seq: n}, nil
}
