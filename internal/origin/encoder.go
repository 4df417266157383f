// Package origin derives a fixed-width identifier for the application
// location a permission was first registered at.
package origin

import (
	"encoding/binary"
	"math"
)

// Route identifies the call site a permission belongs to.
type Route struct {
	Area       string
	Controller string
	Action     string
}

// String concatenates the route parts in registration order.
func (r Route) String() string {
	return r.Area + r.Controller + r.Action
}

// IsZero reports whether no route part is set.
func (r Route) IsZero() bool {
	return r.Area == "" && r.Controller == "" && r.Action == ""
}

// Encode folds the UTF-8 bytes of s into a deterministic 64-bit origin.
// The bytes are zero-padded to a multiple of four and consumed as
// little-endian signed 32-bit words added into a running accumulator.
// When an addition would overflow int64, the accumulator is halved and
// the word added instead. The empty string encodes to 0, the reserved
// "outside routing scope" origin. Collisions are acceptable; the mapping
// is stable across runs for the same input.
func Encode(s string) int64 {
	raw := []byte(s)
	if rem := len(raw) % 4; rem != 0 {
		raw = append(raw, make([]byte, 4-rem)...)
	}

	var value int64
	for i := 0; i < len(raw); i += 4 {
		word := int64(int32(binary.LittleEndian.Uint32(raw[i : i+4])))
		if addWouldOverflow(value, word) {
			value = value/2 + word
			continue
		}
		value += word
	}
	return value
}

// EncodeRoute encodes the concatenated route, mapping the empty route to 0.
func EncodeRoute(r Route) int64 {
	s := r.String()
	if s == "" {
		return 0
	}
	return Encode(s)
}

func addWouldOverflow(a, b int64) bool {
	if b > 0 {
		return a > math.MaxInt64-b
	}
	return a < math.MinInt64-b
}
