package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Timestamp is a point in time as stored on notes and shares.
//
// Stores hand timestamps back in more than one shape, so decoding accepts an
// RFC 3339 string, a number of Unix milliseconds, or a native timestamp object
// of the form {"seconds": N, "nanoseconds": N}. Encoding always produces RFC 3339.
type Timestamp struct {
	time.Time
}

// At wraps t as a Timestamp.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// Now returns the current time as a Timestamp, truncated to milliseconds so that
// it survives a round trip through any of the accepted encodings.
func Now() Timestamp {
	return Timestamp{Time: time.Now().UTC().Truncate(time.Millisecond)}
}

// FromMillis converts Unix milliseconds. Zero yields the zero Timestamp.
func FromMillis(ms int64) Timestamp {
	if ms == 0 {
		return Timestamp{}
	}
	return Timestamp{Time: time.UnixMilli(ms).UTC()}
}

// Millis returns the Unix milliseconds, or 0 for the zero Timestamp.
func (t Timestamp) Millis() int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// OrEpoch returns the time, or the Unix epoch when unset.
func (t Timestamp) OrEpoch() time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t.Time
}

type nativeTimestamp struct {
	Seconds     *int64 `json:"seconds"`
	Nanoseconds int64  `json:"nanoseconds"`
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*t = Timestamp{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		*t = Timestamp{Time: parsed}
		return nil

	case '{':
		var native nativeTimestamp
		if err := json.Unmarshal(data, &native); err != nil {
			return fmt.Errorf("invalid timestamp object: %w", err)
		}
		if native.Seconds == nil {
			return fmt.Errorf("invalid timestamp object: missing seconds")
		}
		*t = Timestamp{Time: time.Unix(*native.Seconds, native.Nanoseconds).UTC()}
		return nil

	default:
		ms, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", data, err)
		}
		*t = FromMillis(int64(ms))
		return nil
	}
}
