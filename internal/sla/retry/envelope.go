// Package retry decides what happens to a message after a processing
// failure: schedule another attempt under the tenant's redo policy, or
// give up and dead-letter it.
package retry

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Reserved envelope keys. Everything else in the wire object belongs
// to the caller's payload and is carried through untouched.
const (
	keyID           = "id"
	keyAdminID      = "adminId"
	keyRedo         = "redo"
	keyRedoNum      = "redoNum"
	keyRedoTimes    = "redoTimes"
	keyRedoInterval = "redoInterval"
	keyRedoTime     = "redoTime"
	keyTime         = "time"
	keyError        = "error"
	keySource       = "source"
)

// Envelope wraps one queued message with its retry bookkeeping. The
// wire form is flat: payload fields at the top level with the reserved
// keys mixed in, matching what tenants already produce and consume.
type Envelope struct {
	ID            string
	AdminID       string
	Redo          bool
	RedoNum       int
	RedoTimes     int
	RedoIntervals []float64 // minutes between attempts, indexed by attempt
	RedoTime      []int64   // unix millis of each failure, newest last
	Time          int64     // unix millis when the message was first accepted
	Error         string
	Source        string
	Payload       map[string]interface{}
}

// NewEnvelope wraps an accepted payload. The adminId is lifted out of
// the payload when present; messages without one can never be retried.
func NewEnvelope(payload map[string]interface{}, acceptedAt int64) *Envelope {
	e := &Envelope{
		ID:      uuid.New().String(),
		Time:    acceptedAt,
		Payload: map[string]interface{}{},
	}
	for k, v := range payload {
		if k == keyAdminID {
			if s, ok := v.(string); ok {
				e.AdminID = s
			}
			continue
		}
		e.Payload[k] = v
	}
	return e
}

// MarshalJSON flattens the envelope: payload fields first, reserved
// keys on top. Reserved keys always win over payload collisions.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Payload)+10)
	for k, v := range e.Payload {
		out[k] = v
	}
	out[keyID] = e.ID
	if e.AdminID != "" {
		out[keyAdminID] = e.AdminID
	}
	out[keyTime] = e.Time
	if e.Redo {
		out[keyRedo] = true
		out[keyRedoNum] = e.RedoNum
		out[keyRedoTimes] = e.RedoTimes
		out[keyRedoTime] = e.RedoTime
		intervals := make([]string, len(e.RedoIntervals))
		for i, m := range e.RedoIntervals {
			intervals[i] = strconv.FormatFloat(m, 'f', -1, 64)
		}
		out[keyRedoInterval] = intervals
	}
	if e.Error != "" {
		out[keyError] = e.Error
	}
	if e.Source != "" {
		out[keySource] = e.Source
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the flat wire object back into reserved fields
// and payload.
func (e *Envelope) UnmarshalJSON(raw []byte) error {
	var flat map[string]interface{}
	if err := json.Unmarshal(raw, &flat); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	e.Payload = map[string]interface{}{}
	for k, v := range flat {
		switch k {
		case keyID:
			e.ID, _ = v.(string)
		case keyAdminID:
			e.AdminID, _ = v.(string)
		case keyRedo:
			e.Redo, _ = v.(bool)
		case keyRedoNum:
			e.RedoNum = asInt(v)
		case keyRedoTimes:
			e.RedoTimes = asInt(v)
		case keyRedoTime:
			e.RedoTime = decodeTimestamps(v)
		case keyTime:
			e.Time = asInt64(v)
		case keyError:
			e.Error, _ = v.(string)
		case keySource:
			e.Source, _ = v.(string)
		case keyRedoInterval:
			e.RedoIntervals = decodeIntervals(v)
		default:
			e.Payload[k] = v
		}
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// Encode returns the wire string pushed onto Redis lists.
func (e *Envelope) Encode() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(raw), nil
}

// Decode parses a wire string from a Redis list.
func Decode(raw string) (*Envelope, error) {
	e := &Envelope{}
	if err := json.Unmarshal([]byte(raw), e); err != nil {
		return nil, err
	}
	return e, nil
}

// NextAttemptDue reports when the message becomes eligible for its
// next attempt: the latest failure time plus the interval assigned to
// the attempt just recorded. ok=false when the message was never
// scheduled for retry.
func (e *Envelope) NextAttemptDue() (int64, bool) {
	if !e.Redo || len(e.RedoTime) == 0 || len(e.RedoIntervals) == 0 {
		return 0, false
	}
	idx := e.RedoNum - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(e.RedoIntervals) {
		idx = len(e.RedoIntervals) - 1
	}
	last := e.RedoTime[len(e.RedoTime)-1]
	return last + int64(e.RedoIntervals[idx]*60_000), true
}

func decodeTimestamps(v interface{}) []int64 {
	items, ok := v.([]interface{})
	if !ok {
		// Older entries carried a single timestamp.
		if ts := asInt64(v); ts != 0 {
			return []int64{ts}
		}
		return nil
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		if ts := asInt64(item); ts != 0 {
			out = append(out, ts)
		}
	}
	return out
}

func decodeIntervals(v interface{}) []float64 {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		switch n := item.(type) {
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				out = append(out, f)
			}
		case float64:
			out = append(out, n)
		}
	}
	return out
}

func asInt(v interface{}) int {
	return int(asInt64(v))
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}
