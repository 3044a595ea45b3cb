// Package datatypes defines the value types shared by the sensor graph
// metadata layer and the session delivery layer.
package datatypes

const (
	// SessionIDNone marks the absence of a session, used by callers that
	// serialize DataRangeRequest values where no request is active.
	SessionIDNone = -1

	// IntervalUnset marks a session or node with no interval floor, in
	// milliseconds. A session with an unset interval gets every sample
	// passed through immediately.
	IntervalUnset = -1
)

// DataRange describes a permitted window of measured values with an
// optional resolution. Ranges are immutable once introduced; nodes hold
// append-only lists of them declared at construction time.
type DataRange struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Resolution float64 `json:"resolution"`
}

// Equal reports whether two ranges describe the same window at the same
// resolution. Range validation compares for equality against the declared
// list, not for containment.
func (r DataRange) Equal(other DataRange) bool {
	return r == other
}

// DataRangeRequest pairs a client session with the range it asked for.
// Requests are transient: created on request, destroyed on release or
// session teardown.
type DataRangeRequest struct {
	SessionID int       `json:"session_id"`
	Range     DataRange `json:"range"`
}

// IntervalRange bounds the sampling intervals a node can honor, in
// milliseconds inclusive at both ends.
type IntervalRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether the given interval lies within the bounds.
func (ir IntervalRange) Contains(ms int) bool {
	return ms >= ir.Min && ms <= ir.Max
}
