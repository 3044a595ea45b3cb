package node

import (
	"github.com/saukko/sensorfw/datatypes"
)

// IntervalMerger decides the effective interval from the set of intervals
// currently requested on a node. Nodes use the default fastest-wins merge
// unless an explicit policy is installed with SetIntervalMergePolicy;
// interval selection is mergeable, unlike range selection which is
// mutually exclusive.
type IntervalMerger interface {
	// MergeIntervals returns the effective interval in milliseconds for
	// the given requested intervals, or datatypes.IntervalUnset when the
	// slice is empty.
	MergeIntervals(requests []int) int
}

// fastestMerge is the default policy: the minimum requested interval wins,
// so the fastest requester sets the pace for everyone downstream.
type fastestMerge struct{}

func (fastestMerge) MergeIntervals(requests []int) int {
	if len(requests) == 0 {
		return datatypes.IntervalUnset
	}
	min := requests[0]
	for _, ms := range requests[1:] {
		if ms < min {
			min = ms
		}
	}
	return min
}

// IntroduceAvailableInterval declares the interval bounds this node can
// honor, making it locally authoritative for interval negotiation.
// Expected to be used only during node construction.
func (b *Base) IntroduceAvailableInterval(bounds datatypes.IntervalRange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.intervalBounds = &bounds
}

// AddIntervalSource appends an upstream node that interval requests are
// delegated to when this node declares no bounds of its own.
func (b *Base) AddIntervalSource(src *Base) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.intervalSources = append(b.intervalSources, src)
}

// SetIntervalMergePolicy replaces the default fastest-wins merge. A nil
// policy restores the default.
func (b *Base) SetIntervalMergePolicy(m IntervalMerger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m == nil {
		m = fastestMerge{}
	}
	b.merger = m
}

// AvailableIntervalRange returns the interval bounds this node honors:
// locally declared bounds when present, otherwise the bounds of the first
// interval source. The second return value is false when no bounds are
// reachable.
func (b *Base) AvailableIntervalRange() (datatypes.IntervalRange, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.intervalBounds != nil {
		return *b.intervalBounds, true
	}
	for _, src := range b.intervalSources {
		if bounds, ok := src.AvailableIntervalRange(); ok {
			return bounds, true
		}
	}
	return datatypes.IntervalRange{}, false
}

// RequestInterval records the session's requested minimum time between
// samples, in milliseconds, and forwards the request to every interval
// source. A request outside the node's bounds is dropped silently and
// false is returned, matching the range request policy; a node without
// local bounds checks the bounds its sources report. A session's later
// request replaces its earlier one.
func (b *Base) RequestInterval(sessionID int, ms int) bool {
	b.mu.Lock()
	if !b.intervalWithinBoundsLocked(ms) {
		b.logger.Debug("dropping out-of-bounds interval request",
			"node", b.description, "session_id", sessionID, "interval_ms", ms)
		b.mu.Unlock()
		return false
	}
	b.intervalRequests[sessionID] = ms
	sources := make([]*Base, len(b.intervalSources))
	copy(sources, b.intervalSources)
	b.mu.Unlock()

	for _, src := range sources {
		src.RequestInterval(sessionID, ms)
	}
	return true
}

// intervalWithinBoundsLocked checks the request against the bounds this
// node honors: local bounds when declared, otherwise the first bounds an
// interval source reports. A node whose chain exposes no bounds accepts
// nothing, same as an empty range list.
func (b *Base) intervalWithinBoundsLocked(ms int) bool {
	if b.intervalBounds != nil {
		return b.intervalBounds.Contains(ms)
	}
	for _, src := range b.intervalSources {
		if bounds, ok := src.AvailableIntervalRange(); ok {
			return bounds.Contains(ms)
		}
	}
	return false
}

// ReleaseInterval removes the session's interval request from this node
// and its interval sources. Releasing a session with no request is a
// no-op.
func (b *Base) ReleaseInterval(sessionID int) {
	b.mu.Lock()
	delete(b.intervalRequests, sessionID)
	sources := make([]*Base, len(b.intervalSources))
	copy(sources, b.intervalSources)
	b.mu.Unlock()

	for _, src := range sources {
		src.ReleaseInterval(sessionID)
	}
}

// EvaluateInterval returns the effective interval for the node: the merge
// of every current session request on this node and the evaluated interval
// of each source, or datatypes.IntervalUnset when nobody is asking.
func (b *Base) EvaluateInterval() int {
	b.mu.Lock()
	requests := make([]int, 0, len(b.intervalRequests)+len(b.intervalSources))
	for _, ms := range b.intervalRequests {
		requests = append(requests, ms)
	}
	sources := make([]*Base, len(b.intervalSources))
	copy(sources, b.intervalSources)
	merger := b.merger
	b.mu.Unlock()

	for _, src := range sources {
		if ms := src.EvaluateInterval(); ms != datatypes.IntervalUnset {
			requests = append(requests, ms)
		}
	}
	return merger.MergeIntervals(requests)
}
