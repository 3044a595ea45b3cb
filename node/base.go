package node

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/saukko/sensorfw/datatypes"
	"github.com/saukko/sensorfw/errors"
)

// Base carries the metadata negotiation state common to all nodes in the
// processing graph. Concrete node types embed a *Base and declare their
// local metadata during construction, before the node enters service.
//
// All methods are safe for concurrent use. Forwarding calls into source
// nodes are made while holding the node's own lock; the assembly step
// guarantees the forwarding links form a DAG, so lock ordering follows
// graph order and cannot cycle.
type Base struct {
	mu sync.Mutex

	description string

	dataRanges  []datatypes.DataRange
	rangeQueue  []datatypes.DataRangeRequest
	rangeSource *Base

	standbySources  []*Base
	standbySessions map[int]struct{}

	intervalBounds   *datatypes.IntervalRange
	intervalSources  []*Base
	intervalRequests map[int]int
	merger           IntervalMerger

	logger *slog.Logger
}

// New creates a node base with the given description. A nil logger falls
// back to slog.Default.
func New(description string, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{
		description:      description,
		standbySessions:  make(map[int]struct{}),
		intervalRequests: make(map[int]int),
		merger:           fastestMerge{},
		logger:           logger,
	}
}

// Description returns the human-readable description of the node.
func (b *Base) Description() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.description
}

// SetDescription sets the description. Expected to be called only during
// node construction.
func (b *Base) SetDescription(description string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.description = description
}

// IntroduceAvailableRange declares a new available data range. Locally
// declared ranges override any ranges forwarded from previous layers in
// the chain. Expected to be used only during node construction;
// introduced ranges cannot be removed.
func (b *Base) IntroduceAvailableRange(r datatypes.DataRange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dataRanges = append(b.dataRanges, r)
}

// SetRangeSource sets the node to forward range metadata requests to the
// given upstream node when no local ranges have been declared. The
// reference is non-owning; the graph assembly step manages node lifetime.
func (b *Base) SetRangeSource(src *Base) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rangeSource = src
}

// AddStandbyOverrideSource appends an upstream node to the set that
// standby override queries and requests are forwarded to. Should be
// called by every node that is not a device adaptor.
func (b *Base) AddStandbyOverrideSource(src *Base) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.standbySources = append(b.standbySources, src)
}

// AvailableRanges returns the ranges this node can operate in: the locally
// declared list when non-empty, otherwise whatever the range source
// reports. Read-only, no side effects.
func (b *Base) AvailableRanges() []datatypes.DataRange {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.dataRanges) > 0 {
		out := make([]datatypes.DataRange, len(b.dataRanges))
		copy(out, b.dataRanges)
		return out
	}
	if b.rangeSource != nil {
		return b.rangeSource.AvailableRanges()
	}
	return nil
}

// CurrentRange returns the active range request, the head of the FIFO
// queue. The second return value is false when no request is pending.
func (b *Base) CurrentRange() (datatypes.DataRangeRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.rangeQueue) == 0 {
		return datatypes.DataRangeRequest{SessionID: datatypes.SessionIDNone}, false
	}
	return b.rangeQueue[0], true
}

// RequestRange places a request for the given range into the queue. The
// range takes effect once all earlier requests have been released: the
// head of the queue holds the node's range exclusively, later requesters
// wait behind it in arrival order.
//
// A range that is not in the available list is dropped immediately and
// false is returned; callers needing confirmation re-read CurrentRange.
func (b *Base) RequestRange(sessionID int, r datatypes.DataRange) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.rangeAvailableLocked(r) {
		b.logger.Debug("dropping invalid range request",
			"node", b.description, "session_id", sessionID,
			"min", r.Min, "max", r.Max)
		return false
	}
	b.rangeQueue = append(b.rangeQueue, datatypes.DataRangeRequest{
		SessionID: sessionID,
		Range:     r,
	})
	return true
}

// ReleaseRange removes every queued range request held by the session.
// If the removed entry was the head, the next queued request becomes
// active. Releasing a session with no requests is a no-op.
func (b *Base) ReleaseRange(sessionID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.rangeQueue[:0]
	for _, req := range b.rangeQueue {
		if req.SessionID != sessionID {
			kept = append(kept, req)
		}
	}
	b.rangeQueue = kept
}

func (b *Base) rangeAvailableLocked(r datatypes.DataRange) bool {
	ranges := b.dataRanges
	if len(ranges) == 0 && b.rangeSource != nil {
		ranges = b.rangeSource.AvailableRanges()
	}
	for _, have := range ranges {
		if have.Equal(r) {
			return true
		}
	}
	return false
}

// StandbyOverride reports whether the node keeps its dataflow running
// while the device would otherwise suspend it. True when a local session
// holds the override, or when every standby source reports true. A node
// with no local override sessions and no sources reports false.
func (b *Base) StandbyOverride() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.standbySessions) > 0 {
		return true
	}
	if len(b.standbySources) == 0 {
		return false
	}
	for _, src := range b.standbySources {
		if !src.StandbyOverride() {
			return false
		}
	}
	return true
}

// SetStandbyOverrideRequest adds or removes the session's standby
// override request on this node and forwards the request to every standby
// source, then reports the post-update StandbyOverride value.
//
// Because graph branches can be shared across independent sensors,
// enabling the override for one sensor can keep only the shared part of a
// sibling sensor's chain running. That partial continuation is accepted
// behavior, not a defect.
func (b *Base) SetStandbyOverrideRequest(sessionID int, enable bool) bool {
	b.mu.Lock()
	if enable {
		b.standbySessions[sessionID] = struct{}{}
	} else {
		delete(b.standbySessions, sessionID)
	}
	sources := make([]*Base, len(b.standbySources))
	copy(sources, b.standbySources)
	b.mu.Unlock()

	for _, src := range sources {
		src.SetStandbyOverrideRequest(sessionID, enable)
	}
	return b.StandbyOverride()
}

// ValidateMetadata checks the metadata setup of the node. To pass, exactly
// one of the following must hold for each propagative property: the node
// declared local values, or it forwards to at least one source. The check
// runs once, after construction, and is a precondition for the node
// entering service; failure is a programming error in the node's assembly,
// never a runtime condition.
func (b *Base) ValidateMetadata() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	localRange := len(b.dataRanges) > 0
	if localRange == (b.rangeSource != nil) {
		return errors.WrapFatal(
			fmt.Errorf("%w: node %q must either declare ranges or set a range source",
				errors.ErrMetadataAmbiguous, b.description),
			"Base", "ValidateMetadata", "range setup check")
	}

	localInterval := b.intervalBounds != nil
	if localInterval == (len(b.intervalSources) > 0) {
		return errors.WrapFatal(
			fmt.Errorf("%w: node %q must either declare interval bounds or add interval sources",
				errors.ErrMetadataAmbiguous, b.description),
			"Base", "ValidateMetadata", "interval setup check")
	}
	return nil
}

// forwardLinks returns every upstream node reachable through one
// forwarding link, for assembly-time cycle detection.
func (b *Base) forwardLinks() []*Base {
	b.mu.Lock()
	defer b.mu.Unlock()
	links := make([]*Base, 0, 1+len(b.standbySources)+len(b.intervalSources))
	if b.rangeSource != nil {
		links = append(links, b.rangeSource)
	}
	links = append(links, b.standbySources...)
	links = append(links, b.intervalSources...)
	return links
}
