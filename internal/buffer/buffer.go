package buffer

import (
	"context"
	"errors"
	"time"

	"tidemark.app/feed/internal/model"
)

// AppendOutcome reports what an Append did with the event.
type AppendOutcome string

const (
	// OutcomeOpenedNew means no group existed for the key and a fresh one
	// was opened with this event as its first member.
	OutcomeOpenedNew AppendOutcome = "opened_new"
	// OutcomeAppended means the event joined an existing open group.
	OutcomeAppended AppendOutcome = "appended"
	// OutcomeRedirected means the head group was claimed, so the append was
	// redirected to a newly opened successor generation. The event is never
	// lost and never blocks on an in-flight finalize.
	OutcomeRedirected AppendOutcome = "redirected"
)

// AppendResult is the post-append view the caller needs for inline
// window checks.
type AppendResult struct {
	Outcome      AppendOutcome
	GroupKey     string
	EventCount   int
	FirstEventAt time.Time
}

// CloseThresholds bound the latency, staleness, and size of any single
// buffer group. A group is eligible for closing when any one is exceeded.
type CloseThresholds struct {
	IdleAfter time.Duration // since last event
	MaxAge    time.Duration // since first event
	MaxEvents int
}

var (
	// ErrGroupClaimed is the expected, non-fatal outcome of losing a claim
	// race. Callers treat it as control flow.
	ErrGroupClaimed = errors.New("buffer group already claimed")
	// ErrGroupNotFound is returned by TryClaim when the group was already
	// finalized and released by another worker.
	ErrGroupNotFound = errors.New("buffer group not found")
)

// Buffer is the shared, multi-writer store of in-flight groups. Append and
// TryClaim are atomic per key; unrelated keys never contend. The backing
// store must be reachable by every producer and sweeper process.
type Buffer interface {
	// Append adds the event to the open group for the key, opening a new
	// group or successor generation as needed.
	Append(ctx context.Context, key Key, ev model.RawEvent) (AppendResult, error)

	// PeekOpenGroups returns group keys eligible for closing under the
	// thresholds, at most limit of them.
	PeekOpenGroups(ctx context.Context, th CloseThresholds, limit int) ([]string, error)

	// ExpiredClaims returns group keys whose claim TTL lapsed, so a crashed
	// finalizer cannot strand a group forever.
	ExpiredClaims(ctx context.Context, limit int) ([]string, error)

	// TryClaim atomically transitions the group OPEN -> CLAIMED and returns
	// a consistent snapshot. Exactly one racer succeeds; the rest get
	// ErrGroupClaimed. A lapsed claim may be re-claimed.
	TryClaim(ctx context.Context, groupKey string) (*model.BufferGroup, error)

	// Release deletes the group after a successful finalize, or reverts it
	// to OPEN so a later sweep retries it.
	Release(ctx context.Context, groupKey string, finalized bool) error
}
