package service

import (
	"context"
	"errors"
	"fmt"

	"tidemark.app/feed/internal/model"
	"tidemark.app/feed/internal/store"
)

// Capability names a grant a principal may hold within a container.
type Capability string

const (
	CapabilityFeedRead          Capability = "feed.read"
	CapabilityFeedReadDeletions Capability = "feed.read_deletions"
)

// CapabilityChecker answers whether a principal holds a capability in a
// container.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, principalID, containerID int64, capability Capability) (bool, error)
}

// AccessEvaluator applies feed visibility rules on top of raw
// capabilities. Any resolution failure reads as denial.
type AccessEvaluator struct {
	checker CapabilityChecker
}

func NewAccessEvaluator(checker CapabilityChecker) *AccessEvaluator {
	return &AccessEvaluator{checker: checker}
}

// CanViewFeed gates access to a container's feed and heatmap.
func (e *AccessEvaluator) CanViewFeed(ctx context.Context, principalID, containerID int64) (bool, error) {
	return e.checker.HasCapability(ctx, principalID, containerID, CapabilityFeedRead)
}

// Visibility is a viewer's resolved access within one container. It is
// computed once per request and applied per item.
type Visibility struct {
	CanRead          bool
	CanReadDeletions bool
}

// CanSee reports whether one activity is visible under this visibility.
// Deletion activities carry an extra capability requirement on top of
// feed read.
func (v Visibility) CanSee(activity *model.Activity) bool {
	if !v.CanRead {
		return false
	}
	if activity.Verb == model.VerbDeleted {
		return v.CanReadDeletions
	}
	return true
}

// FeedVisibility resolves the viewer's visibility for a container. Any
// resolution failure yields zero visibility.
func (e *AccessEvaluator) FeedVisibility(ctx context.Context, principalID, containerID int64) (Visibility, error) {
	canRead, err := e.checker.HasCapability(ctx, principalID, containerID, CapabilityFeedRead)
	if err != nil || !canRead {
		return Visibility{}, err
	}

	canReadDeletions, err := e.checker.HasCapability(ctx, principalID, containerID, CapabilityFeedReadDeletions)
	if err != nil {
		return Visibility{}, err
	}

	return Visibility{CanRead: true, CanReadDeletions: canReadDeletions}, nil
}

// storeCapabilityChecker resolves capabilities from container memberships.
// A missing membership is an ordinary denial, not an error.
type storeCapabilityChecker struct {
	memberships store.MembershipStore
}

func NewStoreCapabilityChecker(memberships store.MembershipStore) CapabilityChecker {
	return &storeCapabilityChecker{memberships: memberships}
}

func (c *storeCapabilityChecker) HasCapability(ctx context.Context, principalID, containerID int64, capability Capability) (bool, error) {
	capabilities, err := c.memberships.GetCapabilities(ctx, principalID, containerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("resolving capabilities: %w", err)
	}

	for _, granted := range capabilities {
		if Capability(granted) == capability {
			return true, nil
		}
	}
	return false, nil
}
