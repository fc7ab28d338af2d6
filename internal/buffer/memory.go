package buffer

import (
	"context"
	"sort"
	"sync"
	"time"

	"tidemark.app/feed/internal/model"
)

// memoryBuffer is a process-local Buffer with the same semantics as the
// Redis implementation. It backs unit tests and single-node development;
// it cannot be shared across processes.
type memoryBuffer struct {
	mu        sync.Mutex
	groups    map[string]*memoryGroup
	heads     map[string]int
	sampleCap int
	claimTTL  time.Duration
	now       func() time.Time
}

type memoryGroup struct {
	group model.BufferGroup
}

type MemoryOption func(*memoryBuffer)

// WithClock overrides the buffer's time source. Tests use it to drive
// idle and age eligibility deterministically.
func WithClock(now func() time.Time) MemoryOption {
	return func(b *memoryBuffer) { b.now = now }
}

func NewMemory(sampleCap int, claimTTL time.Duration, opts ...MemoryOption) Buffer {
	if sampleCap <= 0 {
		sampleCap = DefaultSampleCap
	}
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	b := &memoryBuffer{
		groups:    make(map[string]*memoryGroup),
		heads:     make(map[string]int),
		sampleCap: sampleCap,
		claimTTL:  claimTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *memoryBuffer) Append(ctx context.Context, key Key, ev model.RawEvent) (AppendResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	base := key.String()
	gen := b.heads[base]
	gkey := GroupKey(key, gen)
	outcome := OutcomeAppended

	g, ok := b.groups[gkey]
	if ok && g.group.State == model.GroupStateClaimed {
		gen++
		b.heads[base] = gen
		gkey = GroupKey(key, gen)
		g, ok = b.groups[gkey]
		outcome = OutcomeRedirected
	}

	if !ok {
		if outcome != OutcomeRedirected {
			outcome = OutcomeOpenedNew
		}
		g = &memoryGroup{group: model.BufferGroup{
			Key:          gkey,
			Generation:   gen,
			ActorID:      key.ActorID,
			ContainerID:  key.ContainerID,
			Verb:         key.Verb,
			ObjectType:   key.ObjectType,
			EventCount:   0,
			FirstEventAt: ev.OccurredAt,
			LastEventAt:  ev.OccurredAt,
			State:        model.GroupStateOpen,
		}}
		b.groups[gkey] = g
	}

	g.group.EventCount++
	if ev.OccurredAt.After(g.group.LastEventAt) {
		g.group.LastEventAt = ev.OccurredAt
	}
	if len(g.group.Sample) < b.sampleCap {
		g.group.Sample = append(g.group.Sample, model.SampledEvent{
			EventID:  ev.ID,
			ObjectID: ev.ObjectID,
			Name:     ev.Metadata[model.MetaName],
		})
	}

	return AppendResult{
		Outcome:      outcome,
		GroupKey:     gkey,
		EventCount:   g.group.EventCount,
		FirstEventAt: g.group.FirstEventAt,
	}, nil
}

func (b *memoryBuffer) PeekOpenGroups(ctx context.Context, th CloseThresholds, limit int) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var keys []string
	for gkey, g := range b.groups {
		if g.group.State != model.GroupStateOpen {
			continue
		}
		idle := now.Sub(g.group.LastEventAt) >= th.IdleAfter
		aged := now.Sub(g.group.FirstEventAt) >= th.MaxAge
		full := g.group.EventCount >= th.MaxEvents
		if idle || aged || full {
			keys = append(keys, gkey)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (b *memoryBuffer) ExpiredClaims(ctx context.Context, limit int) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var keys []string
	for gkey, g := range b.groups {
		if g.group.State == model.GroupStateClaimed && now.After(g.group.ClaimExpiresAt) {
			keys = append(keys, gkey)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (b *memoryBuffer) TryClaim(ctx context.Context, groupKey string) (*model.BufferGroup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.groups[groupKey]
	if !ok {
		return nil, ErrGroupNotFound
	}
	now := b.now()
	if g.group.State == model.GroupStateClaimed && g.group.ClaimExpiresAt.After(now) {
		return nil, ErrGroupClaimed
	}

	g.group.State = model.GroupStateClaimed
	g.group.ClaimExpiresAt = now.Add(b.claimTTL)

	base, gen := splitGroupKey(groupKey)
	if b.heads[base] == gen {
		b.heads[base] = gen + 1
	}

	snapshot := g.group
	snapshot.Sample = append([]model.SampledEvent(nil), g.group.Sample...)
	return &snapshot, nil
}

func (b *memoryBuffer) Release(ctx context.Context, groupKey string, finalized bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.groups[groupKey]
	if !ok {
		return nil
	}
	if finalized {
		delete(b.groups, groupKey)
		return nil
	}
	g.group.State = model.GroupStateOpen
	g.group.ClaimExpiresAt = time.Time{}
	return nil
}

func splitGroupKey(gkey string) (string, int) {
	for i := len(gkey) - 1; i >= 0; i-- {
		if gkey[i] == '#' {
			gen := 0
			for _, c := range gkey[i+1:] {
				gen = gen*10 + int(c-'0')
			}
			return gkey[:i], gen
		}
	}
	return gkey, 0
}
