package buffer

import (
	"fmt"
	"time"

	"tidemark.app/feed/internal/model"
)

// Key is the grouping identity under which raw events are eligible to merge.
// Two events share a key iff every field matches, including the coarse time
// bucket, which bounds key cardinality so stale keys cannot accumulate.
type Key struct {
	ActorID     int64
	Verb        model.Verb
	ObjectType  string
	ContainerID int64
	Bucket      int64 // unix seconds, truncated to the bucket duration
}

// DeriveKey computes the aggregation key for an event. The bucket duration
// comes from configuration; per-day is the default.
func DeriveKey(ev model.RawEvent, bucket time.Duration) Key {
	return Key{
		ActorID:     ev.ActorID,
		Verb:        ev.Verb,
		ObjectType:  ev.ObjectType,
		ContainerID: ev.ContainerID,
		Bucket:      ev.OccurredAt.UTC().Truncate(bucket).Unix(),
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%s:%s:%d:%d", k.ActorID, k.Verb, k.ObjectType, k.ContainerID, k.Bucket)
}

// GroupKey identifies one generation of a key's buffer group. A claimed
// generation is never reopened; subsequent appends go to the next one.
func GroupKey(k Key, generation int) string {
	return fmt.Sprintf("%s#%d", k.String(), generation)
}
