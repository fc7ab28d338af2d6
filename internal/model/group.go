package model

import "time"

type GroupState string

const (
	GroupStateOpen    GroupState = "open"
	GroupStateClaimed GroupState = "claimed"
)

// SampledEvent is the slice of a raw event a buffer group retains for
// summary building. The full event is never stored past the sample cap.
type SampledEvent struct {
	EventID  string `json:"event_id"`
	ObjectID string `json:"object_id"`
	Name     string `json:"name,omitempty"`
}

// BufferGroup is the in-flight aggregation state for one aggregation key
// generation. It is a snapshot: mutation happens only through the buffer's
// atomic operations.
type BufferGroup struct {
	Key            string
	Generation     int
	ActorID        int64
	ContainerID    int64
	Verb           Verb
	ObjectType     string
	EventCount     int
	FirstEventAt   time.Time
	LastEventAt    time.Time
	Sample         []SampledEvent
	State          GroupState
	ClaimExpiresAt time.Time
}
