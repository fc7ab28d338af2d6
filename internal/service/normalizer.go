package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tidemark.app/feed/internal/model"
)

var (
	// ErrValidation wraps all producer input rejections.
	ErrValidation = errors.New("invalid event")

	// ErrVerbUnknown is returned for verbs outside the accepted set.
	ErrVerbUnknown = errors.New("unknown verb")
)

// SnippetLimit bounds comment snippet metadata carried into summaries.
const SnippetLimit = 75

// ProducerEvent is the untrusted shape submitted by event producers.
type ProducerEvent struct {
	ActorID     int64             `json:"actor_id"`
	Verb        string            `json:"verb"`
	ObjectType  string            `json:"object_type"`
	ObjectID    string            `json:"object_id"`
	ContainerID int64             `json:"container_id"`
	OccurredAt  *time.Time        `json:"occurred_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Normalizer validates producer input and mints immutable raw events.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewNormalizerWithClock is used by tests to pin event timestamps.
func NewNormalizerWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize validates the producer event and returns a RawEvent with a
// fresh ID. Events missing a timestamp are stamped with the current time.
func (n *Normalizer) Normalize(pe ProducerEvent) (model.RawEvent, error) {
	if pe.ActorID <= 0 {
		return model.RawEvent{}, fmt.Errorf("%w: actor_id is required", ErrValidation)
	}
	if pe.ContainerID <= 0 {
		return model.RawEvent{}, fmt.Errorf("%w: container_id is required", ErrValidation)
	}
	if pe.ObjectType == "" {
		return model.RawEvent{}, fmt.Errorf("%w: object_type is required", ErrValidation)
	}
	if pe.ObjectID == "" {
		return model.RawEvent{}, fmt.Errorf("%w: object_id is required", ErrValidation)
	}

	verb := model.Verb(strings.ToLower(strings.TrimSpace(pe.Verb)))
	if !model.KnownVerbs[verb] {
		return model.RawEvent{}, fmt.Errorf("%w: %w: %q", ErrValidation, ErrVerbUnknown, pe.Verb)
	}

	occurredAt := n.now().UTC()
	if pe.OccurredAt != nil {
		occurredAt = pe.OccurredAt.UTC()
	}

	var metadata map[string]string
	if len(pe.Metadata) > 0 {
		metadata = make(map[string]string, len(pe.Metadata))
		for k, v := range pe.Metadata {
			if k == model.MetaSnippet {
				v = truncateRunes(v, SnippetLimit)
			}
			metadata[k] = v
		}
	}

	return model.RawEvent{
		ID:          uuid.NewString(),
		ActorID:     pe.ActorID,
		Verb:        verb,
		ObjectType:  pe.ObjectType,
		ObjectID:    pe.ObjectID,
		ContainerID: pe.ContainerID,
		OccurredAt:  occurredAt,
		Metadata:    metadata,
	}, nil
}

// truncateRunes cuts at rune boundaries so multibyte text never splits.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
