package service

import (
	"fmt"
	"strings"

	"tidemark.app/feed/internal/model"
)

// BuildSummary derives the human-facing payload for a finalized group.
// The output is a pure function of the group snapshot, so retried
// finalizations of the same group always produce an identical row.
func BuildSummary(group *model.BufferGroup) model.SummaryPayload {
	payload := model.SummaryPayload{
		Title: summaryTitle(group),
	}

	for _, sampled := range group.Sample {
		payload.Items = append(payload.Items, model.SummaryItem{
			ObjectID: sampled.ObjectID,
			Name:     sampled.Name,
		})
	}

	if remaining := group.EventCount - len(group.Sample); remaining > 0 {
		payload.Remaining = remaining
	}

	return payload
}

func summaryTitle(group *model.BufferGroup) string {
	verb := string(group.Verb)

	if group.EventCount == 1 {
		if len(group.Sample) > 0 && group.Sample[0].Name != "" {
			return fmt.Sprintf("%s %s %q", verb, group.ObjectType, group.Sample[0].Name)
		}
		return fmt.Sprintf("%s a %s", verb, group.ObjectType)
	}

	return fmt.Sprintf("%s %d %s", verb, group.EventCount, pluralize(group.ObjectType))
}

// pluralize covers the object types producers actually send. It is not a
// general English inflector and does not try to be.
func pluralize(noun string) string {
	switch {
	case strings.HasSuffix(noun, "s"), strings.HasSuffix(noun, "x"), strings.HasSuffix(noun, "ch"):
		return noun + "es"
	case strings.HasSuffix(noun, "y") && !strings.HasSuffix(noun, "ey"):
		return noun[:len(noun)-1] + "ies"
	default:
		return noun + "s"
	}
}
