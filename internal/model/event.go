package model

import (
	"time"
)

// Verb is the enumerated kind of action an actor performed.
type Verb string

const (
	VerbUploaded  Verb = "uploaded"
	VerbCreated   Verb = "created"
	VerbUpdated   Verb = "updated"
	VerbDeleted   Verb = "deleted"
	VerbMoved     Verb = "moved"
	VerbCommented Verb = "commented"
)

// KnownVerbs lists every verb the normalizer accepts.
var KnownVerbs = map[Verb]bool{
	VerbUploaded:  true,
	VerbCreated:   true,
	VerbUpdated:   true,
	VerbDeleted:   true,
	VerbMoved:     true,
	VerbCommented: true,
}

// Metadata keys with well-known meaning to the summary builder.
const (
	MetaName    = "name"
	MetaSnippet = "snippet"
)

// RawEvent is one atomic user action, immutable once constructed.
type RawEvent struct {
	ID          string            `json:"id"`
	ActorID     int64             `json:"actor_id"`
	Verb        Verb              `json:"verb"`
	ObjectType  string            `json:"object_type"`
	ObjectID    string            `json:"object_id"`
	ContainerID int64             `json:"container_id"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Category groups object types for the recorder's enable/disable filter.
type Category string

const (
	CategoryFiles         Category = "files"
	CategoryFolders       Category = "folders"
	CategoryComments      Category = "comments"
	CategoryImages        Category = "images"
	CategoryAnnouncements Category = "announcements"
	CategoryWidgets       Category = "widgets"
	CategoryContainers    Category = "containers"
)

var categoryByObjectType = map[string]Category{
	"file":         CategoryFiles,
	"folder":       CategoryFolders,
	"comment":      CategoryComments,
	"image":        CategoryImages,
	"announcement": CategoryAnnouncements,
	"widget":       CategoryWidgets,
	"container":    CategoryContainers,
}

// CategoryForObjectType maps an object type to its filter category.
// Unknown object types return an empty category and are treated as enabled,
// so new producers are not silently dropped.
func CategoryForObjectType(objectType string) Category {
	return categoryByObjectType[objectType]
}
