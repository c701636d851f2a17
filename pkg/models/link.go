package models

import (
	"time"

	"github.com/google/uuid"
)

// LinkSource records who created a link.
type LinkSource string

const (
	LinkSourceAuto   LinkSource = "auto"
	LinkSourceManual LinkSource = "manual"
)

// Valid reports whether s is auto or manual.
func (s LinkSource) Valid() bool {
	return s == LinkSourceAuto || s == LinkSourceManual
}

// Link relates one document item to one GL row. The pair is unique.
type Link struct {
	DocumentItemID uuid.UUID  `json:"document_item_id"`
	GLEntryID      uuid.UUID  `json:"gl_entry_id"`
	Source         LinkSource `json:"source"`
	CreatedAt      time.Time  `json:"created_at"`
}

// EntityKind names the owning entity whose deletion cascades to links.
type EntityKind string

const (
	EntityGLEntry      EntityKind = "gl_entry"
	EntityDocumentItem EntityKind = "document_item"
	EntityDocument     EntityKind = "document"
)

// EntityRef identifies a deleted entity for link cascade.
type EntityRef struct {
	Kind EntityKind
	ID   uuid.UUID
}
