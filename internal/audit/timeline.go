// Package audit reads the audit trail written by the ledger, catalogue and
// checkout.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nahum29/tiendita/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxExportRows   = 5000
	// MaxRange bounds how far apart From and To may be.
	MaxRange = 90 * 24 * time.Hour
)

// ErrInvalidRange is returned when the window is empty or too wide.
var ErrInvalidRange = shared.ValidationError("audit: invalid date range")

// Filters narrows the timeline. Empty fields match everything.
type Filters struct {
	From     time.Time
	To       time.Time
	ActorID  *uuid.UUID
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// Row is one audit record.
type Row struct {
	ID       int64           `json:"id"`
	At       time.Time       `json:"at"`
	ActorID  uuid.UUID       `json:"actor_id"`
	Action   string          `json:"action"`
	Entity   string          `json:"entity"`
	EntityID string          `json:"entity_id"`
	Meta     json.RawMessage `json:"meta,omitempty"`
}

// Paging describes the returned page.
type Paging struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result is a page of the timeline.
type Result struct {
	Rows   []Row  `json:"rows"`
	Paging Paging `json:"paging"`
}
