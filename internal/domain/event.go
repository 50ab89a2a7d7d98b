// Package domain defines the core data model shared by the ingestion
// pipeline, the persistence layer, and the HTTP API.
package domain

import "time"

// EventStatus tracks an event through its lifecycle.
// Archived is terminal.
type EventStatus string

const (
	StatusDraft     EventStatus = "Draft"
	StatusStaging   EventStatus = "Staging"
	StatusPublished EventStatus = "Published"
	StatusArchived  EventStatus = "Archived"
)

// Area is a named region the event belongs to.
type Area struct {
	Slug string `json:"slug,omitempty"`
	Name string `json:"name,omitempty"`
}

// Reservation describes whether and how attendance must be booked.
type Reservation struct {
	Required bool   `json:"required"`
	Method   string `json:"method,omitempty"`
	URL      string `json:"reservationUrl,omitempty"`
	Note     string `json:"note,omitempty"`
}

// Event is the canonical published record.
//
// Invariant: a published Event always carries a non-empty Title, a
// valid OfficialURL, and a valid UpdatedAt date. The publish gate
// enforces this; nothing else writes to the published set.
type Event struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Summary     string      `json:"summary,omitempty"`
	OfficialURL string      `json:"officialUrl"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	StartAt     *time.Time  `json:"startAt,omitempty"`
	EndAt       *time.Time  `json:"endAt,omitempty"`
	Area        Area        `json:"area,omitempty"`
	VenueName   string      `json:"venueName,omitempty"`
	AgeLabel    string      `json:"ageLabel,omitempty"`
	PriceText   string      `json:"priceText,omitempty"`
	Categories  []string    `json:"categories,omitempty"`
	Reservation Reservation `json:"reservation,omitempty"`
	Status      EventStatus `json:"status"`
	PublishedAt *time.Time  `json:"publishedAt,omitempty"`
}
