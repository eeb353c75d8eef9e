/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the bundle entities (which carry locks and back-references) from the
  external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Months:  MonthDTO, ItemDTO, IngestMonthRequest, IngestMonthResponse
  Ingest:  RunDTO
  Errors:  ErrorResponse

VALIDATION:
  Validation is done by the bundle constructors, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ingest/source.go: MonthDoc, the file form of IngestMonthRequest
*/
package api

import (
	"time"

	"github.com/rex8112/HumbleScrapperBot/bundle"
	"github.com/rex8112/HumbleScrapperBot/ingest"
)

// =============================================================================
// MONTHS
// =============================================================================

// MonthDTO represents an archived month in API responses.
type MonthDTO struct {
	ID     int64     `json:"id"`
	Month  string    `json:"month"`
	Number int       `json:"number"`
	Year   int       `json:"year"`
	Title  string    `json:"title"`
	Kind   string    `json:"kind"`
	Brand  string    `json:"brand"`
	URL    string    `json:"url"`
	Items  []ItemDTO `json:"items"`
}

// ItemDTO represents a game within a month.
type ItemDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// IngestMonthRequest is a scraped month posted by the scraper.
type IngestMonthRequest struct {
	Month string   `json:"month"`
	Year  int      `json:"year"`
	URL   string   `json:"url"`
	Items []string `json:"items"`
}

// IngestMonthResponse is the archived month and the items that were new.
type IngestMonthResponse struct {
	Month   MonthDTO  `json:"month"`
	Created bool      `json:"created"`
	Added   []ItemDTO `json:"added"`
}

// =============================================================================
// INGEST RUNS
// =============================================================================

// RunDTO represents one ingest cycle.
type RunDTO struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Months      int        `json:"months"`
	Created     int        `json:"created"`
	Added       int        `json:"added"`
	Error       string     `json:"error,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toMonthDTO(m *bundle.Month) MonthDTO {
	id, _ := m.ID()
	return MonthDTO{
		ID:     int64(id),
		Month:  m.Label(),
		Number: int(m.Number()),
		Year:   m.Year(),
		Title:  m.Title(),
		Kind:   string(m.Kind()),
		Brand:  m.Kind().Brand(),
		URL:    m.URL(),
		Items:  toItemDTOs(m.Items()),
	}
}

func toItemDTOs(items []*bundle.Item) []ItemDTO {
	out := make([]ItemDTO, 0, len(items))
	for _, it := range items {
		id, _ := it.ID()
		out = append(out, ItemDTO{ID: int64(id), Name: it.Name()})
	}
	return out
}

func toRunDTO(r ingest.Run) RunDTO {
	return RunDTO{
		ID:          r.ID,
		Source:      r.Source,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Months:      r.Months,
		Created:     r.Created,
		Added:       r.Added,
		Error:       r.Error,
	}
}

func (req IngestMonthRequest) toDoc() ingest.MonthDoc {
	return ingest.MonthDoc{Month: req.Month, Year: req.Year, URL: req.URL, Items: req.Items}
}
