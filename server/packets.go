package server

import (
	"time"

	"github.com/cyp0633/libschedule/period"
	"github.com/cyp0633/libschedule/schedule"
)

type OccurrenceResponse struct {
	ID            string    `json:"id,omitempty"`
	EventID       string    `json:"event_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	OriginalStart time.Time `json:"original_start"`
	OriginalEnd   time.Time `json:"original_end"`
	Cancelled     bool      `json:"cancelled"`
	State         string    `json:"state"`
}

type PartialResponse struct {
	OccurrenceResponse
	Class string `json:"class"`
}

type PeriodResponse struct {
	Kind        string            `json:"kind"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Occurrences []PartialResponse `json:"occurrences"`
	Prev        *time.Time        `json:"prev,omitempty"`
	Next        *time.Time        `json:"next,omitempty"`
}

// MoveRequest is the body of a move: the new bounds of the occurrence.
type MoveRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func newOccurrenceResponse(occ *schedule.Occurrence) OccurrenceResponse {
	return OccurrenceResponse{
		ID:            occ.ID,
		EventID:       occ.EventID,
		Title:         occ.Title,
		Description:   occ.Description,
		Start:         occ.Start,
		End:           occ.End,
		OriginalStart: occ.OriginalStart,
		OriginalEnd:   occ.OriginalEnd,
		Cancelled:     occ.Cancelled,
		State:         occ.State().String(),
	}
}

func newOccurrenceList(occs []*schedule.Occurrence) []OccurrenceResponse {
	response := make([]OccurrenceResponse, 0, len(occs))
	for _, occ := range occs {
		response = append(response, newOccurrenceResponse(occ))
	}
	return response
}

func newPeriodResponse(p *period.Period) PeriodResponse {
	response := PeriodResponse{
		Kind:        p.Kind().String(),
		Start:       p.Start(),
		End:         p.End(),
		Occurrences: []PartialResponse{},
	}
	for _, partial := range p.OccurrencePartials() {
		occ, ok := partial.Occurrence.(*schedule.Occurrence)
		if !ok {
			continue
		}
		response.Occurrences = append(response.Occurrences, PartialResponse{
			OccurrenceResponse: newOccurrenceResponse(occ),
			Class:              partial.Class.String(),
		})
	}
	if prev, ok := p.Prev().Get(); ok {
		start := prev.Start()
		response.Prev = &start
	}
	if next, ok := p.Next().Get(); ok {
		start := next.Start()
		response.Next = &start
	}
	return response
}
