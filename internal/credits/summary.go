package credits

import (
	"encoding/json"

	"github.com/google/uuid"
)

type paymentSummary struct {
	OriginalNotes string        `json:"originalNotes,omitempty"`
	Allocations   []summaryLine `json:"allocations"`
	Unallocated   json.Number   `json:"unallocated,omitempty"`
}

type summaryLine struct {
	CreditID  uuid.UUID   `json:"credit_id"`
	WeekStart string      `json:"week_start,omitempty"`
	WeekEnd   string      `json:"week_end,omitempty"`
	Paid      json.Number `json:"paid"`
}

// BuildSummary renders the human readable allocation summary stored in the
// payment's notes. The operator's own note is preserved as originalNotes.
func BuildSummary(originalNotes string, plan Plan) (string, error) {
	summary := paymentSummary{
		OriginalNotes: originalNotes,
		Allocations:   make([]summaryLine, 0, len(plan.Allocations)),
	}
	for _, a := range plan.Allocations {
		line := summaryLine{CreditID: a.Note.ID, Paid: json.Number(a.Applied.String())}
		if !a.Note.WeekStart.IsZero() {
			line.WeekStart = DateString(a.Note.WeekStart)
			line.WeekEnd = DateString(WeekEnd(a.Note.WeekStart))
		}
		summary.Allocations = append(summary.Allocations, line)
	}
	if plan.Unallocated.IsPositive() {
		summary.Unallocated = json.Number(plan.Unallocated.String())
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
