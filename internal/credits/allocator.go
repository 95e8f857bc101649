package credits

import (
	"bytes"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PlannedAllocation is one step of a payment plan.
type PlannedAllocation struct {
	Note    Note            `json:"-"`
	Applied decimal.Decimal `json:"paid"`
	Before  decimal.Decimal `json:"before"`
	After   decimal.Decimal `json:"after"`
}

// Closes reports whether the step pays the note off.
func (p PlannedAllocation) Closes() bool {
	return p.After.IsZero()
}

// Plan is the result of distributing a payment across notes.
type Plan struct {
	Amount      decimal.Decimal
	Allocations []PlannedAllocation
	Unallocated decimal.Decimal
}

// Applied is the part of the payment assigned to notes.
func (p Plan) Applied() decimal.Decimal {
	return p.Amount.Sub(p.Unallocated)
}

// Outstanding sums what notes owe, using the legacy fallback for rows without
// an outstanding value.
func Outstanding(notes []Note) decimal.Decimal {
	sum := decimal.Zero
	for _, n := range notes {
		if r := n.Remaining(); r.IsPositive() {
			sum = sum.Add(r)
		}
	}
	return sum
}

// Allocate distributes amount over notes, oldest debt first: overdue notes
// before open ones, then by week start (creation time when the week is
// unknown). Notes with nothing outstanding are skipped. The input slice is not
// modified and the result depends only on the inputs.
func Allocate(notes []Note, amount decimal.Decimal) Plan {
	plan := Plan{Amount: amount, Unallocated: amount}
	if !amount.IsPositive() {
		return plan
	}
	ordered := make([]Note, len(notes))
	copy(ordered, notes)
	SortForAllocation(ordered)

	remaining := amount
	for _, note := range ordered {
		if !remaining.IsPositive() {
			break
		}
		before := note.Remaining()
		if !before.IsPositive() {
			continue
		}
		applied := decimal.Min(remaining, before)
		plan.Allocations = append(plan.Allocations, PlannedAllocation{
			Note:    note,
			Applied: applied,
			Before:  before,
			After:   before.Sub(applied),
		})
		remaining = remaining.Sub(applied)
	}
	plan.Unallocated = remaining
	return plan
}

// SortForAllocation orders notes in place the way Allocate consumes them.
func SortForAllocation(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		a, b := notes[i], notes[j]
		if ra, rb := statusRank(a.Status), statusRank(b.Status); ra != rb {
			return ra < rb
		}
		if ka, kb := sortKey(a), sortKey(b); !ka.Equal(kb) {
			return ka.Before(kb)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}

func statusRank(s Status) int {
	if s == StatusOverdue {
		return 0
	}
	return 1
}

func sortKey(n Note) time.Time {
	if !n.WeekStart.IsZero() {
		return n.WeekStart
	}
	return n.CreatedAt
}
