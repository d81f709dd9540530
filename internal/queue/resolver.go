// Package queue derives per-astrologer FIFO queues from call records.
// All functions are pure: inputs are never modified.
package queue

import (
	"slices"

	"github.com/niraliveastro/astro-call-service/internal/model"
)

// queued returns the astrologer's queued calls ordered by creation time.
// Equal timestamps keep their input order.
func queued(calls []model.Call, astrologerID string) []model.Call {
	out := make([]model.Call, 0, len(calls))
	for _, c := range calls {
		if c.AstrologerID == astrologerID && c.Status == model.CallStatusQueued {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Call) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// QueueFor returns the ids of the astrologer's queued calls, oldest first.
func QueueFor(calls []model.Call, astrologerID string) []string {
	q := queued(calls, astrologerID)
	ids := make([]string, len(q))
	for i, c := range q {
		ids[i] = c.ID
	}
	return ids
}

// Ordered returns the astrologer's queued calls, oldest first.
func Ordered(calls []model.Call, astrologerID string) []model.Call {
	q := queued(calls, astrologerID)
	for i := range q {
		q[i] = q[i].Clone()
	}
	return q
}

// PromoteNext moves the head of the astrologer's queue to pending.
// It returns the promoted call and a new slice with that call replaced;
// when the queue is empty it returns nil and calls unchanged.
func PromoteNext(calls []model.Call, astrologerID string) (*model.Call, []model.Call) {
	ids := QueueFor(calls, astrologerID)
	if len(ids) == 0 {
		return nil, calls
	}
	out := make([]model.Call, len(calls))
	var promoted *model.Call
	for i, c := range calls {
		out[i] = c.Clone()
		if promoted == nil && c.ID == ids[0] {
			out[i].Status = model.CallStatusPending
			out[i].Position = nil
			p := out[i]
			promoted = &p
		}
	}
	return promoted, out
}

// Renumber returns copies of the queued calls whose position differs from
// their 1-based rank, with the position corrected.
func Renumber(calls []model.Call, astrologerID string) []model.Call {
	var changed []model.Call
	for i, c := range queued(calls, astrologerID) {
		want := i + 1
		if c.Position != nil && *c.Position == want {
			continue
		}
		c = c.Clone()
		c.Position = model.IntPtr(want)
		changed = append(changed, c)
	}
	return changed
}
