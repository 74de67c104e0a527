package detectors

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"github.com/playhall/modreport/modreport"
	"github.com/playhall/modreport/modreport/storage"
)

const (
	// linked accounts with this many abuse bans or fewer are ignored
	banEvasionMinCount = 4
	// only the K largest counts contribute to the aggregate
	banEvasionTopK = 10
	// aggregate required to escalate
	banEvasionThreshold = 80
	// do not re-escalate a primary account reported this recently
	banEvasionWindow = 7 * 24 * time.Hour
)

// BanEvasion escalates a primary account whose linked accounts (same IP and
// device fingerprint) have accumulated heavy abuse-ban histories. Counts
// of 4 or fewer are noise and dropped; of the rest, only the 10 largest are
// summed, selected with a bounded min-heap rather than sorting since a
// prolific evader can drag hundreds of linked accounts. Escalates when the
// sum reaches 80 and no such report exists for the primary within 7 days.
func (d *Detectors) BanEvasion(ctx context.Context, primaryID string, linkedIDs []string) (bool, error) {
	counts := make([]int, 0, len(linkedIDs))
	for _, id := range linkedIDs {
		c, err := d.Playbans.PlaybanCount(ctx, id)
		if err != nil {
			return false, fmt.Errorf("fetching playban count for %s: %w", id, err)
		}
		if c > banEvasionMinCount {
			counts = append(counts, c)
		}
	}
	sum := topKSum(counts, banEvasionTopK)
	if sum < banEvasionThreshold {
		return false, nil
	}

	recent, err := d.Engine.Store.Find(ctx, storage.Selector{
		SuspectID:  primaryID,
		Reason:     &modreport.ReasonPlayban,
		AtomsAfter: time.Now().Add(-banEvasionWindow),
	}, storage.SortNone, 1)
	if err != nil {
		return false, fmt.Errorf("checking recent ban-evasion reports: %w", err)
	}
	if len(recent) > 0 {
		d.Logger.Debug("skipping ban-evasion escalation, recent report exists", "suspect", primaryID)
		return false, nil
	}

	text := fmt.Sprintf("Linked accounts carry %d abuse bans across %d heavily banned alts", sum, len(counts))
	return d.file(ctx, primaryID, modreport.ReasonPlayban, text, critical)
}

// topKSum sums the k largest values using a size-bounded min-heap: O(n log k)
// and O(k) memory regardless of how many linked accounts feed in.
func topKSum(values []int, k int) int {
	if k <= 0 {
		return 0
	}
	h := &intMinHeap{}
	heap.Init(h)
	for _, v := range values {
		if h.Len() < k {
			heap.Push(h, v)
		} else if v > (*h)[0] {
			(*h)[0] = v
			heap.Fix(h, 0)
		}
	}
	sum := 0
	for _, v := range *h {
		sum += v
	}
	return sum
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
