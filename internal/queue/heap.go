package queue

import "time"

// messageHeap orders messages by priority (higher first), breaking ties by
// earlier ScheduledFor.
type messageHeap []*Message

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].ScheduledFor.Before(h[j].ScheduledFor)
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x any) {
	*h = append(*h, x.(*Message))
}

func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	msg := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return msg
}

// readyIndex returns the index of the best message due at or before now
// (priority desc, ScheduledFor asc), or -1 when nothing is ready yet.
func (h messageHeap) readyIndex(now time.Time) int {
	best := -1
	for i, msg := range h {
		if msg.ScheduledFor.After(now) {
			continue
		}
		if best < 0 || h.Less(i, best) {
			best = i
		}
	}
	return best
}

// earliestScheduled reports the soonest ScheduledFor across pending messages.
func (h messageHeap) earliestScheduled() (time.Time, bool) {
	var earliest time.Time
	for _, msg := range h {
		if earliest.IsZero() || msg.ScheduledFor.Before(earliest) {
			earliest = msg.ScheduledFor
		}
	}
	return earliest, !earliest.IsZero()
}
