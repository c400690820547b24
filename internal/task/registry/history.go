package registry

import "sync"

// DefaultHistorySize bounds the execution history.
const DefaultHistorySize = 1000

// history is an insertion-ordered, bounded log. A terminal entry replaces its
// running entry in place (matched by ExecutionID), keeping the original slot.
type history struct {
	mu    sync.Mutex
	limit int
	items []Entry
}

func newHistory(limit int) *history {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &history{limit: limit, items: make([]Entry, 0, limit)}
}

func (h *history) add(e Entry) {
	h.mu.Lock()
	h.appendLocked(e)
	h.mu.Unlock()
}

func (h *history) appendLocked(e Entry) {
	if len(h.items) >= h.limit {
		// Evict oldest; shift in place so the backing array never grows.
		n := copy(h.items, h.items[len(h.items)-h.limit+1:])
		h.items = h.items[:n]
	}
	h.items = append(h.items, e)
}

// replace swaps in the terminal entry. If the running entry was already
// evicted, the terminal entry is appended so the outcome is not lost.
func (h *history) replace(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// Scan from the newest end: the running entry is usually recent.
	for i := len(h.items) - 1; i >= 0; i-- {
		if h.items[i].ExecutionID == e.ExecutionID {
			h.items[i] = e
			return
		}
	}
	h.appendLocked(e)
}

// query returns up to limit entries (all when limit <= 0), newest first,
// optionally filtered by task id.
func (h *history) query(taskID string, limit int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	hint := len(h.items)
	if limit > 0 && limit < hint {
		hint = limit
	}
	out := make([]Entry, 0, hint)
	for i := len(h.items) - 1; i >= 0; i-- {
		if taskID != "" && h.items[i].TaskID != taskID {
			continue
		}
		out = append(out, h.items[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (h *history) last(taskID string) (Entry, bool) {
	got := h.query(taskID, 1)
	if len(got) == 0 {
		return Entry{}, false
	}
	return got[0], true
}

func (h *history) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}
