package training

// History is an append-only log of per-epoch losses. With MaxLen set only
// the most recent MaxLen epochs are retained; Total still counts every
// appended epoch.
type History struct {
	MaxLen int       `json:"max_len"`
	Train  []float64 `json:"train"`
	Dev    []float64 `json:"dev"`
	Total  int       `json:"total"`
}

// NewHistory returns an empty history bounded by maxLen (0 is unbounded).
func NewHistory(maxLen int) *History { return &History{MaxLen: maxLen} }

// Append records one epoch.
func (h *History) Append(train, dev float64) {
	h.Train = append(h.Train, train)
	h.Dev = append(h.Dev, dev)
	h.Total++
	if h.MaxLen > 0 && len(h.Train) > h.MaxLen {
		drop := len(h.Train) - h.MaxLen
		h.Train = append(h.Train[:0:0], h.Train[drop:]...)
		h.Dev = append(h.Dev[:0:0], h.Dev[drop:]...)
	}
}

// Len returns the number of retained epochs.
func (h *History) Len() int { return len(h.Train) }

// Restore replaces the retained losses, e.g. from a checkpoint. total is
// the number of epochs run so far; it never drops below len(train).
func (h *History) Restore(train, dev []float64, total int) {
	h.Train = append([]float64(nil), train...)
	h.Dev = append([]float64(nil), dev...)
	h.Total = max(total, len(train))
	if h.MaxLen > 0 && len(h.Train) > h.MaxLen {
		drop := len(h.Train) - h.MaxLen
		h.Train, h.Dev = h.Train[drop:], h.Dev[drop:]
	}
}
