package ledger

import "time"

// Availability is the lazily reset state of one reward as seen at a given time.
type Availability struct {
	Kind      Kind  `json:"kind"`
	Remaining int   `json:"remaining"`
	Max       int   `json:"max"`
	ResetsAt  int64 `json:"resets_at"` // 0 when the quota is full
}

// Snapshot reports every reward's availability at now without touching the record.
func (l *Ledger) Snapshot(rec Record, now time.Time) []Availability {
	view := rec.Clone()
	out := make([]Availability, 0, len(l.order))
	for _, k := range l.order {
		d := l.descriptors[k]
		s := slotFor(&view, k)
		s.clamp(d)
		if elapsed(*s.last, now, d.Window) {
			s.reset(d, now)
		}
		a := Availability{Kind: k, Remaining: s.remaining(d), Max: d.Max}
		if a.Remaining < d.Max {
			a.ResetsAt = *s.last + d.Window.Milliseconds()
		}
		out = append(out, a)
	}
	return out
}

// Available reports whether one claim of k would be permitted at now.
func (l *Ledger) Available(rec Record, k Kind, now time.Time) bool {
	for _, a := range l.Snapshot(rec, now) {
		if a.Kind == k {
			return a.Remaining > 0
		}
	}
	return false
}
