package ledger

import "time"

// slot is a uniform view over one reward's counter and window timestamp.
type slot struct {
	count *int
	last  *int64
}

func slotFor(rec *Record, k Kind) slot {
	switch k {
	case KindSpin:
		return slot{&rec.Spin.Attempts, &rec.Spin.LastEvent}
	case KindQuiz:
		return slot{&rec.Quiz.Attempts, &rec.Quiz.LastEvent}
	case KindLuckyBox:
		return slot{&rec.LuckyBox.Attempts, &rec.LuckyBox.LastEvent}
	case KindScratch:
		return slot{&rec.Scratch.Claims, &rec.Scratch.LastEvent}
	case KindDailyBonus:
		// the bonus keeps no counter: any recorded claim counts as one claim in its window
		claims := 0
		if rec.DailyBonus.LastClaim != 0 {
			claims = 1
		}
		return slot{&claims, &rec.DailyBonus.LastClaim}
	}
	panic("ledger: no slot for " + string(k))
}

func (s slot) clamp(d Descriptor) {
	if *s.count < 0 {
		*s.count = 0
	}
	if *s.count > d.Max {
		*s.count = d.Max
	}
}

func (s slot) reset(d Descriptor, now time.Time) {
	if d.Policy == AttemptCounted {
		*s.count = d.Max
	} else {
		*s.count = 0
	}
	*s.last = now.UnixMilli()
}

func (s slot) available(d Descriptor) bool {
	if d.Policy == AttemptCounted {
		return *s.count > 0
	}
	return *s.count < d.Max
}

// remaining is the number of claims left in the current window.
func (s slot) remaining(d Descriptor) int {
	if d.Policy == AttemptCounted {
		return *s.count
	}
	return d.Max - *s.count
}

func (s slot) consume(d Descriptor, now time.Time) {
	if d.Policy == AttemptCounted {
		*s.count--
	} else {
		*s.count++
	}
	*s.last = now.UnixMilli()
}
