package ledger

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

type Action string

const (
	ActionInitialData      Action = "request_initial_data"
	ActionClaimDailyBonus  Action = "claim_daily_bonus"
	ActionSpin             Action = "spin_attempt"
	ActionQuiz             Action = "quiz_attempt"
	ActionClaimGamePrize   Action = "claim_game_prize"
	ActionSpinReset        Action = "request_spin_reset"
	ActionQuizReset        Action = "request_quiz_reset"
	ActionFullReset        Action = "request_full_reset"
	ActionVerifySocialTask Action = "verify_social_task"
)

type Status int

const (
	Noop Status = iota
	Applied
	Rejected
)

func (s Status) String() string {
	switch s {
	case Applied:
		return "applied"
	case Rejected:
		return "rejected"
	default:
		return "noop"
	}
}

type Reason string

const (
	ReasonNoAttemptsLeft      Reason = "no-attempts-left"
	ReasonAlreadyClaimed      Reason = "already-claimed-this-window"
	ReasonInvalidAmount       Reason = "invalid-reward-amount"
	ReasonUnknownRewardType   Reason = "unknown-reward-type"
	ReasonInvalidPrizeOptions Reason = "invalid-prize-options"
	ReasonUnknownTask         Reason = "unknown-task"
	ReasonTaskNotVerified     Reason = "task-not-verified"
	ReasonUnknownAction       Reason = "unknown-action"
)

// Quota reports whether the reason is an expected quota outcome rather than bad input.
func (r Reason) Quota() bool {
	return r == ReasonNoAttemptsLeft || r == ReasonAlreadyClaimed || r == ReasonTaskNotVerified
}

// Params carries the action-specific input.
type Params struct {
	Game         Kind    // claim_game_prize
	PrizeOptions []int64 // spin_attempt
	PointsGained int64   // claim_game_prize, quiz_attempt
	TaskID       string  // verify_social_task
	TaskVerified bool    // verify_social_task
	Pick         func(n int) int
}

type Outcome struct {
	Status     Status
	Reason     Reason
	Kind       Kind
	Delta      int64
	PrizeIndex int
	Reset      []Kind
}

// Mutated reports whether the returned record differs from the input and must be persisted.
func (o Outcome) Mutated() bool {
	return o.Status == Applied
}

type Ledger struct {
	order       []Kind
	descriptors map[Kind]Descriptor
	tasks       []Task
	taskIndex   map[string]Task
}

func New(descriptors []Descriptor, tasks []Task) (*Ledger, error) {
	l := &Ledger{
		descriptors: make(map[Kind]Descriptor, len(descriptors)),
		taskIndex:   make(map[string]Task, len(tasks)),
	}
	for _, d := range descriptors {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, dup := l.descriptors[d.Kind]; dup {
			return nil, fmt.Errorf("duplicate descriptor %s", d.Kind)
		}
		switch d.Kind {
		case KindSpin, KindQuiz, KindLuckyBox, KindScratch, KindDailyBonus:
		default:
			return nil, fmt.Errorf("no record slot for %s", d.Kind)
		}
		l.order = append(l.order, d.Kind)
		l.descriptors[d.Kind] = d
	}
	for _, t := range tasks {
		if t.ID == "" || t.Points <= 0 {
			return nil, errors.New("task needs an id and positive points")
		}
		l.tasks = append(l.tasks, t)
		l.taskIndex[t.ID] = t
	}
	return l, nil
}

func Default() *Ledger {
	l, err := New(DefaultDescriptors(), DefaultTasks())
	if err != nil {
		panic(err)
	}
	return l
}

func (l *Ledger) Descriptor(k Kind) (Descriptor, bool) {
	d, ok := l.descriptors[k]
	return d, ok
}

func (l *Ledger) Task(id string) (Task, bool) {
	t, ok := l.taskIndex[id]
	return t, ok
}

// NewRecord returns the default record for a first-seen identity.
func (l *Ledger) NewRecord(userID string) Record {
	rec := Record{UserID: userID, Tasks: make(map[string]TaskStatus, len(l.tasks))}
	for _, k := range l.order {
		d := l.descriptors[k]
		if d.Policy == AttemptCounted {
			*slotFor(&rec, k).count = d.Max
		}
	}
	for _, t := range l.tasks {
		rec.Tasks[t.ID] = TaskStatus{Points: t.Points}
	}
	return rec
}

// Apply computes the record after the action at now. The input record is never modified;
// on anything but Applied the input is returned as is.
func (l *Ledger) Apply(rec Record, now time.Time, action Action, p Params) (Record, Outcome) {
	next := rec.Clone()
	var out Outcome
	switch action {
	case ActionInitialData:
		out = Outcome{Status: Noop, PrizeIndex: -1}
	case ActionClaimDailyBonus:
		out = l.claim(&next, KindDailyBonus, now, p)
	case ActionSpin:
		out = l.claim(&next, KindSpin, now, p)
	case ActionQuiz:
		out = l.claim(&next, KindQuiz, now, p)
	case ActionClaimGamePrize:
		switch p.Game {
		case KindScratch, KindLuckyBox:
			out = l.claim(&next, p.Game, now, p)
		default:
			out = rejected(p.Game, ReasonUnknownRewardType)
		}
	case ActionSpinReset:
		out = l.sweep(&next, now, KindSpin)
	case ActionQuizReset:
		out = l.sweep(&next, now, KindQuiz)
	case ActionFullReset:
		out = l.sweep(&next, now, KindSpin, KindQuiz, KindLuckyBox, KindScratch)
	case ActionVerifySocialTask:
		out = l.completeTask(&next, p)
	default:
		out = rejected("", ReasonUnknownAction)
	}
	if out.Status != Applied {
		return rec, out
	}
	return next, out
}

func rejected(k Kind, reason Reason) Outcome {
	return Outcome{Status: Rejected, Kind: k, Reason: reason, PrizeIndex: -1}
}

func (l *Ledger) claim(rec *Record, k Kind, now time.Time, p Params) Outcome {
	d, ok := l.descriptors[k]
	if !ok {
		return rejected(k, ReasonUnknownRewardType)
	}
	amount, index, reason := award(d, p)
	if reason != "" {
		return rejected(k, reason)
	}

	s := slotFor(rec, k)
	s.clamp(d)
	if elapsed(*s.last, now, d.Window) {
		s.reset(d, now)
	}
	if !s.available(d) {
		if d.Policy == AttemptCounted {
			return rejected(k, ReasonNoAttemptsLeft)
		}
		return rejected(k, ReasonAlreadyClaimed)
	}
	if rec.Points > math.MaxInt64-amount {
		return rejected(k, ReasonInvalidAmount)
	}
	s.consume(d, now)
	rec.Points += amount
	return Outcome{Status: Applied, Kind: k, Delta: amount, PrizeIndex: index}
}

func award(d Descriptor, p Params) (amount int64, index int, reason Reason) {
	switch d.Award {
	case AwardFixed:
		return d.FixedAmount, -1, ""
	case AwardPrizeOptions:
		n := len(p.PrizeOptions)
		if n == 0 {
			return 0, -1, ReasonInvalidPrizeOptions
		}
		for _, v := range p.PrizeOptions {
			if v < 0 {
				return 0, -1, ReasonInvalidPrizeOptions
			}
		}
		pick := p.Pick
		if pick == nil {
			pick = rand.Intn
		}
		i := ((pick(n) % n) + n) % n
		return p.PrizeOptions[i], i, ""
	default:
		if p.PointsGained <= 0 || (d.MaxAmount > 0 && p.PointsGained > d.MaxAmount) {
			return 0, -1, ReasonInvalidAmount
		}
		return p.PointsGained, -1, ""
	}
}

func (l *Ledger) sweep(rec *Record, now time.Time, kinds ...Kind) Outcome {
	var reset []Kind
	for _, k := range kinds {
		d, ok := l.descriptors[k]
		if !ok {
			continue
		}
		s := slotFor(rec, k)
		s.clamp(d)
		if elapsed(*s.last, now, d.Window) {
			s.reset(d, now)
			reset = append(reset, k)
		}
	}
	if len(reset) == 0 {
		return Outcome{Status: Noop, PrizeIndex: -1}
	}
	return Outcome{Status: Applied, Reset: reset, PrizeIndex: -1}
}

func (l *Ledger) completeTask(rec *Record, p Params) Outcome {
	task, ok := l.taskIndex[p.TaskID]
	if !ok {
		return rejected("", ReasonUnknownTask)
	}
	if status, seen := rec.Tasks[task.ID]; seen && status.Completed {
		return Outcome{Status: Noop, PrizeIndex: -1}
	}
	if !p.TaskVerified {
		return rejected("", ReasonTaskNotVerified)
	}
	if rec.Points > math.MaxInt64-task.Points {
		return rejected("", ReasonInvalidAmount)
	}
	if rec.Tasks == nil {
		rec.Tasks = make(map[string]TaskStatus)
	}
	rec.Tasks[task.ID] = TaskStatus{Completed: true, Points: task.Points}
	rec.Points += task.Points
	return Outcome{Status: Applied, Delta: task.Points, PrizeIndex: -1}
}

func elapsed(last int64, now time.Time, window time.Duration) bool {
	return now.UnixMilli()-last >= window.Milliseconds()
}
