package rewards

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"tbot/internal/initdata"
	"tbot/internal/ledger"
	"tbot/internal/store"
)

// maxCycles bounds the read-modify-write retries after a version conflict.
const maxCycles = 3

var (
	errMissingInitData = errors.New("missing init_data")
	errTooManyConflict = errors.New("record kept changing during update")
)

// Request is one client call.
type Request struct {
	Action       ledger.Action
	InitData     string
	TaskID       string
	GameID       string
	PrizeOptions []int64
	PointsGained int64
}

// Result is the state after a successful (or no-op) request.
type Result struct {
	Action   ledger.Action
	Claim    initdata.Claim
	Record   ledger.Record
	Outcome  ledger.Outcome
	Snapshot []ledger.Availability
	Now      time.Time
}

type Service struct {
	verifier *initdata.Verifier
	ledger   *ledger.Ledger
	store    store.Store
	locker   store.Locker
	tasks    TaskChecker
	events   Publisher
	log      Logger
	prizes   map[ledger.Kind][]int64
	timeout  time.Duration
	now      func() time.Time
	pick     func(n int) int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPick replaces the random prize choice.
func WithPick(pick func(n int) int) Option {
	return func(s *Service) { s.pick = pick }
}

func WithTaskChecker(tc TaskChecker) Option {
	return func(s *Service) { s.tasks = tc }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithLogger(l Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithLocker(l store.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithPrizeTables makes the server choose awards for the listed games, ignoring client amounts.
// Tables are expected to pass ValidatePrizeTables.
func WithPrizeTables(tables map[ledger.Kind][]int64) Option {
	return func(s *Service) { s.prizes = tables }
}

// ValidatePrizeTables checks server prize tables against the ledger's award rules.
func ValidatePrizeTables(l *ledger.Ledger, tables map[ledger.Kind][]int64) error {
	for k, amounts := range tables {
		d, ok := l.Descriptor(k)
		if !ok {
			return fmt.Errorf("prize table for unknown game %q", k)
		}
		switch d.Award {
		case ledger.AwardPrizeOptions, ledger.AwardAmount:
		default:
			return fmt.Errorf("prize table for %s: award is fixed", k)
		}
		if len(amounts) == 0 {
			return fmt.Errorf("prize table for %s is empty", k)
		}
		for _, v := range amounts {
			if v < 0 || (d.Award == ledger.AwardAmount && (v == 0 || (d.MaxAmount > 0 && v > d.MaxAmount))) {
				return fmt.Errorf("prize table for %s: amount %d out of range", k, v)
			}
		}
	}
	return nil
}

func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func NewService(v *initdata.Verifier, l *ledger.Ledger, st store.Store, opts ...Option) *Service {
	s := &Service{
		verifier: v,
		ledger:   l,
		store:    st,
		locker:   store.NewKeyedMutex(),
		tasks:    AcceptTasks{},
		events:   discard{},
		log:      nopLogger{},
		timeout:  5 * time.Second,
		now:      time.Now,
		pick:     rand.Intn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}

// Handle authenticates the request, applies the action to the caller's record and persists it.
func (s *Service) Handle(ctx context.Context, req Request) (*Result, error) {
	if req.InitData == "" {
		return nil, &Error{Kind: KindAuth, Err: errMissingInitData}
	}
	claim, err := s.verifier.Verify(req.InitData)
	if err != nil {
		return nil, &Error{Kind: KindAuth, Err: err}
	}
	if !known(req.Action) {
		return nil, rejection(ledger.ReasonUnknownAction)
	}
	params := s.params(req)

	lockCtx, cancel := context.WithTimeout(ctx, s.timeout)
	unlock, err := s.locker.Lock(lockCtx, claim.ID)
	cancel()
	if err != nil {
		return nil, &Error{Kind: KindStore, Err: err}
	}
	defer unlock()

	now := s.now()
	checked := false
	for cycle := 0; cycle < maxCycles; cycle++ {
		rec, err := s.load(ctx, claim.ID)
		if err != nil {
			return nil, &Error{Kind: KindStore, Err: err}
		}
		if !checked && s.needsCheck(rec, req) {
			params.TaskVerified, err = s.tasks.Verify(ctx, req.TaskID, claim.ID)
			if err != nil {
				return nil, &Error{Kind: KindInternal, Err: fmt.Errorf("verify task %s: %w", req.TaskID, err)}
			}
			checked = true
		}
		next, out := s.ledger.Apply(rec, now, req.Action, params)
		if out.Status == ledger.Rejected {
			return nil, rejection(out.Reason)
		}
		if out.Mutated() {
			err = s.update(ctx, next)
			if errors.Is(err, store.ErrConflict) {
				s.log.Warn(fmt.Sprintf("rewards: version conflict for %s, retrying", claim.ID))
				continue
			}
			if err != nil {
				return nil, &Error{Kind: KindStore, Err: err}
			}
			next.Version++
		}
		if out.Delta > 0 {
			s.publish(ctx, RewardEvent{
				UserID: claim.ID,
				Action: req.Action,
				Reward: out.Kind,
				Delta:  out.Delta,
				Points: next.Points,
				At:     now.UnixMilli(),
			})
		}
		return &Result{
			Action:   req.Action,
			Claim:    claim,
			Record:   next,
			Outcome:  out,
			Snapshot: s.ledger.Snapshot(next, now),
			Now:      now,
		}, nil
	}
	return nil, &Error{Kind: KindStore, Err: errTooManyConflict}
}

func known(a ledger.Action) bool {
	switch a {
	case ledger.ActionInitialData, ledger.ActionClaimDailyBonus, ledger.ActionSpin, ledger.ActionQuiz,
		ledger.ActionClaimGamePrize, ledger.ActionSpinReset, ledger.ActionQuizReset, ledger.ActionFullReset,
		ledger.ActionVerifySocialTask:
		return true
	}
	return false
}

func (s *Service) params(req Request) ledger.Params {
	p := ledger.Params{
		Game:         ledger.Kind(req.GameID),
		PrizeOptions: req.PrizeOptions,
		PointsGained: req.PointsGained,
		TaskID:       req.TaskID,
		Pick:         s.pick,
	}
	switch req.Action {
	case ledger.ActionSpin:
		if table, ok := s.prizes[ledger.KindSpin]; ok {
			p.PrizeOptions = table
		}
	case ledger.ActionQuiz:
		p.PointsGained = s.serverAmount(ledger.KindQuiz, p.PointsGained)
	case ledger.ActionClaimGamePrize:
		p.PointsGained = s.serverAmount(p.Game, p.PointsGained)
	}
	return p
}

// needsCheck reports whether the task is known and still open for this record.
// Completed tasks are answered from the record without asking the checker.
func (s *Service) needsCheck(rec ledger.Record, req Request) bool {
	if req.Action != ledger.ActionVerifySocialTask {
		return false
	}
	if _, ok := s.ledger.Task(req.TaskID); !ok {
		return false
	}
	return !rec.Tasks[req.TaskID].Completed
}

func (s *Service) serverAmount(k ledger.Kind, client int64) int64 {
	table := s.prizes[k]
	if len(table) == 0 {
		return client
	}
	return table[s.pick(len(table))%len(table)]
}

// load returns the stored record, creating the default one on first sight.
func (s *Service) load(ctx context.Context, userID string) (ledger.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rec, err := s.store.Get(ctx, userID)
	if !errors.Is(err, store.ErrNotFound) {
		return rec, err
	}
	rec = s.ledger.NewRecord(userID)
	err = s.store.Insert(ctx, rec)
	if errors.Is(err, store.ErrExists) {
		return s.store.Get(ctx, userID)
	}
	return rec, err
}

func (s *Service) update(ctx context.Context, rec ledger.Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.Update(ctx, rec)
}

func (s *Service) publish(ctx context.Context, ev RewardEvent) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Error(fmt.Sprintf("rewards: publish history for %s: %v", ev.UserID, err))
	}
}
