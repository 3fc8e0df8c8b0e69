package ledger

import (
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindSpin       Kind = "spin"
	KindQuiz       Kind = "quiz"
	KindLuckyBox   Kind = "lucky_box"
	KindScratch    Kind = "scratch_card"
	KindDailyBonus Kind = "daily_bonus"
)

type Policy int

const (
	// AttemptCounted rewards decrement remaining attempts; a reset restores them to Max.
	AttemptCounted Policy = iota + 1
	// CountCapped rewards count claims up to Max; a reset zeroes the counter.
	CountCapped
)

type Award int

const (
	AwardFixed Award = iota + 1
	AwardPrizeOptions
	AwardAmount
)

const (
	DefaultWindow    = 24 * time.Hour
	DailyBonusPoints = 500
	DefaultMaxAmount = 1000
	SpinMaxAttempts  = 5
	QuizMaxAttempts  = 5
	LuckyBoxAttempts = 3
	ScratchClaimsCap = 1
)

// Descriptor drives the generic claim/reset algorithm for one reward type.
type Descriptor struct {
	Kind        Kind
	Policy      Policy
	Max         int
	Window      time.Duration
	Award       Award
	FixedAmount int64 // AwardFixed
	MaxAmount   int64 // AwardAmount upper bound, 0 means unbounded
}

func (d Descriptor) validate() error {
	switch {
	case d.Kind == "":
		return errors.New("descriptor without kind")
	case d.Policy != AttemptCounted && d.Policy != CountCapped:
		return fmt.Errorf("%s: unknown policy %d", d.Kind, d.Policy)
	case d.Max < 1:
		return fmt.Errorf("%s: max must be positive", d.Kind)
	case d.Window <= 0:
		return fmt.Errorf("%s: window must be positive", d.Kind)
	case d.Award == AwardFixed && d.FixedAmount <= 0:
		return fmt.Errorf("%s: fixed award must be positive", d.Kind)
	case d.Award != AwardFixed && d.Award != AwardPrizeOptions && d.Award != AwardAmount:
		return fmt.Errorf("%s: unknown award %d", d.Kind, d.Award)
	}
	return nil
}

func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{Kind: KindSpin, Policy: AttemptCounted, Max: SpinMaxAttempts, Window: DefaultWindow, Award: AwardPrizeOptions},
		{Kind: KindQuiz, Policy: AttemptCounted, Max: QuizMaxAttempts, Window: DefaultWindow, Award: AwardAmount, MaxAmount: DefaultMaxAmount},
		{Kind: KindLuckyBox, Policy: AttemptCounted, Max: LuckyBoxAttempts, Window: DefaultWindow, Award: AwardAmount, MaxAmount: DefaultMaxAmount},
		{Kind: KindScratch, Policy: CountCapped, Max: ScratchClaimsCap, Window: DefaultWindow, Award: AwardAmount, MaxAmount: DefaultMaxAmount},
		{Kind: KindDailyBonus, Policy: CountCapped, Max: 1, Window: DefaultWindow, Award: AwardFixed, FixedAmount: DailyBonusPoints},
	}
}

// Task is a one-time social task.
type Task struct {
	ID     string
	Points int64
}

const (
	TaskTelegramChannel = "TG_CH"
	TaskTelegramGroup   = "TG_GP"
	TaskYoutube         = "YT_SUB"
)

func DefaultTasks() []Task {
	return []Task{
		{ID: TaskTelegramChannel, Points: 150},
		{ID: TaskTelegramGroup, Points: 100},
		{ID: TaskYoutube, Points: 300},
	}
}
