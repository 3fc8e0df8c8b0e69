package ledger

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func first(n int) int { return 0 }

func mustApply(t *testing.T, l *Ledger, rec Record, now time.Time, a Action, p Params) (Record, Outcome) {
	t.Helper()
	next, out := l.Apply(rec, now, a, p)
	if out.Status == Applied && next.Points < rec.Points {
		t.Fatalf("%s decreased points %d -> %d", a, rec.Points, next.Points)
	}
	return next, out
}

func TestNewRecordDefaults(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")
	if rec.Points != 0 || rec.Spin.Attempts != SpinMaxAttempts || rec.Quiz.Attempts != QuizMaxAttempts ||
		rec.LuckyBox.Attempts != LuckyBoxAttempts || rec.Scratch.Claims != 0 {
		t.Fatalf("unexpected defaults: %+v", rec)
	}
	if rec.Spin.LastEvent != 0 || rec.DailyBonus.LastClaim != 0 {
		t.Fatalf("timestamps not zero: %+v", rec)
	}
	if len(rec.Tasks) != 3 || rec.Tasks[TaskYoutube].Points != 300 || rec.Tasks[TaskYoutube].Completed {
		t.Fatalf("unexpected tasks: %+v", rec.Tasks)
	}
}

func TestDailyBonusScenario(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")

	rec, out := mustApply(t, l, rec, t0, ActionClaimDailyBonus, Params{})
	if out.Status != Applied || rec.Points != 500 || out.Delta != 500 {
		t.Fatalf("first claim: %+v points=%d", out, rec.Points)
	}
	if rec.DailyBonus.LastClaim != t0.UnixMilli() {
		t.Fatalf("last_claim = %d", rec.DailyBonus.LastClaim)
	}

	again, out := mustApply(t, l, rec, t0.Add(time.Second), ActionClaimDailyBonus, Params{})
	if out.Status != Rejected || out.Reason != ReasonAlreadyClaimed || again.Points != 500 {
		t.Fatalf("second claim: %+v points=%d", out, again.Points)
	}
}

func TestSpinScenario(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")
	options := []int64{10, 20, 30}
	var total int64
	for i := 0; i < 5; i++ {
		before := rec.Spin.Attempts
		var out Outcome
		rec, out = mustApply(t, l, rec, t0.Add(time.Duration(i)*time.Minute), ActionSpin, Params{PrizeOptions: options})
		if out.Status != Applied {
			t.Fatalf("spin %d: %+v", i, out)
		}
		if rec.Spin.Attempts != before-1 {
			t.Fatalf("spin %d: attempts %d -> %d", i, before, rec.Spin.Attempts)
		}
		if options[out.PrizeIndex] != out.Delta {
			t.Fatalf("spin %d: delta %d does not match option %d", i, out.Delta, out.PrizeIndex)
		}
		total += out.Delta
	}
	if rec.Spin.Attempts != 0 || rec.Points != total {
		t.Fatalf("after five spins: attempts=%d points=%d total=%d", rec.Spin.Attempts, rec.Points, total)
	}

	_, out := mustApply(t, l, rec, t0.Add(time.Hour), ActionSpin, Params{PrizeOptions: options})
	if out.Status != Rejected || out.Reason != ReasonNoAttemptsLeft {
		t.Fatalf("sixth spin: %+v", out)
	}
}

func TestSpinPicksIndex(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")
	rec, out := l.Apply(rec, t0, ActionSpin, Params{PrizeOptions: []int64{10, 20, 30}, Pick: func(n int) int { return 2 }})
	if out.Delta != 30 || out.PrizeIndex != 2 || rec.Points != 30 {
		t.Fatalf("out=%+v points=%d", out, rec.Points)
	}
}

func TestSpinInvalidOptions(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")
	for _, options := range [][]int64{nil, {10, -1}} {
		next, out := l.Apply(rec, t0, ActionSpin, Params{PrizeOptions: options})
		if out.Status != Rejected || out.Reason != ReasonInvalidPrizeOptions {
			t.Fatalf("%v: %+v", options, out)
		}
		if next.Spin.Attempts != SpinMaxAttempts {
			t.Fatalf("%v: attempts consumed", options)
		}
	}
}

func TestScratchCardScenario(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")
	p := Params{Game: KindScratch, PointsGained: 100}

	rec, out := mustApply(t, l, rec, t0, ActionClaimGamePrize, p)
	if out.Status != Applied || rec.Scratch.Claims != 1 || rec.Points != 100 {
		t.Fatalf("first: %+v %+v", out, rec.Scratch)
	}
	rec, out = mustApply(t, l, rec, t0.Add(time.Hour), ActionClaimGamePrize, p)
	if out.Status != Rejected || out.Reason != ReasonAlreadyClaimed || rec.Points != 100 {
		t.Fatalf("second: %+v", out)
	}
	rec, out = mustApply(t, l, rec, t0.Add(DefaultWindow), ActionClaimGamePrize, p)
	if out.Status != Applied || rec.Scratch.Claims != 1 || rec.Points != 200 {
		t.Fatalf("after window: %+v %+v points=%d", out, rec.Scratch, rec.Points)
	}
}

func TestWindowBoundary(t *testing.T) {
	l := Default()
	tests := []struct {
		name   string
		action Action
		params Params
	}{
		{"daily bonus", ActionClaimDailyBonus, Params{}},
		{"scratch card", ActionClaimGamePrize, Params{Game: KindScratch, PointsGained: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := l.Apply(l.NewRecord("42"), t0, tt.action, tt.params)
			if out.Status != Applied {
				t.Fatalf("claim at T: %+v", out)
			}
			if _, out := l.Apply(rec, t0.Add(DefaultWindow-time.Millisecond), tt.action, tt.params); out.Status != Rejected {
				t.Fatalf("claim at T+24h-1ms: %+v", out)
			}
			if _, out := l.Apply(rec, t0.Add(DefaultWindow), tt.action, tt.params); out.Status != Applied {
				t.Fatalf("claim at T+24h: %+v", out)
			}
		})
	}
}

func TestLuckyBox(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")
	p := Params{Game: KindLuckyBox, PointsGained: 40}
	for i := 0; i < LuckyBoxAttempts; i++ {
		var out Outcome
		rec, out = mustApply(t, l, rec, t0.Add(time.Duration(i)*time.Hour), ActionClaimGamePrize, p)
		if out.Status != Applied {
			t.Fatalf("open %d: %+v", i, out)
		}
	}
	last := t0.Add(time.Duration(LuckyBoxAttempts-1) * time.Hour)
	if rec.LuckyBox.Attempts != 0 || rec.LuckyBox.LastEvent != last.UnixMilli() {
		t.Fatalf("exhausted state: %+v", rec.LuckyBox)
	}
	if _, out := l.Apply(rec, last.Add(DefaultWindow-time.Millisecond), ActionClaimGamePrize, p); out.Reason != ReasonNoAttemptsLeft {
		t.Fatalf("before window: %+v", out)
	}
	rec, out := l.Apply(rec, last.Add(DefaultWindow), ActionClaimGamePrize, p)
	if out.Status != Applied || rec.LuckyBox.Attempts != LuckyBoxAttempts-1 {
		t.Fatalf("after window: %+v %+v", out, rec.LuckyBox)
	}
}

func TestGamePrizeValidation(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")
	tests := []struct {
		name   string
		params Params
		want   Reason
	}{
		{"unknown game", Params{Game: "roulette", PointsGained: 10}, ReasonUnknownRewardType},
		{"empty game", Params{PointsGained: 10}, ReasonUnknownRewardType},
		{"zero amount", Params{Game: KindScratch}, ReasonInvalidAmount},
		{"negative amount", Params{Game: KindLuckyBox, PointsGained: -5}, ReasonInvalidAmount},
		{"over cap", Params{Game: KindScratch, PointsGained: DefaultMaxAmount + 1}, ReasonInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, out := l.Apply(rec, t0, ActionClaimGamePrize, tt.params)
			if out.Status != Rejected || out.Reason != tt.want {
				t.Fatalf("out = %+v, want %s", out, tt.want)
			}
			if out.Reason.Quota() {
				t.Fatalf("%s classified as quota", out.Reason)
			}
			if next.Points != 0 || next.Scratch.Claims != 0 || next.LuckyBox.Attempts != LuckyBoxAttempts {
				t.Fatalf("record mutated: %+v", next)
			}
		})
	}
}

func TestQuizAttempt(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")
	rec, out := l.Apply(rec, t0, ActionQuiz, Params{PointsGained: 25})
	if out.Status != Applied || rec.Quiz.Attempts != QuizMaxAttempts-1 || rec.Points != 25 {
		t.Fatalf("out=%+v rec=%+v", out, rec)
	}
}

func TestFullResetIdempotent(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")
	rec, _ = l.Apply(rec, t0, ActionSpin, Params{PrizeOptions: []int64{10}, Pick: first})

	later := t0.Add(2 * DefaultWindow)
	rec, out := l.Apply(rec, later, ActionFullReset, Params{})
	if out.Status != Applied || len(out.Reset) != 4 {
		t.Fatalf("first reset: %+v", out)
	}
	if rec.Spin.Attempts != SpinMaxAttempts || rec.Spin.LastEvent != later.UnixMilli() {
		t.Fatalf("spin not restored: %+v", rec.Spin)
	}

	again, out := l.Apply(rec, later, ActionFullReset, Params{})
	if out.Status != Noop || out.Mutated() {
		t.Fatalf("second reset: %+v", out)
	}
	if again.Spin != rec.Spin || again.Points != rec.Points {
		t.Fatal("noop changed the record")
	}
}

func TestResetNotDue(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")
	rec, _ = l.Apply(rec, t0, ActionSpin, Params{PrizeOptions: []int64{10}, Pick: first})
	rec, _ = l.Apply(rec, t0, ActionQuizReset, Params{})

	_, out := l.Apply(rec, t0.Add(time.Hour), ActionSpinReset, Params{})
	if out.Status != Noop {
		t.Fatalf("spin reset before window: %+v", out)
	}
	next, out := l.Apply(rec, t0.Add(DefaultWindow), ActionSpinReset, Params{})
	if out.Status != Applied || len(out.Reset) != 1 || out.Reset[0] != KindSpin || next.Spin.Attempts != SpinMaxAttempts {
		t.Fatalf("spin reset after window: %+v %+v", out, next.Spin)
	}
}

func TestFullResetLeavesBonus(t *testing.T) {
	l := Default()
	rec, _ := l.Apply(l.NewRecord("42"), t0, ActionClaimDailyBonus, Params{})
	later := t0.Add(3 * DefaultWindow)
	next, _ := l.Apply(rec, later, ActionFullReset, Params{})
	if next.DailyBonus != rec.DailyBonus {
		t.Fatalf("bonus touched by reset: %+v", next.DailyBonus)
	}
	if !l.Available(next, KindDailyBonus, later) {
		t.Fatal("bonus should be claimable")
	}
}

func TestAttemptsNeverNegative(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")
	rec.Spin.Attempts = -3
	rec.Spin.LastEvent = t0.UnixMilli()
	next, out := l.Apply(rec, t0, ActionSpin, Params{PrizeOptions: []int64{1}})
	if out.Reason != ReasonNoAttemptsLeft || next.Spin.Attempts < -3 {
		t.Fatalf("out=%+v spin=%+v", out, next.Spin)
	}
}

func TestApplyDoesNotAliasInput(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")
	next, out := l.Apply(rec, t0, ActionVerifySocialTask, Params{TaskID: TaskTelegramChannel, TaskVerified: true})
	if out.Status != Applied || !next.Tasks[TaskTelegramChannel].Completed {
		t.Fatalf("out=%+v", out)
	}
	if rec.Tasks[TaskTelegramChannel].Completed {
		t.Fatal("input record was modified")
	}
}

func TestSocialTasks(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")

	if _, out := l.Apply(rec, t0, ActionVerifySocialTask, Params{TaskID: "NOPE", TaskVerified: true}); out.Reason != ReasonUnknownTask {
		t.Fatalf("unknown task: %+v", out)
	}
	if _, out := l.Apply(rec, t0, ActionVerifySocialTask, Params{TaskID: TaskTelegramGroup}); out.Reason != ReasonTaskNotVerified {
		t.Fatalf("unverified task: %+v", out)
	}
	rec, out := l.Apply(rec, t0, ActionVerifySocialTask, Params{TaskID: TaskTelegramGroup, TaskVerified: true})
	if out.Status != Applied || out.Delta != 100 || rec.Points != 100 {
		t.Fatalf("verified task: %+v points=%d", out, rec.Points)
	}
	rec, out = l.Apply(rec, t0, ActionVerifySocialTask, Params{TaskID: TaskTelegramGroup, TaskVerified: true})
	if out.Status != Noop || rec.Points != 100 {
		t.Fatalf("repeat task: %+v points=%d", out, rec.Points)
	}
}

func TestUnknownAction(t *testing.T) {
	l := Default()
	if _, out := l.Apply(l.NewRecord("42"), t0, "launch_rocket", Params{}); out.Reason != ReasonUnknownAction {
		t.Fatalf("out=%+v", out)
	}
}

func TestSnapshot(t *testing.T) {
	l := Default()
	rec := l.NewRecord("42")
	rec, _ = l.Apply(rec, t0, ActionSpin, Params{PrizeOptions: []int64{10}, Pick: first})
	rec, _ = l.Apply(rec, t0, ActionClaimDailyBonus, Params{})

	byKind := map[Kind]Availability{}
	for _, a := range l.Snapshot(rec, t0.Add(time.Hour)) {
		byKind[a.Kind] = a
	}
	spin := byKind[KindSpin]
	if spin.Remaining != SpinMaxAttempts-1 || spin.ResetsAt != t0.Add(DefaultWindow).UnixMilli() {
		t.Fatalf("spin: %+v", spin)
	}
	if bonus := byKind[KindDailyBonus]; bonus.Remaining != 0 || bonus.Max != 1 {
		t.Fatalf("bonus: %+v", bonus)
	}
	if quiz := byKind[KindQuiz]; quiz.Remaining != QuizMaxAttempts || quiz.ResetsAt != 0 {
		t.Fatalf("quiz: %+v", quiz)
	}

	for _, a := range l.Snapshot(rec, t0.Add(DefaultWindow)) {
		if a.Remaining != a.Max {
			t.Fatalf("%s not restored in snapshot: %+v", a.Kind, a)
		}
	}
	if rec.Spin.Attempts != SpinMaxAttempts-1 {
		t.Fatal("snapshot mutated the record")
	}
}

func TestNewRejectsBadDescriptors(t *testing.T) {
	bad := [][]Descriptor{
		{{Kind: KindSpin, Policy: AttemptCounted, Max: 0, Window: time.Hour, Award: AwardPrizeOptions}},
		{{Kind: "wheel", Policy: AttemptCounted, Max: 1, Window: time.Hour, Award: AwardPrizeOptions}},
		{{Kind: KindDailyBonus, Policy: CountCapped, Max: 1, Window: time.Hour, Award: AwardFixed}},
		{
			{Kind: KindSpin, Policy: AttemptCounted, Max: 1, Window: time.Hour, Award: AwardPrizeOptions},
			{Kind: KindSpin, Policy: AttemptCounted, Max: 1, Window: time.Hour, Award: AwardPrizeOptions},
		},
	}
	for i, descs := range bad {
		if _, err := New(descs, nil); err == nil {
			t.Fatalf("case %d accepted", i)
		}
	}
}
