package ledger

// Record is the per-identity reward state. Timestamps are unix milliseconds.
type Record struct {
	UserID     string                `json:"user_id"`
	Points     int64                 `json:"points"`
	Spin       AttemptSlot           `json:"spin_data"`
	Quiz       AttemptSlot           `json:"quiz_data"`
	LuckyBox   AttemptSlot           `json:"luckybox_data"`
	Scratch    ClaimSlot             `json:"scratch_data"`
	DailyBonus BonusSlot             `json:"daily_bonus"`
	Tasks      map[string]TaskStatus `json:"tasks_status"`
	Version    int64                 `json:"version"` // bumped by the store on every write
}

// AttemptSlot holds remaining attempts of an attempt-counted reward.
type AttemptSlot struct {
	Attempts  int   `json:"attempts"`
	LastEvent int64 `json:"last_event"`
}

// ClaimSlot holds claims made in the current window of a count-capped reward.
type ClaimSlot struct {
	Claims    int   `json:"claims"`
	LastEvent int64 `json:"last_event"`
}

type BonusSlot struct {
	LastClaim int64 `json:"last_claim"`
}

type TaskStatus struct {
	Completed bool  `json:"completed"`
	Points    int64 `json:"points"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	c := r
	if r.Tasks != nil {
		c.Tasks = make(map[string]TaskStatus, len(r.Tasks))
		for id, status := range r.Tasks {
			c.Tasks[id] = status
		}
	}
	return c
}
