package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"tbot/internal/ledger"
	"tbot/internal/worker"
)

const (
	TypeRewardHistory = "reward:history"
	QueueHistory      = "history"
)

// RewardEvent describes one persisted claim that credited points.
type RewardEvent struct {
	UserID string        `json:"user_id"`
	Action ledger.Action `json:"action"`
	Reward ledger.Kind   `json:"reward,omitempty"`
	Delta  int64         `json:"delta"`
	Points int64         `json:"points"` // Balance after the claim
	At     int64         `json:"at"`     // Unix ms
}

// RewardTx is a Structure designed to keep the history of credited rewards
type RewardTx struct {
	CreatedAt time.Time `json:"created_at"`
	Txid      uint      `json:"txid" gorm:"primaryKey;autoIncrement:true"`
	UserId    string    `json:"user_id" gorm:"index"`
	Action    string    `json:"action"`
	Reward    string    `json:"reward"`
	Delta     int64     `json:"delta"`
	Points    int64     `json:"points"`
	At        int64     `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev RewardEvent) error
}

// HistorySink persists reward events.
type HistorySink interface {
	Write(ctx context.Context, ev RewardEvent) error
}

type GormHistory struct {
	Db *gorm.DB
}

func (h GormHistory) Write(ctx context.Context, ev RewardEvent) error {
	return h.Db.WithContext(ctx).Create(&RewardTx{
		UserId: ev.UserID,
		Action: string(ev.Action),
		Reward: string(ev.Reward),
		Delta:  ev.Delta,
		Points: ev.Points,
		At:     ev.At,
	}).Error
}

// LogHistory writes events to the log when no database is configured.
type LogHistory struct {
	Log Logger
}

func (h LogHistory) Write(_ context.Context, ev RewardEvent) error {
	h.Log.Info(fmt.Sprintf("reward: user=%s action=%s reward=%s delta=%d points=%d", ev.UserID, ev.Action, ev.Reward, ev.Delta, ev.Points))
	return nil
}

type AsynqPublisher struct {
	Client *asynq.Client
}

func (p AsynqPublisher) Publish(ctx context.Context, ev RewardEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.Client.EnqueueContext(ctx, asynq.NewTask(TypeRewardHistory, payload), asynq.Queue(QueueHistory), asynq.MaxRetry(5))
	return err
}

// HandleRewardHistory is the asynq handler behind TypeRewardHistory.
func HandleRewardHistory(sink HistorySink) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var ev RewardEvent
		if err := json.Unmarshal(t.Payload(), &ev); err != nil {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return sink.Write(ctx, ev)
	}
}

// PoolPublisher writes events from the in-process worker pool.
type PoolPublisher struct {
	Pool *worker.Pool
	Sink HistorySink
	Log  Logger
}

func (p PoolPublisher) Publish(_ context.Context, ev RewardEvent) error {
	return p.Pool.Submit(worker.TaskFunc(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := p.Sink.Write(ctx, ev); err != nil {
			p.Log.Error(fmt.Sprintf("history: user %s: %v", ev.UserID, err))
		}
	}))
}

type discard struct{}

func (discard) Publish(context.Context, RewardEvent) error { return nil }
