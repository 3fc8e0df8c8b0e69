package rewards

import "context"

// TaskChecker confirms that a user really completed a social task.
type TaskChecker interface {
	Verify(ctx context.Context, taskID, userID string) (bool, error)
}

// AcceptTasks takes the user's word for every task.
type AcceptTasks struct{}

func (AcceptTasks) Verify(context.Context, string, string) (bool, error) {
	return true, nil
}
