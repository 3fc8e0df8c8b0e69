package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"tbot/internal/ledger"
	"tbot/internal/rewards"
)

type TbotRequest struct {
	Action       string  `json:"action"`
	InitData     string  `json:"init_data"`
	TaskID       string  `json:"task_id"`
	GameID       string  `json:"game_id"`
	PrizeOptions []int64 `json:"prize_options"`
	PointsGained int64   `json:"points_gained"`
}

// response action names per request action
var replies = map[ledger.Action]string{
	ledger.ActionInitialData:      "initial_data",
	ledger.ActionClaimDailyBonus:  "daily_bonus_claimed",
	ledger.ActionSpin:             "spin_result",
	ledger.ActionQuiz:             "quiz_result",
	ledger.ActionClaimGamePrize:   "game_prize_claimed",
	ledger.ActionSpinReset:        "attempts_refreshed",
	ledger.ActionQuizReset:        "attempts_refreshed",
	ledger.ActionFullReset:        "attempts_refreshed",
	ledger.ActionVerifySocialTask: "task_verified",
}

func TbotHandler(c *gin.Context) {
	app := c.MustGet("app").(*rewards.App)

	var body TbotRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	action := ledger.Action(body.Action)
	res, err := app.Service.Handle(c.Request.Context(), rewards.Request{
		Action:       action,
		InitData:     body.InitData,
		TaskID:       body.TaskID,
		GameID:       body.GameID,
		PrizeOptions: body.PrizeOptions,
		PointsGained: body.PointsGained,
	})
	if err != nil {
		replyError(c, app, action, body, err)
		return
	}
	c.JSON(http.StatusOK, reply(res, body))
}

func replyError(c *gin.Context, app *rewards.App, action ledger.Action, body TbotRequest, err error) {
	var re *rewards.Error
	if !errors.As(err, &re) {
		re = &rewards.Error{Kind: rewards.KindInternal, Err: err}
	}
	switch re.Kind {
	case rewards.KindAuth:
		c.JSON(re.Kind.Status(), gin.H{"error": re.Message()})
	case rewards.KindValidation, rewards.KindQuota:
		h := gin.H{"success": false, "reason": re.Reason, "error": re.Message()}
		if name, ok := replies[action]; ok {
			h["action"] = name
		}
		if action == ledger.ActionVerifySocialTask {
			h["task_id"] = body.TaskID
		}
		if action == ledger.ActionClaimGamePrize {
			h["game_id"] = body.GameID
		}
		c.JSON(re.Kind.Status(), h)
	default:
		if app.Log != nil {
			app.Log.Error(fmt.Sprintf("tbot_handler %s [%s]: %v", action, c.GetString("request_id"), err))
		}
		c.JSON(re.Kind.Status(), gin.H{"error": re.Message()})
	}
}

func reply(res *rewards.Result, body TbotRequest) gin.H {
	rec := res.Record
	out := res.Outcome
	h := gin.H{"action": replies[res.Action]}
	switch res.Action {
	case ledger.ActionInitialData:
		h["user"] = res.Claim
		h["points"] = rec.Points
		h["spin_data"] = rec.Spin
		h["quiz_data"] = rec.Quiz
		h["luckybox_data"] = rec.LuckyBox
		h["scratch_data"] = rec.Scratch
		h["daily_bonus"] = rec.DailyBonus
		h["tasks_status"] = rec.Tasks
		h["availability"] = res.Snapshot
	case ledger.ActionClaimDailyBonus:
		h["success"] = true
		h["points_gained"] = out.Delta
		h["new_points"] = rec.Points
		h["last_claim"] = rec.DailyBonus.LastClaim
	case ledger.ActionSpin:
		h["success"] = true
		h["points_won"] = out.Delta
		h["prize_index"] = out.PrizeIndex
		h["new_points"] = rec.Points
		h["attempts_left"] = rec.Spin.Attempts
		h["last_spin"] = rec.Spin.LastEvent
	case ledger.ActionQuiz:
		h["success"] = true
		h["points_gained"] = out.Delta
		h["new_points"] = rec.Points
		h["attempts_left"] = rec.Quiz.Attempts
	case ledger.ActionClaimGamePrize:
		h["success"] = true
		h["game_id"] = out.Kind
		h["points_gained"] = out.Delta
		h["new_points"] = rec.Points
		if out.Kind == ledger.KindLuckyBox {
			h["attempts_left"] = rec.LuckyBox.Attempts
		} else {
			h["claims"] = rec.Scratch.Claims
		}
	case ledger.ActionSpinReset, ledger.ActionQuizReset, ledger.ActionFullReset:
		if !out.Mutated() {
			h["action"] = "no_reset_needed"
		} else {
			h["reset"] = out.Reset
			h["spin_data"] = rec.Spin
			h["quiz_data"] = rec.Quiz
			if res.Action == ledger.ActionFullReset {
				h["luckybox_data"] = rec.LuckyBox
				h["scratch_data"] = rec.Scratch
			}
		}
		h["daily_bonus_available"] = bonusAvailable(res.Snapshot)
	case ledger.ActionVerifySocialTask:
		h["success"] = true
		h["task_id"] = body.TaskID
		h["points_gained"] = out.Delta
		h["new_points"] = rec.Points
	}
	return h
}

func bonusAvailable(snapshot []ledger.Availability) bool {
	for _, a := range snapshot {
		if a.Kind == ledger.KindDailyBonus {
			return a.Remaining > 0
		}
	}
	return false
}
