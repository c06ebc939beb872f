package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/logs"
)

// Stage is one discrete, independently retryable unit of pipeline work.
// Run mutates the shared state and reports notes on the result payload.
type Stage interface {
	ID() consts.StageID
	Optional() bool
	Run(ctx context.Context, state *runState, res *StageResult) error
}

// executeStage runs one stage with isolated timing, panic capture and
// error classification. A panic inside a stage becomes that stage's error
// and cannot corrupt the rest of the run.
func executeStage(ctx context.Context, st Stage, state *runState) (res StageResult) {
	res = StageResult{
		Stage:   st.ID(),
		Status:  consts.StageStatusRunning,
		StartAt: time.Now(),
	}
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("stage panic: %v", r)
			}
		}()
		err = st.Run(ctx, state, &res)
	}()
	res.EndAt = time.Now()
	res.DurationMs = res.EndAt.Sub(res.StartAt).Milliseconds()

	switch {
	case err == nil:
		res.Status = consts.StageStatusSuccess
	case isSkip(err):
		res.Status = consts.StageStatusSkipped
		res.ErrorMessage = err.Error()
	default:
		res.Status = consts.StageStatusError
		if ctx.Err() != nil {
			res.ErrorKind = KindCancelled
		} else {
			res.ErrorKind = KindOf(err, defaultKind(st.ID()))
		}
		res.ErrorMessage = err.Error()
		var ke *KindError
		if errors.As(err, &ke) && len(ke.Detail) > 0 {
			if res.Payload == nil {
				res.Payload = map[string]any{}
			}
			for k, v := range ke.Detail {
				res.Payload[k] = v
			}
		}
	}

	logs.Logger.Info().
		Str("run_id", state.run.Id).
		Str("generation_id", state.run.Request.GenerationId).
		Str("stage", st.ID().String()).
		Str("status", res.Status.String()).
		Str("error_kind", res.ErrorKind.String()).
		Int64("duration_ms", res.DurationMs).
		Msg("stage finished")
	return res
}

func isSkip(err error) bool {
	var se *skipError
	return errors.As(err, &se)
}
