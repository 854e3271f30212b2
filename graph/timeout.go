package graph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// executeStepWithTimeout runs step against snapshot with the engine's
// per-step deadline and converts every abnormal outcome into a failed
// StepResult:
//   - a panic becomes error "internal", with the panic value and stack in metadata
//   - an expired deadline becomes error "timeout"
//   - cancellation of the caller's context becomes error "canceled"
//
// The step runs on its own goroutine so a step that ignores its context
// cannot hang the engine. When the deadline fires first, the goroutine is
// abandoned and its eventual result discarded.
func executeStepWithTimeout(
	ctx context.Context,
	step Step,
	snapshot *WorkflowState,
	timeout time.Duration,
) StepResult {
	runCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan StepResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Fail(FailureInternal).
					WithMetadata("panic", fmt.Sprint(r)).
					WithMetadata("stack", string(debug.Stack()))
			}
		}()
		done <- step.Run(runCtx, snapshot)
	}()

	select {
	case res := <-done:
		// A step that returned because its context ended still overran.
		if runCtx.Err() != nil {
			return expired(ctx, runCtx, timeout)
		}
		if !res.Success && res.Error == "" {
			res.Error = FailureUnspecified
		}
		return res
	case <-runCtx.Done():
		return expired(ctx, runCtx, timeout)
	}
}

func expired(parent, runCtx context.Context, timeout time.Duration) StepResult {
	if parent.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return Fail(FailureTimeout).WithMetadata("timeout", timeout.String())
	}
	return Fail(FailureCanceled)
}
