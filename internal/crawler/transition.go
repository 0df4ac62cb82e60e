package crawler

import "time"

// ApplyTransition moves job to state and stamps the update onto it. Registries
// call it under their write lock so every backend enforces the same rules.
func ApplyTransition(job *Job, state JobState, update JobUpdate) error {
	if !job.State.CanTransition(state) {
		return TransitionError(job.ID, job.State, state)
	}
	at := update.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	job.State = state
	if state == JobStateRunning && job.StartedAt == nil {
		job.StartedAt = &at
	}
	if state.Terminal() {
		job.FinishedAt = &at
		job.Error = update.Error
	}
	if len(update.Result) > 0 {
		job.Result = update.Result
	}
	return nil
}
