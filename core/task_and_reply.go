package core

// =============================================================================
// Cross-runner helpers
// =============================================================================

// RunNowOrPostTask runs task inline if the caller is runner's bound goroutine
// and no task is currently running there; otherwise it posts task.
func RunNowOrPostTask(runner *RenderTaskRunner, task Task) {
	runner.RunNowOrPost(task)
}

// PostTaskAndReply runs task on target, then posts reply to replyRunner.
// The reply receives whatever GPU flag replyRunner reads when it runs it.
// If task panics, reply is not posted. A nil replyRunner posts task alone.
//
// Typical use: raster work on the render runner, completion callback on the
// UI runner.
func PostTaskAndReply(target *RenderTaskRunner, task Task, reply Task, replyRunner TaskPoster) {
	if replyRunner == nil || isNilTask(reply) {
		target.PostTask(task)
		return
	}
	if isNilTask(task) {
		target.PostTask(task)
		return
	}

	target.PostTaskNamed(resolveTaskName(task, ""), &replyingTask{
		task:        task,
		reply:       reply,
		replyRunner: replyRunner,
	})
}

type replyingTask struct {
	task        Task
	reply       Task
	replyRunner TaskPoster
}

// Run lets a panic from the wrapped task propagate so the runner reports it;
// the reply is posted only on a normal return.
func (t *replyingTask) Run(isGPUDisabled bool) {
	t.task.Run(isGPUDisabled)
	t.replyRunner.PostTask(t.reply)
}
