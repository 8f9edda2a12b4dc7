package scheduler

import "slices"

// taskQueue orders tasks by descending priority. A task is inserted before
// the first entry with strictly lower priority, so equal priorities stay FIFO.
// Callers hold Scheduler.mu.
type taskQueue struct {
	tasks []*task
}

func (q *taskQueue) push(t *task) {
	i := len(q.tasks)
	for j, queued := range q.tasks {
		if queued.priority < t.priority {
			i = j
			break
		}
	}
	q.tasks = slices.Insert(q.tasks, i, t)
}

func (q *taskQueue) pop() *task {
	if len(q.tasks) == 0 {
		return nil
	}
	t := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return t
}

func (q *taskQueue) remove(t *task) bool {
	i := slices.Index(q.tasks, t)
	if i < 0 {
		return false
	}
	q.tasks = slices.Delete(q.tasks, i, i+1)
	return true
}

// takeAll empties the queue and returns its tasks in admission order.
func (q *taskQueue) takeAll() []*task {
	tasks := q.tasks
	q.tasks = nil
	return tasks
}

func (q *taskQueue) len() int {
	return len(q.tasks)
}
