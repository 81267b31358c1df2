// Package taskqueue is the durable, priority-ordered task queue backing the
// scheduler (spec §4.4). Tasks are rows in Postgres; claiming uses
// SELECT ... FOR UPDATE SKIP LOCKED so multiple orchestrator replicas can
// poll the same table without double-dispatching a task.
package taskqueue

import "errors"

// ErrNoTasksAvailable indicates no READY task is currently claimable.
var ErrNoTasksAvailable = errors.New("taskqueue: no tasks available")

// ErrTaskNotFound indicates the referenced task id has no row.
var ErrTaskNotFound = errors.New("taskqueue: task not found")
