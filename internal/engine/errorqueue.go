package engine

import (
	"sync"

	"github.com/reduxgo/redux/pkg/api"
)

// exceptionQueue is the bounded FIFO of user-facing exceptions kept for UI
// consumption. When full, the oldest entry is dropped.
type exceptionQueue struct {
	mu    sync.Mutex
	limit int
	items []*api.UserException
}

func newExceptionQueue(limit int) *exceptionQueue {
	if limit <= 0 {
		limit = 10
	}
	return &exceptionQueue{limit: limit}
}

func (q *exceptionQueue) push(e *api.UserException) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == q.limit {
		q.items = q.items[1:]
	}
	q.items = append(q.items, e)
}

func (q *exceptionQueue) pop() (*api.UserException, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e, true
}

func (q *exceptionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
