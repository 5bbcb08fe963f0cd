package bot

import "sync"

// updateQueue runs jobs one at a time per key while different keys
// proceed independently. Keeps a single user's events in arrival order
// without serializing the whole bot.
type updateQueue struct {
	mu      sync.Mutex
	pending map[int64][]func()
	active  map[int64]bool
	wg      sync.WaitGroup
}

func newUpdateQueue() *updateQueue {
	return &updateQueue{
		pending: make(map[int64][]func()),
		active:  make(map[int64]bool),
	}
}

// enqueue schedules a job behind any jobs already queued for the key.
func (q *updateQueue) enqueue(key int64, job func()) {
	q.mu.Lock()
	q.pending[key] = append(q.pending[key], job)
	if q.active[key] {
		q.mu.Unlock()
		return
	}
	q.active[key] = true
	q.wg.Add(1)
	q.mu.Unlock()

	go q.drain(key)
}

func (q *updateQueue) drain(key int64) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		jobs := q.pending[key]
		if len(jobs) == 0 {
			delete(q.pending, key)
			q.active[key] = false
			q.mu.Unlock()
			return
		}
		job := jobs[0]
		q.pending[key] = jobs[1:]
		q.mu.Unlock()

		job()
	}
}

// wait blocks until every queued job has finished.
func (q *updateQueue) wait() {
	q.wg.Wait()
}
