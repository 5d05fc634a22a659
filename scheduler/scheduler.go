// Package scheduler runs a single worker goroutine that fires deferred
// callbacks at absolute or relative times, per spec §4.7. The worker/
// WaitGroup/done-flag shutdown shape is grounded on the teacher package's
// saver.go marshaller goroutine (a background loop joined on Close via a
// WaitGroup) and eventsocket's context-driven server loop; task ordering by
// deadline uses container/heap, the correct stdlib tool here since nothing
// in the retrieval pack vendors a timer-wheel or priority-queue library.
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/srtkit/xtransmit/metrics"
)

// Task is a deferred callback. It must not call back into its owning
// Scheduler's public methods re-entrantly, and must not block the worker
// for long, per spec §4.7.
type Task func()

type taskItem struct {
	deadline time.Time
	task     Task
	index    int
}

type taskQueue []*taskItem

func (q taskQueue) Len() int            { return len(q) }
func (q taskQueue) Less(i, j int) bool  { return q[i].deadline.Before(q[j].deadline) }
func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *taskQueue) Push(x interface{}) {
	it := x.(*taskItem)
	it.index = len(*q)
	*q = append(*q, it)
}
func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

// Scheduler runs one worker goroutine that fires due tasks under a
// condition-variable-style wakeup, per spec §4.7.
type Scheduler struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  taskQueue
	done   bool
	wg     sync.WaitGroup
}

// New constructs a Scheduler and starts its worker goroutine.
func New() *Scheduler {
	s := &Scheduler{}
	s.cond = sync.NewCond(&s.mu)
	s.wg.Add(1)
	go s.run()
	return s
}

// ScheduleAt inserts a task to fire at absolute time t.
func (s *Scheduler) ScheduleAt(t time.Time, task Task) {
	s.mu.Lock()
	heap.Push(&s.queue, &taskItem{deadline: t, task: task})
	metrics.SchedulerQueueDepth.Set(float64(len(s.queue)))
	s.mu.Unlock()
	s.cond.Signal()
}

// ScheduleIn inserts a task to fire after d elapses.
func (s *Scheduler) ScheduleIn(d time.Duration, task Task) {
	s.ScheduleAt(time.Now().Add(d), task)
}

// Close stops the worker goroutine and waits for it to exit. No task may
// outlive Close, per spec §3's scheduler-state invariant.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	s.cond.Signal()
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for {
			if s.done {
				s.mu.Unlock()
				return
			}
			now := time.Now()
			var due []*taskItem
			for len(s.queue) > 0 && !s.queue[0].deadline.After(now) {
				due = append(due, heap.Pop(&s.queue).(*taskItem))
			}
			if len(due) > 0 {
				metrics.SchedulerQueueDepth.Set(float64(len(s.queue)))
				s.mu.Unlock()
				for _, it := range due {
					it.task()
					metrics.SchedulerFiredCount.Inc()
				}
				s.mu.Lock()
				continue
			}
			break
		}
		// Table has no due task: wait indefinitely (empty) or until the
		// earliest deadline, whichever the timer below resolves first.
		if len(s.queue) == 0 {
			s.waitForSignal()
		} else {
			s.waitUntil(s.queue[0].deadline)
		}
		s.mu.Unlock()
	}
}

// waitForSignal blocks on the condition variable until ScheduleAt/ScheduleIn
// or Close signals it. Caller holds s.mu.
func (s *Scheduler) waitForSignal() {
	s.cond.Wait()
}

// waitUntil blocks on the condition variable, or until deadline, whichever
// comes first. Caller holds s.mu.
func (s *Scheduler) waitUntil(deadline time.Time) {
	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	timer := time.AfterFunc(d, func() {
		s.cond.Signal()
	})
	s.cond.Wait()
	timer.Stop()
}
