package scheduler_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srtkit/xtransmit/scheduler"
)

func TestScheduleInFiresAfterDelay(t *testing.T) {
	s := scheduler.New()
	defer s.Close()

	var fired atomic.Bool
	done := make(chan struct{})
	s.ScheduleIn(10*time.Millisecond, func() {
		fired.Store(true)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not fire")
	}
	if !fired.Load() {
		t.Error("expected task to have fired")
	}
}

func TestScheduleAtOrdersByDeadline(t *testing.T) {
	s := scheduler.New()
	defer s.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)

	now := time.Now()
	s.ScheduleAt(now.Add(30*time.Millisecond), func() {
		mu.Lock()
		order = append(order, 3)
		mu.Unlock()
		wg.Done()
	})
	s.ScheduleAt(now.Add(10*time.Millisecond), func() {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		wg.Done()
	})
	s.ScheduleAt(now.Add(20*time.Millisecond), func() {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		wg.Done()
	})

	waitOrTimeout(t, &wg, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
}

func TestCloseJoinsWorker(t *testing.T) {
	s := scheduler.New()
	s.ScheduleIn(time.Hour, func() {})
	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return promptly")
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for tasks to fire")
	}
}
