package eventloop

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/cryguy/asyncleak/internal/core"
)

// minInterval is the shortest period a setInterval timer may repeat at.
const minInterval = 10 * time.Millisecond

// FireGlobal names the JS function that runs the callback stored for a
// timer ID. The timer globals define it; the loop calls it.
const FireGlobal = "__timerFire"

// Logf reports exceptions thrown by timer callbacks.
var Logf = log.Printf

// timerEntry is the scheduling side of a setTimeout or setInterval call.
// The callback itself lives in JS.
type timerEntry struct {
	deadline time.Time
	interval time.Duration // 0 for setTimeout, >0 for setInterval
	id       int
}

// EventLoop manages Go-backed timers for setTimeout/setInterval. Unlike a
// request-scoped loop it never sleeps: each tick fires whatever is due and
// returns, so the harness keeps its fixed cadence.
type EventLoop struct {
	mu     sync.Mutex
	timers map[int]*timerEntry
	nextID int
	now    func() time.Time
}

// New creates a new EventLoop.
func New() *EventLoop {
	return &EventLoop{
		timers: make(map[int]*timerEntry),
		now:    time.Now,
	}
}

// RegisterTimer creates a timer entry and returns its ID.
func (el *EventLoop) RegisterTimer(delay time.Duration, isInterval bool) int {
	el.mu.Lock()
	defer el.mu.Unlock()
	if delay < 0 {
		delay = 0
	}
	el.nextID++
	id := el.nextID
	entry := &timerEntry{
		deadline: el.now().Add(delay),
		id:       id,
	}
	if isInterval {
		if delay < minInterval {
			delay = minInterval
		}
		entry.interval = delay
	}
	el.timers[id] = entry
	return id
}

// ClearTimer cancels a timer by ID.
func (el *EventLoop) ClearTimer(id int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	delete(el.timers, id)
}

// HasPending returns true if there are any active timers.
func (el *EventLoop) HasPending() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.timers) > 0
}

// Pending returns the number of active timers.
func (el *EventLoop) Pending() int {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.timers)
}

// due collects the IDs of timers whose deadline has passed, in deadline
// order, and reschedules or removes them.
func (el *EventLoop) due() []int {
	el.mu.Lock()
	defer el.mu.Unlock()
	now := el.now()
	var ready []*timerEntry
	for _, t := range el.timers {
		if !t.deadline.After(now) {
			ready = append(ready, t)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].deadline.Equal(ready[j].deadline) {
			return ready[i].id < ready[j].id
		}
		return ready[i].deadline.Before(ready[j].deadline)
	})
	ids := make([]int, len(ready))
	for i, t := range ready {
		ids[i] = t.id
		if t.interval > 0 {
			t.deadline = now.Add(t.interval)
		} else {
			delete(el.timers, t.id)
		}
	}
	return ids
}

// fireTimer runs the callback for id. A throwing callback is logged and the
// loop carries on, as a host would report an uncaught error.
func (el *EventLoop) fireTimer(rt core.JSRuntime, id int) {
	if err := rt.Eval(fmt.Sprintf("%s(%d)", FireGlobal, id)); err != nil {
		Logf("timer %d: uncaught exception: %v", id, err)
	}
}

// RunDue fires every timer that is due right now, pumping microtasks after
// each callback, and returns how many fired. Timers registered by the
// callbacks themselves wait for the next call.
// Must be called on the runtime's goroutine (JS engines are single-threaded).
func (el *EventLoop) RunDue(rt core.JSRuntime) int {
	ids := el.due()
	for _, id := range ids {
		el.fireTimer(rt, id)
		rt.RunMicrotasks()
	}
	return len(ids)
}

// Reset clears all timers.
func (el *EventLoop) Reset() {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.timers = make(map[int]*timerEntry)
	el.nextID = 0
}
