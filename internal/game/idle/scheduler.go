package idle

import (
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Token cancels one scheduled repetition. Cancel is idempotent and
// safe to call from inside the callback it belongs to.
type Token struct {
	cancelled atomic.Bool
	s         *Scheduler
}

func (t *Token) Cancel() {
	if t == nil {
		return
	}
	if t.cancelled.CompareAndSwap(false, true) {
		t.s.nudge()
	}
}

func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Scheduler keeps pending completions in one due-time-sorted queue
// with a single armed timer for the head element. Insertion is O(n);
// the number of live timers is one no matter how many activities are
// queued. Callbacks run serially on the scheduler goroutine and return
// false to stop repeating.
type Scheduler struct {
	logger *log.Logger
	nowMs  func() int64

	inbox     chan *schedItem
	kick      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by the run goroutine
	queue []*schedItem
}

type schedItem struct {
	dueMs      int64
	intervalMs int64
	fn         func() bool
	tok        *Token
}

func NewScheduler(logger *log.Logger) *Scheduler {
	s := &Scheduler{
		logger: logger,
		nowMs:  func() int64 { return time.Now().UnixMilli() },
		inbox:  make(chan *schedItem, 64),
		kick:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// ScheduleRepeatingAt arms a repetition first due at dueMs and every
// intervalMs after that. The returned token is valid before the first
// fire.
func (s *Scheduler) ScheduleRepeatingAt(dueMs, intervalMs int64, fn func() bool) *Token {
	if intervalMs < 1 {
		intervalMs = 1
	}
	tok := &Token{s: s}
	it := &schedItem{dueMs: dueMs, intervalMs: intervalMs, fn: fn, tok: tok}
	select {
	case <-s.quit:
		// Closed schedulers hand back a dead token rather than parking
		// work in a queue nothing drains.
		tok.cancelled.Store(true)
		return tok
	default:
	}
	select {
	case s.inbox <- it:
	case <-s.quit:
		tok.cancelled.Store(true)
	}
	return tok
}

// ScheduleRepeating is the delay-based convenience form.
func (s *Scheduler) ScheduleRepeating(delay, interval time.Duration, fn func() bool) *Token {
	return s.ScheduleRepeatingAt(s.nowMs()+delay.Milliseconds(), interval.Milliseconds(), fn)
}

// Close stops the scheduler goroutine. Pending completions are
// dropped; tokens stay cancellable no-ops.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Scheduler) nudge() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	defer close(s.done)
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		s.dropCancelledHead()

		var fire <-chan time.Time
		if len(s.queue) > 0 {
			delay := time.Duration(s.queue[0].dueMs-s.nowMs()) * time.Millisecond
			if delay < 0 {
				delay = 0
			}
			timer.Reset(delay)
			fire = timer.C
		}

		armed := fire != nil
		select {
		case it := <-s.inbox:
			s.insert(it)
		case <-s.kick:
		case <-fire:
			armed = false
			s.fireHead()
		case <-s.quit:
			return
		}
		if armed && !timer.Stop() {
			<-timer.C
		}
	}
}

// dropCancelledHead discards externally cancelled entries so the timer
// is never armed for work that will not run.
func (s *Scheduler) dropCancelledHead() {
	for len(s.queue) > 0 && s.queue[0].tok.Cancelled() {
		s.queue[0] = nil
		s.queue = s.queue[1:]
	}
}

// insert keeps the queue due-ascending; equal due times keep insertion
// order so same-tick completions fire FIFO.
func (s *Scheduler) insert(it *schedItem) {
	if it.tok.Cancelled() {
		return
	}
	i := sort.Search(len(s.queue), func(i int) bool {
		return s.queue[i].dueMs > it.dueMs
	})
	s.queue = append(s.queue, nil)
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = it
}

func (s *Scheduler) fireHead() {
	if len(s.queue) == 0 {
		return
	}
	it := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	if it.tok.Cancelled() {
		return
	}

	cont := s.invoke(it)

	// The callback may have cancelled its own token, and a concurrent
	// Cancel may have landed while it ran; both must win over re-arm.
	if !cont || it.tok.Cancelled() {
		return
	}
	it.dueMs = s.nowMs() + it.intervalMs
	s.insert(it)
}

func (s *Scheduler) invoke(it *schedItem) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			if s.logger != nil {
				s.logger.Printf("scheduler: callback panic: %v", r)
			}
			cont = false
		}
	}()
	return it.fn()
}
