package core

// Timer is a task-context event on a Scheduler.
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler is a sorted list of timers run from the main loop, below every
// control interrupt. Handlers reschedule by moving WakeTime and returning
// SF_RESCHEDULE.
type Scheduler struct {
	list *Timer
}

// Schedule adds t in WakeTime order. A timer already on the list is moved.
func (s *Scheduler) Schedule(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	s.remove(t)
	s.insert(t)
}

// Cancel removes t if it is scheduled.
func (s *Scheduler) Cancel(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	s.remove(t)
}

// insert places t in sorted order. Equal wake times keep insertion order.
func (s *Scheduler) insert(t *Timer) {
	if s.list == nil || before(t.WakeTime, s.list.WakeTime) {
		t.Next = s.list
		s.list = t
		return
	}

	current := s.list
	for current.Next != nil && !before(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

func (s *Scheduler) remove(t *Timer) {
	if s.list == t {
		s.list = t.Next
		t.Next = nil
		return
	}
	for cur := s.list; cur != nil; cur = cur.Next {
		if cur.Next == t {
			cur.Next = t.Next
			t.Next = nil
			return
		}
	}
}

// Dispatch runs every timer due at now.
func (s *Scheduler) Dispatch(now uint32) {
	for {
		state := disableInterrupts()
		t := s.list
		if t == nil || before(now, t.WakeTime) {
			restoreInterrupts(state)
			return
		}
		s.list = t.Next
		t.Next = nil
		restoreInterrupts(state)

		// Handlers run with interrupts enabled
		if t.Handler(t) == SF_RESCHEDULE {
			s.Schedule(t)
		}
	}
}

// Pending reports whether any timer is scheduled.
func (s *Scheduler) Pending() bool {
	return s.list != nil
}

// before compares tick values across counter wrap.
func before(a, b uint32) bool {
	return int32(a-b) < 0
}
