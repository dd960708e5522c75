package core

import "testing"

func TestSchedulerOrder(t *testing.T) {
	var s Scheduler
	var order []int

	mk := func(id int, wake uint32) *Timer {
		return &Timer{WakeTime: wake, Handler: func(*Timer) uint8 {
			order = append(order, id)
			return SF_DONE
		}}
	}
	s.Schedule(mk(3, 300))
	s.Schedule(mk(1, 100))
	s.Schedule(mk(2, 200))
	s.Schedule(mk(4, 200))

	s.Dispatch(250)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 4 {
		t.Errorf("order = %v, want [1 2 4]", order)
	}
	s.Dispatch(300)
	if len(order) != 4 || s.Pending() {
		t.Errorf("order = %v, pending = %v", order, s.Pending())
	}
}

func TestSchedulerReschedule(t *testing.T) {
	var s Scheduler
	runs := 0
	tm := &Timer{WakeTime: 0, Handler: func(tm *Timer) uint8 {
		runs++
		tm.WakeTime += 10
		return SF_RESCHEDULE
	}}
	s.Schedule(tm)
	for now := uint32(0); now < 100; now++ {
		s.Dispatch(now)
	}
	if runs != 10 {
		t.Errorf("runs = %d, want 10", runs)
	}

	s.Cancel(tm)
	s.Dispatch(1000)
	if runs != 10 || s.Pending() {
		t.Error("cancelled timer ran")
	}
}

func TestSchedulerWrap(t *testing.T) {
	var s Scheduler
	ran := false
	s.Schedule(&Timer{WakeTime: 5, Handler: func(*Timer) uint8 { ran = true; return SF_DONE }})

	// just before the counter wraps, a wake time of 5 is in the future
	s.Dispatch(0xFFFFFFF0)
	if ran {
		t.Fatal("timer ran before the counter wrapped")
	}
	s.Dispatch(5)
	if !ran {
		t.Error("timer did not run after the wrap")
	}
}

func TestWatchdog(t *testing.T) {
	w := NewWatchdog(true, 100)
	w.Feed(0)
	if w.Expired(TimerFromMS(100)) {
		t.Error("expired at exactly the timeout")
	}
	if !w.Expired(TimerFromMS(100) + 1) {
		t.Error("not expired past the timeout")
	}

	w.Feed(0xFFFFFF00)
	if w.Expired(0x10) {
		t.Error("counter wrap counted as a timeout")
	}

	w.SetEnabled(false)
	if w.Expired(TimerFromMS(1000)) {
		t.Error("disabled watchdog expired")
	}
}

func TestWatchdogTimeoutBound(t *testing.T) {
	w := NewWatchdog(true, 100)
	if w.SetTimeout(400000) {
		t.Error("accepted a timeout longer than the tick counter range")
	}
	if w.Timeout() != 100 {
		t.Errorf("timeout = %d after refused write, want 100", w.Timeout())
	}
	if !w.SetTimeout(MaxWatchdogTimeoutMS) {
		t.Fatal("refused the longest timeout")
	}
	w.Feed(0)
	if w.Expired(TimerFromMS(60000)) {
		t.Error("expired after 60 s with the longest timeout")
	}
	if !w.Expired(TimerFromMS(MaxWatchdogTimeoutMS) + 1) {
		t.Error("not expired past the longest timeout")
	}
}

func TestTimerConversions(t *testing.T) {
	if TimerFromMS(1) != TimerFreq/1000 {
		t.Errorf("TimerFromMS(1) = %d", TimerFromMS(1))
	}
	if TimerToUS(TimerFromUS(250)) != 250 {
		t.Error("us round trip")
	}
	if TimerFromHz(2000) != TimerFreq/2000 || TimerFromHz(0) != 0 {
		t.Error("TimerFromHz")
	}
}
