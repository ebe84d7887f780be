package kernel

// Semaphore is a counting semaphore with a priority-ordered wait queue. A
// negative count is the number of waiting threads.
type Semaphore struct {
	k     *Kernel
	count int32
	queue threadQueue
}

// InitSemaphore sets s up with n available units. Initializing the same
// semaphore twice is fatal.
func (k *Kernel) InitSemaphore(s *Semaphore, n int32) {
	if s.k != nil {
		k.core.Halt("double init")
	}
	if n < 0 {
		k.core.Halt("negative semaphore")
	}
	s.k = k
	s.count = n
	s.queue.init()
}

// Count returns the counter.
func (s *Semaphore) Count() int32 { return s.count }

// Wait takes a unit, blocking while none is available.
func (s *Semaphore) Wait() Result { return s.WaitTimeout(Infinite) }

// WaitTimeout takes a unit, blocking up to timeout while none is available.
func (s *Semaphore) WaitTimeout(timeout Timeout) Result {
	k := s.k
	k.Lock()
	r := s.WaitTimeoutS(timeout)
	k.Unlock()
	return r
}

// WaitTimeoutS is WaitTimeout with the critical section already held.
func (s *Semaphore) WaitTimeoutS(timeout Timeout) Result {
	k := s.k
	k.checkClassS()
	s.count--
	if s.count >= 0 {
		return ResultOK
	}
	if timeout == Immediate {
		s.count++
		return ResultTimeout
	}
	self := k.current
	k.threads[self].waitSem = s
	k.enqueue(&s.queue, self)
	return k.goSleepTimeoutS(StateWaitingSemaphore, timeout)
}

// Signal releases a unit and wakes the first waiter.
func (s *Semaphore) Signal() {
	k := s.k
	k.Lock()
	s.count++
	if s.count <= 0 {
		k.wakeupS(s.take(), ResultOK)
	}
	k.Unlock()
}

// SignalI releases a unit. The caller reschedules.
func (s *Semaphore) SignalI() {
	k := s.k
	k.checkClassI()
	s.count++
	if s.count <= 0 {
		k.readyI(s.take(), ResultOK)
	}
}

// SignalWait signals s and waits on w as one step.
func (s *Semaphore) SignalWait(w *Semaphore) Result {
	k := s.k
	k.Lock()
	s.count++
	if s.count <= 0 {
		k.readyI(s.take(), ResultOK)
	}
	w.count--
	var r Result
	if w.count >= 0 {
		k.RescheduleS()
		r = ResultOK
	} else {
		self := k.current
		k.threads[self].waitSem = w
		k.enqueue(&w.queue, self)
		k.goSleepS(StateWaitingSemaphore)
		r = k.threads[self].msg
	}
	k.Unlock()
	return r
}

// Reset sets the counter to n and wakes every waiter with ResultReset.
func (s *Semaphore) Reset(n int32) {
	k := s.k
	k.Lock()
	s.ResetI(n)
	k.RescheduleS()
	k.Unlock()
}

// ResetI is Reset without rescheduling, callable from interrupt handlers.
func (s *Semaphore) ResetI(n int32) {
	k := s.k
	k.checkClassI()
	waiters := s.count
	s.count = n
	for ; waiters < 0; waiters++ {
		k.readyI(s.take(), ResultReset)
	}
}

func (s *Semaphore) take() ThreadID {
	t := s.k.popHead(&s.queue)
	s.k.threads[t].waitSem = nil
	return t
}
