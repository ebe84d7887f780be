package kernel

// MutexID is a handle into the mutex table.
type MutexID int8

const noMutex MutexID = -1

type mutex struct {
	used  bool
	owner ThreadID
	queue threadQueue
	// next links the mutexes owned by the same thread, most recent first.
	next MutexID
}

// Mutex is a non-recursive mutex with priority inheritance. Unlocks must
// follow the reverse order of locks.
type Mutex struct {
	k  *Kernel
	id MutexID
}

// InitMutex binds m to a free slot of the mutex table. Initializing the same
// mutex twice is fatal.
func (k *Kernel) InitMutex(m *Mutex) {
	if m.k != nil {
		k.core.Halt("double init")
	}
	k.Lock()
	for i := range k.mutexes {
		ms := &k.mutexes[i]
		if ms.used {
			continue
		}
		ms.used = true
		ms.owner = NoThread
		ms.next = noMutex
		ms.queue.init()
		m.k, m.id = k, MutexID(i)
		k.Unlock()
		return
	}
	k.core.Halt("mutex table full")
}

// Owner returns the thread holding m, or NoThread.
func (m *Mutex) Owner() ThreadID { return m.k.mutexes[m.id].owner }

// Waiting returns how many threads are blocked on m.
func (m *Mutex) Waiting() int { return m.k.mutexes[m.id].queue.Len() }

// Lock blocks until m is acquired.
func (m *Mutex) Lock() {
	m.LockTimeout(Infinite)
}

// LockTimeout blocks until m is acquired or timeout expires.
func (m *Mutex) LockTimeout(timeout Timeout) Result {
	k := m.k
	k.Lock()
	r := k.lockMutexS(m.id, timeout)
	k.Unlock()
	return r
}

// LockS is Lock with the critical section already held.
func (m *Mutex) LockS() {
	m.k.checkClassS()
	m.k.lockMutexS(m.id, Infinite)
}

// TryLock acquires m only if it is free.
func (m *Mutex) TryLock() bool {
	k := m.k
	k.Lock()
	ok := m.TryLockS()
	k.Unlock()
	return ok
}

// TryLockS is TryLock with the critical section already held.
func (m *Mutex) TryLockS() bool {
	k := m.k
	k.checkClassS()
	if k.mutexes[m.id].owner != NoThread {
		return false
	}
	k.acquire(m.id, k.current)
	return true
}

// Unlock releases m, which must be the mutex most recently acquired by the
// calling thread. The first waiter is readied and competes for m again.
func (m *Mutex) Unlock() {
	k := m.k
	k.Lock()
	m.UnlockS()
	k.RescheduleS()
	k.Unlock()
}

// UnlockS releases m without rescheduling.
func (m *Mutex) UnlockS() {
	k := m.k
	k.checkClassS()
	self := k.current
	ms := &k.mutexes[m.id]
	if ms.owner != self {
		k.core.Halt("mutex not owned")
	}
	if k.threads[self].held != m.id {
		k.core.Halt("mutex not next in list")
	}
	k.release(m.id)
	k.updatePriority(self)
}

// UnlockAll releases every mutex held by the running thread and drops it
// back to its base priority.
func (k *Kernel) UnlockAll() {
	k.Lock()
	th := &k.threads[k.current]
	for th.held != noMutex {
		k.release(th.held)
	}
	k.updatePriority(k.current)
	k.RescheduleS()
	k.Unlock()
}

func (k *Kernel) lockMutexS(id MutexID, timeout Timeout) Result {
	ms := &k.mutexes[id]
	self := k.current
	if ms.owner == self {
		k.core.Halt("mutex already owned")
	}
	deadline := k.now + Tick(timeout)
	for ms.owner != NoThread {
		t := timeout
		if timeout != Infinite {
			if k.now >= deadline {
				return ResultTimeout
			}
			t = Timeout(deadline - k.now)
		}
		if t == Immediate {
			return ResultTimeout
		}
		k.threads[self].waitMutex = id
		k.enqueue(&ms.queue, self)
		k.updatePriority(ms.owner)
		if r := k.goSleepTimeoutS(StateWaitingMutex, t); r != ResultOK {
			return r
		}
	}
	k.acquire(id, self)
	return ResultOK
}

func (k *Kernel) acquire(id MutexID, t ThreadID) {
	ms := &k.mutexes[id]
	th := &k.threads[t]
	ms.owner = t
	ms.next = th.held
	th.held = id
	k.updatePriority(t)
}

// release pops id, the head of its owner's list, and readies the first
// waiter.
func (k *Kernel) release(id MutexID) {
	ms := &k.mutexes[id]
	th := &k.threads[ms.owner]
	th.held = ms.next
	ms.next = noMutex
	ms.owner = NoThread
	if w := k.popHead(&ms.queue); w != NoThread {
		k.threads[w].waitMutex = noMutex
		k.readyI(w, ResultOK)
	}
}

// updatePriority recomputes the effective priority of t as the maximum of
// its base priority and the first waiter of every mutex it owns, moves t
// within the queue it sits in, and follows the owner chain while t is itself
// blocked on a mutex.
func (k *Kernel) updatePriority(t ThreadID) {
	for t != NoThread {
		th := &k.threads[t]
		p := th.base
		for id := th.held; id != noMutex; id = k.mutexes[id].next {
			if hp := k.headPriority(&k.mutexes[id].queue); hp > p {
				p = hp
			}
		}
		if p == th.prio {
			return
		}
		th.prio = p

		switch th.state {
		case StateReady, StateWaitingSemaphore, StateWaitingExit:
			q := th.queue
			k.dequeue(t)
			k.enqueue(q, t)
		case StateWaitingMutex:
			ms := &k.mutexes[th.waitMutex]
			k.dequeue(t)
			k.enqueue(&ms.queue, t)
			t = ms.owner
			continue
		}
		return
	}
}
