package kernel

// Mailbox is a fixed-size FIFO of messages between threads and interrupt
// handlers.
type Mailbox[T any] struct {
	k     *Kernel
	buf   []T
	head  int
	tail  int
	full  Semaphore
	empty Semaphore
}

// NewMailbox returns a mailbox with room for size messages.
func NewMailbox[T any](k *Kernel, size int) *Mailbox[T] {
	if size <= 0 {
		size = 1
	}
	mb := &Mailbox[T]{k: k, buf: make([]T, size)}
	k.InitSemaphore(&mb.full, 0)
	k.InitSemaphore(&mb.empty, int32(size))
	return mb
}

// Pending returns the number of queued messages.
func (mb *Mailbox[T]) Pending() int {
	if c := mb.full.count; c > 0 {
		return int(c)
	}
	return 0
}

// Post queues v, blocking up to timeout while the mailbox is full.
func (mb *Mailbox[T]) Post(v T, timeout Timeout) Result {
	k := mb.k
	k.Lock()
	r := mb.empty.WaitTimeoutS(timeout)
	if r == ResultOK {
		mb.push(v)
		mb.full.SignalI()
		k.RescheduleS()
	}
	k.Unlock()
	return r
}

// PostI queues v if there is room, otherwise it returns ResultTimeout.
func (mb *Mailbox[T]) PostI(v T) Result {
	mb.k.checkClassI()
	if mb.empty.count <= 0 {
		return ResultTimeout
	}
	mb.empty.count--
	mb.push(v)
	mb.full.SignalI()
	return ResultOK
}

// Fetch dequeues the oldest message, blocking up to timeout.
func (mb *Mailbox[T]) Fetch(timeout Timeout) (T, Result) {
	k := mb.k
	k.Lock()
	var v T
	r := mb.full.WaitTimeoutS(timeout)
	if r == ResultOK {
		v = mb.pop()
		mb.empty.SignalI()
		k.RescheduleS()
	}
	k.Unlock()
	return v, r
}

// FetchI dequeues the oldest message if there is one.
func (mb *Mailbox[T]) FetchI() (T, Result) {
	mb.k.checkClassI()
	var v T
	if mb.full.count <= 0 {
		return v, ResultTimeout
	}
	mb.full.count--
	v = mb.pop()
	mb.empty.SignalI()
	return v, ResultOK
}

// Reset drops every message and wakes all waiters with ResultReset.
func (mb *Mailbox[T]) Reset() {
	k := mb.k
	k.Lock()
	mb.head, mb.tail = 0, 0
	clear(mb.buf)
	mb.empty.ResetI(int32(len(mb.buf)))
	mb.full.ResetI(0)
	k.RescheduleS()
	k.Unlock()
}

func (mb *Mailbox[T]) push(v T) {
	mb.buf[mb.tail] = v
	mb.tail = (mb.tail + 1) % len(mb.buf)
}

func (mb *Mailbox[T]) pop() T {
	var zero T
	v := mb.buf[mb.head]
	mb.buf[mb.head] = zero
	mb.head = (mb.head + 1) % len(mb.buf)
	return v
}
