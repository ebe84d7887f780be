package kernel

// threadQueue is an intrusive priority-ordered list of threads linked
// through the thread table. The zero value is an empty queue.
type threadQueue struct {
	head, tail ThreadID
	n          int
}

func (q *threadQueue) init() { *q = threadQueue{head: NoThread, tail: NoThread} }

func (q *threadQueue) empty() bool { return q.n == 0 }

// Len returns the number of queued threads.
func (q *threadQueue) Len() int { return q.n }

func (k *Kernel) first(q *threadQueue) ThreadID {
	if q.n == 0 {
		return NoThread
	}
	return q.head
}

// headPriority returns the priority of the first thread, or NoPriority.
func (k *Kernel) headPriority(q *threadQueue) Priority {
	if q.n == 0 {
		return NoPriority
	}
	return k.threads[q.head].prio
}

// enqueue inserts t behind every thread of the same or higher priority.
func (k *Kernel) enqueue(q *threadQueue, t ThreadID) {
	p := k.threads[t].prio
	c := k.first(q)
	for c != NoThread && k.threads[c].prio >= p {
		c = k.threads[c].next
	}
	k.insertBefore(q, t, c)
}

// enqueueAhead inserts t ahead of threads of the same priority.
func (k *Kernel) enqueueAhead(q *threadQueue, t ThreadID) {
	p := k.threads[t].prio
	c := k.first(q)
	for c != NoThread && k.threads[c].prio > p {
		c = k.threads[c].next
	}
	k.insertBefore(q, t, c)
}

func (k *Kernel) insertBefore(q *threadQueue, t, c ThreadID) {
	th := &k.threads[t]
	th.queue = q
	th.next = c
	if q.n == 0 {
		th.prev = NoThread
		q.head, q.tail = t, t
		q.n = 1
		return
	}
	if c == NoThread {
		th.prev = q.tail
		k.threads[q.tail].next = t
		q.tail = t
	} else {
		th.prev = k.threads[c].prev
		if th.prev == NoThread {
			q.head = t
		} else {
			k.threads[th.prev].next = t
		}
		k.threads[c].prev = t
	}
	q.n++
}

// dequeue unlinks t from whatever queue holds it.
func (k *Kernel) dequeue(t ThreadID) {
	th := &k.threads[t]
	q := th.queue
	if q == nil {
		return
	}
	if th.prev == NoThread {
		q.head = th.next
	} else {
		k.threads[th.prev].next = th.next
	}
	if th.next == NoThread {
		q.tail = th.prev
	} else {
		k.threads[th.next].prev = th.prev
	}
	q.n--
	if q.n == 0 {
		q.head, q.tail = NoThread, NoThread
	}
	th.queue = nil
	th.next, th.prev = NoThread, NoThread
}

// popHead removes and returns the first thread.
func (k *Kernel) popHead(q *threadQueue) ThreadID {
	t := k.first(q)
	if t != NoThread {
		k.dequeue(t)
	}
	return t
}
