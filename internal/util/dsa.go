package util

func mod(a int, b int) int {
	return ((a % b) + b) % b
}

// fixed-size ring-buffer queue
type Queue[T any] struct {
	data	[]T
	head	int // next slot to write to
	cnt 	int
}

func CreateQueue[T any](size int) Queue[T] {
	return Queue[T] {
		head: 	0,
		cnt: 	0,
		data: 	make([]T, size),
	}
}

func (q *Queue[T]) Cnt() int {
	return q.cnt
}

// will panic if out of space.
func (q *Queue[T]) Push(val T) {
	if q.cnt == len(q.data) { panic("queue overflow") }
	q.data[q.head] = val
	q.head = mod((q.head + 1), len(q.data))
	q.cnt++
}

// Pops the oldest value. ok is false when the queue is empty.
func (q *Queue[T]) TryPop() (val T, ok bool) {
	if q.cnt == 0 { return val, false }
	i := mod((q.head - q.cnt), len(q.data))
	q.cnt--
	val = q.data[i]
	var zero T
	q.data[i] = zero
	return val, true
}


// TicketQueue combines a fixed contiguous array and a queue of numbered "tickets" which
// correspond to slots in that array. The ring manager hands the ticket to the kernel as
// the SQE user-data and gets it back on the CQE, so nothing but a small integer ever
// crosses the syscall boundary.
//
// Not safe for concurrent use: the owner must serialize Acq/Rel/Get.
type TicketQueue[T any] struct {
	queue		Queue[int]
	data		[]T
}

func CreateTicketQueue[T any](size int) TicketQueue[T] {
	queue := CreateQueue[int](size)
	for i := range size {
		queue.Push(i)
	}
	data := make([]T, size)

	return TicketQueue[T]{
		queue: queue,
		data: data,
	}
}

// Number of tickets currently free.
func (tq *TicketQueue[T]) Free() int {
	return tq.queue.Cnt()
}

// This acquires a ticket and sets the slot to the passed value.
// ok is false when every ticket is out.
func (tq *TicketQueue[T]) Acq(val T) (ticket int, ok bool) {
	ticket, ok = tq.queue.TryPop()
	if !ok { return -1, false }
	tq.data[ticket] = val
	return ticket, true
}

// Returns the ticket to the pool and clears its slot. Releasing a ticket that
// is not out corrupts the pool.
func (tq *TicketQueue[T]) Rel(ticket int) {
	var zero T
	tq.data[ticket] = zero
	tq.queue.Push(ticket)
}

func (tq *TicketQueue[T]) Get(ticket int) T {
	return tq.data[ticket]
}
