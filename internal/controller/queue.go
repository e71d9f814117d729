package controller

import "sync"

// queue is the FIFO of pending instructions.
//
// IDs start at 1 whenever an instruction is pushed onto an empty queue and
// increase by one per push after that, so an ID is never shared by two
// queued instructions. The counter wraps after 2^32-1 pushes without the queue
// emptying; 0 is never issued.
type queue struct {
	mu     sync.Mutex
	items  []*Instruction
	lastID uint32
}

// push assigns an ID to in and appends it.
func (q *queue) push(in *Instruction) (id uint32, depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		q.lastID = 0
	}
	q.lastID++
	if q.lastID == 0 {
		q.lastID = 1
	}
	in.ID = q.lastID
	q.items = append(q.items, in)
	return in.ID, len(q.items)
}

// head returns the oldest instruction without removing it.
func (q *queue) head() *Instruction {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// remove drops in if it is still queued. It reports the remaining depth.
func (q *queue) remove(in *Instruction) (removed bool, depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item == in {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true, len(q.items)
		}
	}
	return false, len(q.items)
}

// cancel removes the instruction with the given ID.
func (q *queue) cancel(id uint32) (in *Instruction, depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return item, len(q.items)
		}
	}
	return nil, len(q.items)
}

// ids returns the queued IDs in execution order.
func (q *queue) ids() []uint32 {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]uint32, len(q.items))
	for i, item := range q.items {
		ids[i] = item.ID
	}
	return ids
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// clear discards everything and returns how many instructions were dropped.
func (q *queue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	q.items = nil
	q.lastID = 0
	return n
}
