package flowz

import (
	"sync/atomic"
	"unsafe"
)

// Sentinel link values for List. Both are address-unique allocations that
// are never dereferenced: spinToken marks a link as mid-exchange (readers
// reload until a live value appears), deadToken marks the link of a node
// that has been detached from its list. deadToken is absorbing: once a
// link holds it, the link never transitions back to a live pointer.
//
// The allocations must have nonzero size; zero-size allocations may share
// an address in Go.
var (
	spinToken = unsafe.Pointer(new(uint64))
	deadToken = unsafe.Pointer(new(uint64))
)

// listNode is an intrusive, reference-counted node. The next link holds a
// *listNode[T], nil, spinToken, or deadToken.
type listNode[T any] struct {
	value T
	next  unsafe.Pointer
	refs  atomic.Int32
}

// List is a thread-safe singly-linked list modeled on a forward list, with
// methods added and removed to keep the concurrency guarantees. PushFront,
// Clear, and Concat are lock-free; PopFront, EraseAfter, SeparateAfter, and
// iterator advancement briefly lock individual links with spinToken.
//
// Nodes are reference counted: the list holds one reference to each linked
// node and every Iterator holds one to its current node, so a node stays
// valid for an iterator even while a concurrent PopFront detaches it. The
// zero List is empty and ready to use.
type List[T any] struct {
	head unsafe.Pointer
}

// NewList creates an empty list. Equivalent to new(List[T]).
func NewList[T any]() *List[T] {
	return &List[T]{}
}

// loadLink reads a link, spinning past in-progress exchanges.
func loadLink(slot *unsafe.Pointer) unsafe.Pointer {
	for {
		p := atomic.LoadPointer(slot)
		if p != spinToken {
			return p
		}
	}
}

// exchangeLink atomically swaps a link to p and returns the prior live
// value. It spins past spinToken and panics on deadToken; callers use it
// only on links that cannot be dead (a list head, or a link they hold
// locked through other means).
func exchangeLink(slot *unsafe.Pointer, p unsafe.Pointer) unsafe.Pointer {
	for {
		old := loadLink(slot)
		if old == deadToken {
			panic("flowz: exchange on detached link")
		}
		if atomic.CompareAndSwapPointer(slot, old, p) {
			return old
		}
	}
}

// lockLink claims a link by swapping its live value for spinToken. The
// caller owns the link until it stores a non-sentinel value (or deadToken)
// back. Returns ok=false without locking when the link is dead.
func lockLink(slot *unsafe.Pointer) (old unsafe.Pointer, ok bool) {
	for {
		p := loadLink(slot)
		if p == deadToken {
			return nil, false
		}
		if atomic.CompareAndSwapPointer(slot, p, spinToken) {
			return p, true
		}
	}
}

// unlockLink releases a link claimed by lockLink.
func unlockLink(slot *unsafe.Pointer, p unsafe.Pointer) {
	atomic.StorePointer(slot, p)
}

// gain takes an additional reference to n.
func (l *List[T]) gain(n *listNode[T]) *listNode[T] {
	n.refs.Add(1)
	return n
}

// lose drops one reference to n. The node's storage is reclaimed by the
// garbage collector once unreachable; a count below zero is a protocol
// violation.
func (l *List[T]) lose(n *listNode[T]) {
	if n == nil {
		return
	}
	if n.refs.Add(-1) < 0 {
		panic("flowz: node reference count underflow")
	}
}

func asNode[T any](p unsafe.Pointer) *listNode[T] {
	return (*listNode[T])(p)
}

// Empty reports whether the list has no linked nodes.
func (l *List[T]) Empty() bool {
	return loadLink(&l.head) == nil
}

// PushFront inserts value at the head of the list. Lock-free: the new
// node's own link is primed with spinToken, the head is exchanged, and the
// former head becomes the new node's successor. The head never holds
// deadToken while the list is alive.
func (l *List[T]) PushFront(value T) {
	n := &listNode[T]{value: value}
	n.refs.Store(1)
	n.next = spinToken
	old := exchangeLink(&l.head, unsafe.Pointer(n))
	unlockLink(&n.next, old)
}

// PopFront removes the head node and returns its value. Returns ok=false
// when the list is empty. The popped node's link is tombstoned with
// deadToken so iterators still holding the node observe end-of-list rather
// than a stale successor.
func (l *List[T]) PopFront() (value T, ok bool) {
	x, _ := lockLink(&l.head)
	if x == nil {
		unlockLink(&l.head, nil)
		return value, false
	}
	n := asNode[T](x)
	value = n.value
	succ, _ := lockLink(&n.next)
	unlockLink(&l.head, succ)
	unlockLink(&n.next, deadToken)
	l.lose(n)
	return value, true
}

// Clear detaches the entire chain with a single head exchange and then
// walks it iteratively, tombstoning each link and releasing ownership in
// reverse. Returns the number of nodes dropped. Pushes racing with Clear
// may insert nodes that land on either side of the swap; see LockedClear
// for the all-or-nothing variant.
func (l *List[T]) Clear() int {
	return l.drain(deadToken)
}

// LockedClear is Clear with inserts excluded: each detached link is primed
// with spinToken first, so a racing InsertAfter spins until the link
// resolves to deadToken and then reports failure instead of linking into a
// discarded chain.
func (l *List[T]) LockedClear() int {
	return l.drain(spinToken)
}

func (l *List[T]) drain(prime unsafe.Pointer) int {
	old := exchangeLink(&l.head, nil)
	var nodes []*listNode[T]
	for p := old; p != nil; {
		n := asNode[T](p)
		succ := exchangeLink(&n.next, prime)
		nodes = append(nodes, n)
		p = succ
	}
	for i := len(nodes) - 1; i >= 0; i-- {
		if prime == spinToken {
			unlockLink(&nodes[i].next, deadToken)
		}
		l.lose(nodes[i])
	}
	return len(nodes)
}

// Begin returns an iterator on the first node, or an invalid iterator when
// the list is empty. The iterator holds a reference to its current node;
// callers release it with Release when done (advancing past the end also
// releases).
func (l *List[T]) Begin() Iterator[T] {
	p, _ := lockLink(&l.head)
	var n *listNode[T]
	if p != nil {
		n = l.gain(asNode[T](p))
	}
	unlockLink(&l.head, p)
	return Iterator[T]{list: l, cur: n}
}

// InsertAfter inserts value behind the iterator's node. If that node has
// been detached from the list, the insert fails and the returned iterator
// is invalid. Otherwise the returned iterator holds the new node.
func (l *List[T]) InsertAfter(pos Iterator[T], value T) Iterator[T] {
	if pos.cur == nil {
		return Iterator[T]{list: l}
	}
	n := &listNode[T]{value: value}
	n.refs.Store(1)
	n.next = spinToken
	old, ok := lockLink(&pos.cur.next)
	if !ok {
		// Position was popped or cleared out from under us.
		return Iterator[T]{list: l}
	}
	unlockLink(&n.next, old)
	unlockLink(&pos.cur.next, unsafe.Pointer(n))
	return Iterator[T]{list: l, cur: l.gain(n)}
}

// EraseAfter removes the node behind the iterator's node and returns its
// value. Returns ok=false when there is no successor or the position has
// been detached.
func (l *List[T]) EraseAfter(pos Iterator[T]) (value T, ok bool) {
	if pos.cur == nil {
		return value, false
	}
	p, live := lockLink(&pos.cur.next)
	if !live {
		return value, false
	}
	if p == nil {
		unlockLink(&pos.cur.next, nil)
		return value, false
	}
	n := asNode[T](p)
	value = n.value
	succ, _ := lockLink(&n.next)
	unlockLink(&pos.cur.next, succ)
	unlockLink(&n.next, deadToken)
	l.lose(n)
	return value, true
}

// SeparateAfter atomically detaches everything behind the iterator's node
// into a new list. Returns nil when there is nothing to detach or the
// position has been detached.
func (l *List[T]) SeparateAfter(pos Iterator[T]) *List[T] {
	if pos.cur == nil {
		return nil
	}
	old, live := lockLink(&pos.cur.next)
	if !live {
		return nil
	}
	unlockLink(&pos.cur.next, nil)
	if old == nil {
		return nil
	}
	result := &List[T]{head: old}
	return result
}

// Concat detaches the other list's entire chain and appends it to the tail
// of this one. When the walk lands on a node that was popped mid-traversal
// (its link is dead), the search restarts from the head.
func (l *List[T]) Concat(other *List[T]) {
	n := exchangeLink(&other.head, nil)
	if n == nil {
		return
	}
	slot := &l.head
	for {
		if atomic.CompareAndSwapPointer(slot, nil, n) {
			return
		}
		p := loadLink(slot)
		if p == deadToken {
			slot = &l.head
			continue
		}
		if p == nil {
			continue
		}
		slot = &asNode[T](p).next
	}
}

// Swap exchanges the chains of two lists.
func Swap[T any](a, b *List[T]) {
	p, _ := lockLink(&a.head)
	p = exchangeLink(&b.head, p)
	unlockLink(&a.head, p)
}

// Iterator walks a List. Construction gains a reference to the current
// node and Release (or advancing past the end) drops it, so a node a
// concurrent PopFront detaches remains valid for the iterator holding it.
// Copying an Iterator does not duplicate the reference; treat each value
// returned by Begin, Next's receiver, or InsertAfter as the sole holder.
type Iterator[T any] struct {
	list *List[T]
	cur  *listNode[T]
}

// Valid reports whether the iterator points at a node.
func (it *Iterator[T]) Valid() bool {
	return it.cur != nil
}

// Value returns the current node's value. The iterator must be valid.
func (it *Iterator[T]) Value() T {
	return it.cur.value
}

// Next advances to the successor. A node whose link has been tombstoned
// (popped or cleared while the iterator held it) yields end-of-list. The
// reference to the departed node is released.
func (it *Iterator[T]) Next() {
	p, live := lockLink(&it.cur.next)
	var succ *listNode[T]
	if live {
		if p != nil {
			succ = it.list.gain(asNode[T](p))
		}
		unlockLink(&it.cur.next, p)
	}
	it.list.lose(it.cur)
	it.cur = succ
}

// Release drops the iterator's node reference. Safe on an invalid iterator.
func (it *Iterator[T]) Release() {
	if it.cur != nil {
		it.list.lose(it.cur)
		it.cur = nil
	}
}
