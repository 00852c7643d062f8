package orderbook

// handle indexes an arena slot.
type handle int32

const nilHandle handle = -1

// arena is the single owner of every resting order. Price levels link
// their orders through handles, never pointers, so the ID index stays
// valid for the whole lifetime of an order.
//
// Pointers returned by get are only valid until the next alloc.
type arena struct {
	slots []Order
	free  []handle
	byID  map[uint64]handle
	live  int
}

func newArena(capacity int) *arena {
	return &arena{
		slots: make([]Order, 0, capacity),
		byID:  make(map[uint64]handle, capacity),
	}
}

func (a *arena) alloc(o Order) handle {
	o.next, o.prev = nilHandle, nilHandle

	var h handle
	if n := len(a.free); n > 0 {
		h = a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[h] = o
	} else {
		h = handle(len(a.slots))
		a.slots = append(a.slots, o)
	}

	if !o.Synthetic() {
		a.byID[o.ID] = h
	}
	a.live++
	return h
}

func (a *arena) get(h handle) *Order {
	return &a.slots[h]
}

func (a *arena) release(h handle) {
	o := &a.slots[h]
	if !o.Synthetic() {
		delete(a.byID, o.ID)
	}
	*o = Order{}
	a.free = append(a.free, h)
	a.live--
}

func (a *arena) lookup(id uint64) (handle, bool) {
	h, ok := a.byID[id]
	return h, ok
}
