package orderbook

// PriceLevel is a FIFO queue at a single price. Insertion order is time
// priority.
type PriceLevel struct {
	Price int64

	head handle
	tail handle

	TotalQty   int64
	OrderCount int
}

func newPriceLevel(price int64) *PriceLevel {
	return &PriceLevel{Price: price, head: nilHandle, tail: nilHandle}
}

func (p *PriceLevel) enqueue(a *arena, h handle) {
	o := a.get(h)
	if p.head == nilHandle {
		p.head = h
		p.tail = h
	} else {
		a.get(p.tail).next = h
		o.prev = p.tail
		p.tail = h
	}
	p.TotalQty += o.Remaining
	p.OrderCount++
}

// popHead unlinks the oldest order and returns its handle. The order
// itself stays allocated.
func (p *PriceLevel) popHead(a *arena) handle {
	h := p.head
	if h == nilHandle {
		return nilHandle
	}
	o := a.get(h)

	p.head = o.next
	if p.head != nilHandle {
		a.get(p.head).prev = nilHandle
	} else {
		p.tail = nilHandle
	}
	o.next, o.prev = nilHandle, nilHandle

	p.TotalQty -= o.Remaining
	p.OrderCount--
	return h
}

func (p *PriceLevel) Empty() bool {
	return p.head == nilHandle
}

// each visits the queue front to back. Returning false stops the walk.
func (p *PriceLevel) each(a *arena, fn func(h handle, o *Order) bool) {
	for h := p.head; h != nilHandle; {
		o := a.get(h)
		next := o.next
		if !fn(h, o) {
			return
		}
		h = next
	}
}
