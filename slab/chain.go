package slab

// chain is one thread's list of pages for one class, ordered loosely by
// decreasing free count. Only pages with at least one free slot are linked.
// Allocation always takes from the head.
type chain struct {
	head uintptr
	tail uintptr
}

// install makes a fresh page the sole member.
func (c *chain) install(base uintptr, p *pageRecord) {
	if debugChecks && c.head != 0 {
		invariant("install into non-empty chain %#x", c.head)
	}
	p.back, p.forward = 0, 0
	p.cachedPred = noCache
	c.head, c.tail = base, base
}

// unlinkHead removes the full head page and advances to its successor.
func (c *chain) unlinkHead(p *pageRecord) {
	next := p.forward
	p.back, p.forward = 0, 0
	p.cachedPred = noCache
	if next == 0 {
		c.head, c.tail = 0, 0
		return
	}
	np := pageAt(next)
	if debugChecks && np.back != c.head {
		invariant("successor %#x does not link back to head %#x", next, c.head)
	}
	np.back = 0
	np.cachedPred = noCache
	c.head = next
}

// appendTail links a page that just went from full to one free slot.
func (c *chain) appendTail(base uintptr, p *pageRecord) {
	p.forward = 0
	if c.tail == 0 {
		p.back = 0
		p.cachedPred = noCache
		c.head, c.tail = base, base
		return
	}
	tp := pageAt(c.tail)
	p.back = c.tail
	p.cachedPred = tp.free
	tp.forward = base
	c.tail = base
}

// release clears one slot of a page this thread owns.
func (c *chain) release(base uintptr, p *pageRecord, word int, mask uint64) {
	if debugChecks && p.bitmap[word]&mask == 0 {
		invariant("double free of slot in page %#x word %d mask %#x", base, word, mask)
	}
	p.bitmap[word] &^= mask
	p.free++
	if p.free == 1 {
		c.appendTail(base, p)
		return
	}
	if p.cachedPred != noCache && p.free > p.cachedPred {
		c.promote(base, p)
	}
}

// promote refreshes the cached predecessor count and, if the page now has
// more free slots than its predecessor, swaps the two. A single swap per
// free keeps the cost constant; the order is only approximately sorted.
// The head never moves.
func (c *chain) promote(base uintptr, p *pageRecord) {
	p.cachedPred = c.predFree(p)
	if p.free <= p.cachedPred {
		return
	}

	predBase := p.back
	pred := pageAt(predBase)
	succ := p.forward

	p.back = pred.back
	p.cachedPred = c.predFree(p)
	pageAt(p.back).forward = base
	p.forward = predBase

	pred.back = base
	pred.cachedPred = p.free
	pred.forward = succ
	if succ == 0 {
		c.tail = predBase
	} else {
		pageAt(succ).back = predBase
	}
}

func (c *chain) predFree(p *pageRecord) uint16 {
	if p.back == 0 || p.back == c.head {
		return noCache
	}
	return pageAt(p.back).free
}

// pages returns the linked page bases from head to tail.
func (c *chain) pages() []uintptr {
	var out []uintptr
	for b := c.head; b != 0; b = pageAt(b).forward {
		out = append(out, b)
	}
	return out
}
