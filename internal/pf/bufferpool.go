package pf

import "pfidx/internal/errs"

// frame is an in-memory slot holding one page's contents plus metadata.
// prev/next are indices into the pool's frames slice (an intrusive,
// array-backed doubly-linked replacement list — see Design Notes §9:
// "represent as indices into the frame array rather than pointers").
type frame struct {
	fid     FileID
	page    PageNum
	data    [PageSize]byte
	nextFr  int32 // on-disk nextfree value of this page (used sentinel when allocated)
	dirty   bool
	pin     int
	prev    int
	next    int
	inList  bool // true iff currently spliced into the replacement list
	present bool // true iff this frame holds a page (fid != invalidFID)
}

// pool is the fixed-size frame array plus its hash index and replacement
// list. head = hot end, tail = cold end, regardless of policy: unfix
// always splices a newly-unpinned frame to the hot end (§4.2); only the
// victim-selection end differs between LRU and MRU.
type pool struct {
	frames []frame
	hash   *hashIndex
	policy ReplacementPolicy
	head   int // hot end, -1 if list empty
	tail   int // cold end, -1 if list empty
}

func newPool(size int, policy ReplacementPolicy) *pool {
	p := &pool{
		frames: make([]frame, size),
		hash:   newHashIndex(size),
		policy: policy,
		head:   -1,
		tail:   -1,
	}
	for i := range p.frames {
		p.frames[i] = frame{fid: invalidFID, prev: -1, next: -1}
	}
	return p
}

func (p *pool) pushHot(i int) {
	f := &p.frames[i]
	f.prev = -1
	f.next = p.head
	if p.head != -1 {
		p.frames[p.head].prev = i
	}
	p.head = i
	if p.tail == -1 {
		p.tail = i
	}
	f.inList = true
}

func (p *pool) unlink(i int) {
	f := &p.frames[i]
	if !f.inList {
		return
	}
	if f.prev != -1 {
		p.frames[f.prev].next = f.next
	} else {
		p.head = f.next
	}
	if f.next != -1 {
		p.frames[f.next].prev = f.prev
	} else {
		p.tail = f.prev
	}
	f.prev, f.next = -1, -1
	f.inList = false
}

// pickVictim returns the index of an unpinned frame to evict, preferring
// a frame that holds no page first, else the replacement-list end dictated by
// policy. Returns ok=false if every frame is pinned (spec: NOBUF).
func (p *pool) pickVictim() (int, bool) {
	for i := range p.frames {
		if !p.frames[i].present {
			return i, true
		}
	}
	start := p.tail
	if p.policy == MRU {
		start = p.head
	}
	for i := start; i != -1; {
		f := &p.frames[i]
		if f.pin == 0 {
			return i, true
		}
		if p.policy == MRU {
			i = f.next
		} else {
			i = f.prev
		}
	}
	return 0, false
}

func (p *pool) noBuf(op string) error { return errs.New(op, errs.NoBuf) }
