package am

import (
	"pfidx/internal/errs"
	"pfidx/internal/pf"
)

// Op is a scan comparison operator (§3.5).
type Op int

const (
	All Op = iota
	Equal
	LessThan
	GreaterThan
	LessThanEqual
	GreaterThanEqual
	NotEqual
)

// MaxScans bounds the scan-cursor table (§3.5).
const MaxScans = 20

// cursorStatus is a cursor's state: free, first (opened, nothing
// returned yet), busy, or over. There is no separate LAST state; a
// cursor goes straight from busy to over.
type cursorStatus int

const (
	free cursorStatus = iota
	first
	busy
	over
)

// cursor is one bounded scan-table slot.
type cursor struct {
	inUse  bool
	fid    pf.FileID
	op     Op
	value  []byte
	status cursorStatus
	page   pf.PageNum
	buf    []byte // the pinned leaf's bytes; nil when unpinned
	index  int
	dupIdx int // position within the current key's recid chain
	recids []uint32
}

// scanTable is the engine's bounded table of open index scans.
type scanTable struct {
	cursors [MaxScans]cursor
}

func newScanTable() *scanTable { return &scanTable{} }

// OpenScan allocates a cursor and positions it per §4.4.5's policy.
// ALL, LESS_THAN, LESS_THAN_EQUAL, and NOT_EQUAL start at the leftmost
// leaf; EQUAL, GREATER_THAN, and GREATER_THAN_EQUAL descend to the leaf
// containing value and position at the first index >= value.
func (m *Manager) OpenScan(fid pf.FileID, op Op, value []byte) (int, error) {
	h, err := m.handle(fid)
	if err != nil {
		return 0, err
	}
	if op < All || op > NotEqual {
		return 0, errs.New("am.OpenScan", errs.InvalidOpToScan)
	}
	slot := -1
	for i := range m.scans.cursors {
		if !m.scans.cursors[i].inUse {
			slot = i
			break
		}
	}
	if slot == -1 {
		return 0, errs.New("am.OpenScan", errs.ScanTabFull)
	}

	c := &m.scans.cursors[slot]
	*c = cursor{inUse: true, fid: fid, op: op, value: value, status: first}

	if h.root == -1 {
		c.status = over
		return slot, nil
	}

	startFromLeftmost := op == All || op == LessThan || op == LessThanEqual || op == NotEqual
	var page pf.PageNum
	var index int
	if startFromLeftmost {
		page = h.leftmostLeaf
		index = 0
	} else {
		_, leafPageNum, buf, idx, _, err := m.search(fid, h, value)
		if err != nil {
			return 0, err
		}
		if uerr := m.PF.UnfixPage(fid, leafPageNum, false); uerr != nil {
			return 0, uerr
		}
		page, index = leafPageNum, idx
		_ = buf
	}
	c.page, c.index = page, index
	return slot, nil
}

// Next returns the next recid matching the scan's operator, or an EOF
// error once the positioning rule of §4.4.5 step 4 is satisfied.
func (m *Manager) Next(slot int) (uint32, error) {
	if slot < 0 || slot >= MaxScans || !m.scans.cursors[slot].inUse {
		return 0, errs.New("am.Next", errs.InvalidScanDesc)
	}
	c := &m.scans.cursors[slot]
	h, err := m.handle(c.fid)
	if err != nil {
		return 0, err
	}

	for {
		if c.status == over {
			return 0, errs.New("am.Next", errs.EOF)
		}

		if c.buf == nil {
			buf, err := m.PF.GetThisPage(c.fid, c.page)
			if err != nil {
				return 0, err
			}
			c.buf = buf
			c.recids = nil
		}
		lp := wrapLeaf(c.buf)

		if c.index >= lp.numKeys() {
			next := lp.nextLeaf()
			if uerr := m.PF.UnfixPage(c.fid, c.page, false); uerr != nil {
				return 0, uerr
			}
			c.buf = nil
			if next == -1 {
				c.status = over
				continue
			}
			c.page, c.index = next, 0
			continue
		}

		if c.recids == nil {
			c.recids = lp.recidsAt(c.index)
			c.dupIdx = 0
		}

		var matches, stop bool
		if c.op == All {
			matches, stop = true, false
		} else {
			key := lp.keyAt(c.index)
			cmp := Compare(key, c.value, h.attrType, h.attrLength)
			matches, stop = evalOp(c.op, cmp)
		}
		if stop {
			if uerr := m.PF.UnfixPage(c.fid, c.page, false); uerr != nil {
				return 0, uerr
			}
			c.buf = nil
			c.status = over
			continue
		}

		if matches && c.dupIdx < len(c.recids) {
			r := c.recids[c.dupIdx]
			c.dupIdx++
			if c.dupIdx >= len(c.recids) {
				c.index++
				c.recids = nil
			}
			c.status = busy
			return r, nil
		}

		c.index++
		c.recids = nil
	}
}

// evalOp reports whether cmp = Compare(key, scanValue) satisfies op,
// and whether the scan has reached the point where no later leaf entry
// can satisfy it (early stop for ordered operators, §4.4.5 step 4).
func evalOp(op Op, cmp int) (matches bool, stop bool) {
	switch op {
	case All:
		return true, false
	case Equal:
		return cmp == 0, cmp > 0
	case LessThan:
		return cmp < 0, cmp >= 0
	case LessThanEqual:
		return cmp <= 0, cmp > 0
	case GreaterThan:
		return cmp > 0, false
	case GreaterThanEqual:
		return cmp >= 0, false
	case NotEqual:
		return cmp != 0, false
	default:
		return false, true
	}
}

// CloseScan unpins any held leaf and frees the cursor slot.
func (m *Manager) CloseScan(slot int) error {
	if slot < 0 || slot >= MaxScans || !m.scans.cursors[slot].inUse {
		return errs.New("am.CloseScan", errs.InvalidScanDesc)
	}
	c := &m.scans.cursors[slot]
	var err error
	if c.buf != nil {
		err = m.PF.UnfixPage(c.fid, c.page, false)
	}
	*c = cursor{}
	return err
}
