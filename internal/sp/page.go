package sp

import (
	"encoding/binary"

	"pfidx/internal/errs"
	"pfidx/internal/pf"
)

// slottedPage wraps one pf page buffer with slotted-page accessors.
// Offsets below are relative to the start of that buffer, matching the
// teacher pager's SlottedPage but with an explicit magic check and an
// int16 tombstone sentinel instead of a (0,0) sentinel pair, per §3.3.
type slottedPage struct {
	buf []byte
}

type slotEntry struct {
	offset int16
	length int16
}

func wrapPage(buf []byte) *slottedPage { return &slottedPage{buf: buf} }

// initPage formats a freshly allocated pf page as an empty slotted page.
func initPage(buf []byte) *slottedPage {
	sp := &slottedPage{buf: buf}
	binary.LittleEndian.PutUint32(sp.buf[0:4], magic)
	sp.setSlotCount(0)
	sp.setFreeOffset(int16(pf.PageSize))
	sp.setFreeSpace(int16(pf.PageSize - hdrSize))
	return sp
}

func (sp *slottedPage) valid() bool {
	return binary.LittleEndian.Uint32(sp.buf[0:4]) == magic
}

func (sp *slottedPage) slotCount() int {
	return int(binary.LittleEndian.Uint16(sp.buf[4:6]))
}

func (sp *slottedPage) setSlotCount(n int) {
	binary.LittleEndian.PutUint16(sp.buf[4:6], uint16(n))
}

func (sp *slottedPage) freeOffset() int16 {
	return int16(binary.LittleEndian.Uint16(sp.buf[6:8]))
}

func (sp *slottedPage) setFreeOffset(off int16) {
	binary.LittleEndian.PutUint16(sp.buf[6:8], uint16(off))
}

func (sp *slottedPage) freeSpace() int16 {
	return int16(binary.LittleEndian.Uint16(sp.buf[8:10]))
}

func (sp *slottedPage) setFreeSpace(n int16) {
	binary.LittleEndian.PutUint16(sp.buf[8:10], uint16(n))
}

func slotOff(i int) int { return hdrSize + i*slotSize }

func (sp *slottedPage) getSlot(i int) slotEntry {
	off := slotOff(i)
	return slotEntry{
		offset: int16(binary.LittleEndian.Uint16(sp.buf[off : off+2])),
		length: int16(binary.LittleEndian.Uint16(sp.buf[off+2 : off+4])),
	}
}

func (sp *slottedPage) setSlot(i int, e slotEntry) {
	off := slotOff(i)
	binary.LittleEndian.PutUint16(sp.buf[off:off+2], uint16(e.offset))
	binary.LittleEndian.PutUint16(sp.buf[off+2:off+4], uint16(e.length))
}

func (sp *slottedPage) isTombstone(i int) bool {
	return sp.getSlot(i).offset == tombstone
}

// recomputeFreeSpace tracks free_offset - (header + slot_count*slotSize),
// the invariant of §3.3.
func (sp *slottedPage) recomputeFreeSpace() {
	used := hdrSize + sp.slotCount()*slotSize
	sp.setFreeSpace(sp.freeOffset() - int16(used))
}

// fits reports whether a record of length n can be inserted, accounting
// for whether a fresh slot (rather than a reused tombstone) is needed.
func (sp *slottedPage) fits(n int, needsNewSlot bool) bool {
	free := int(sp.freeSpace())
	if needsNewSlot {
		free -= slotSize
	}
	return free >= n
}

// firstTombstone returns the index of the first tombstone slot, or -1.
func (sp *slottedPage) firstTombstone() int {
	for i := 0; i < sp.slotCount(); i++ {
		if sp.isTombstone(i) {
			return i
		}
	}
	return -1
}

// insert places data into the page, reusing a tombstone slot if one is
// given, else appending a new slot. Caller has already verified fit.
func (sp *slottedPage) insert(data []byte, reuseSlot int) int {
	newOff := int(sp.freeOffset()) - len(data)
	copy(sp.buf[newOff:newOff+len(data)], data)
	sp.setFreeOffset(int16(newOff))

	var idx int
	if reuseSlot >= 0 {
		idx = reuseSlot
	} else {
		idx = sp.slotCount()
		sp.setSlotCount(idx + 1)
	}
	sp.setSlot(idx, slotEntry{offset: int16(newOff), length: int16(len(data))})
	sp.recomputeFreeSpace()
	return idx
}

func (sp *slottedPage) get(i int) ([]byte, error) {
	if i < 0 || i >= sp.slotCount() {
		return nil, errs.New("sp.get", errs.InvalidValue)
	}
	e := sp.getSlot(i)
	if e.offset == tombstone {
		return nil, errs.New("sp.get", errs.NotFound)
	}
	out := make([]byte, e.length)
	copy(out, sp.buf[e.offset:int(e.offset)+int(e.length)])
	return out, nil
}

func (sp *slottedPage) delete(i int) error {
	if i < 0 || i >= sp.slotCount() {
		return errs.New("sp.delete", errs.InvalidValue)
	}
	e := sp.getSlot(i)
	if e.offset == tombstone {
		return errs.New("sp.delete", errs.NotFound)
	}
	sp.setSlot(i, slotEntry{offset: tombstone, length: 0})
	sp.recomputeFreeSpace()
	return nil
}

// liveBytes sums the length of every non-tombstone record on the page.
func (sp *slottedPage) liveBytes() int64 {
	var n int64
	for i := 0; i < sp.slotCount(); i++ {
		if !sp.isTombstone(i) {
			n += int64(sp.getSlot(i).length)
		}
	}
	return n
}

// compact rewrites live records contiguously toward the high end in
// slot order, preserving slot indices so outstanding record ids remain
// valid (§4.3).
func (sp *slottedPage) compact() {
	sc := sp.slotCount()
	type live struct {
		idx  int
		data []byte
	}
	kept := make([]live, 0, sc)
	for i := 0; i < sc; i++ {
		if !sp.isTombstone(i) {
			e := sp.getSlot(i)
			data := make([]byte, e.length)
			copy(data, sp.buf[e.offset:int(e.offset)+int(e.length)])
			kept = append(kept, live{idx: i, data: data})
		}
	}
	sp.setFreeOffset(int16(pf.PageSize))
	for _, r := range kept {
		newOff := int(sp.freeOffset()) - len(r.data)
		copy(sp.buf[newOff:newOff+len(r.data)], r.data)
		sp.setFreeOffset(int16(newOff))
		sp.setSlot(r.idx, slotEntry{offset: int16(newOff), length: int16(len(r.data))})
	}
	sp.recomputeFreeSpace()
}
