package am

import (
	"encoding/binary"

	"pfidx/internal/errs"
	"pfidx/internal/pf"
)

// Leaf page header layout (§3.4), offsets into the page buffer.
//
// The primary key/recid arrays are sorted and shift-managed, growing
// from the low end like any ordinary sorted array. Duplicate-key
// extension entries — one per recid beyond a key's first — are
// bump-allocated from the high end downward and reused through an
// embedded free list (Design Notes §9's "Slot = Live | Free{next}"),
// mirroring the slotted page's own record-area-grows-down idiom.
const (
	leafTypeOff          = 0
	leafNextLeafOff       = 1  // int32
	leafNumKeysOff        = 5  // int16
	leafMaxKeysOff        = 7  // int16
	leafAttrLengthOff     = 9  // int16
	leafFreeListHeadOff   = 11 // int16, -1 = empty
	leafFreeListCountOff  = 13 // int16
	leafExtHighWaterOff   = 15 // int16
	leafHeaderSize        = 17

	primaryRecIDSize = 6 // RecID(4) + ExtHead(2)
	extEntrySize     = 6 // RecID-or-NextFree(4) + ChainNext(2)
)

const (
	pageLeaf     byte = 1
	pageInternal byte = 2
)

// noExt marks an empty extension chain / end of chain / empty free list.
const noExt int16 = -1

type leafPage struct {
	buf []byte
}

func wrapLeaf(buf []byte) *leafPage { return &leafPage{buf: buf} }

func initLeaf(buf []byte, attrLength int, maxKeys int) *leafPage {
	l := &leafPage{buf: buf}
	buf[leafTypeOff] = pageLeaf
	l.setNextLeaf(pf.PageNum(-1))
	l.setNumKeys(0)
	l.setMaxKeys(int16(maxKeys))
	l.setAttrLength(int16(attrLength))
	l.setFreeListHead(noExt)
	l.setFreeListCount(0)
	l.setExtHighWater(0)
	return l
}

func (l *leafPage) nextLeaf() pf.PageNum {
	return pf.PageNum(int32(binary.LittleEndian.Uint32(l.buf[leafNextLeafOff:])))
}
func (l *leafPage) setNextLeaf(p pf.PageNum) {
	binary.LittleEndian.PutUint32(l.buf[leafNextLeafOff:], uint32(int32(p)))
}

func (l *leafPage) numKeys() int {
	return int(int16(binary.LittleEndian.Uint16(l.buf[leafNumKeysOff:])))
}
func (l *leafPage) setNumKeys(n int) {
	binary.LittleEndian.PutUint16(l.buf[leafNumKeysOff:], uint16(int16(n)))
}

func (l *leafPage) maxKeys() int {
	return int(int16(binary.LittleEndian.Uint16(l.buf[leafMaxKeysOff:])))
}
func (l *leafPage) setMaxKeys(n int16) {
	binary.LittleEndian.PutUint16(l.buf[leafMaxKeysOff:], uint16(n))
}

func (l *leafPage) attrLength() int {
	return int(int16(binary.LittleEndian.Uint16(l.buf[leafAttrLengthOff:])))
}
func (l *leafPage) setAttrLength(n int16) {
	binary.LittleEndian.PutUint16(l.buf[leafAttrLengthOff:], uint16(n))
}

func (l *leafPage) freeListHead() int16 {
	return int16(binary.LittleEndian.Uint16(l.buf[leafFreeListHeadOff:]))
}
func (l *leafPage) setFreeListHead(n int16) {
	binary.LittleEndian.PutUint16(l.buf[leafFreeListHeadOff:], uint16(n))
}

func (l *leafPage) freeListCount() int {
	return int(int16(binary.LittleEndian.Uint16(l.buf[leafFreeListCountOff:])))
}
func (l *leafPage) setFreeListCount(n int) {
	binary.LittleEndian.PutUint16(l.buf[leafFreeListCountOff:], uint16(int16(n)))
}

func (l *leafPage) extHighWater() int16 {
	return int16(binary.LittleEndian.Uint16(l.buf[leafExtHighWaterOff:]))
}
func (l *leafPage) setExtHighWater(n int16) {
	binary.LittleEndian.PutUint16(l.buf[leafExtHighWaterOff:], uint16(n))
}

// keyRegionOff is where the sorted key array begins.
func (l *leafPage) keyRegionOff() int { return leafHeaderSize }

// recidRegionOff is where the parallel primary-entry array begins.
func (l *leafPage) recidRegionOff() int {
	return l.keyRegionOff() + l.maxKeys()*l.attrLength()
}

// extRegionOff is where the duplicate-chain extension region begins.
func (l *leafPage) extRegionOff() int {
	return l.recidRegionOff() + l.maxKeys()*primaryRecIDSize
}

func (l *leafPage) maxExt() int {
	return (pf.PageSize - l.extRegionOff()) / extEntrySize
}

func (l *leafPage) keyAt(i int) []byte {
	off := l.keyRegionOff() + i*l.attrLength()
	return l.buf[off : off+l.attrLength()]
}

func (l *leafPage) setKeyAt(i int, key []byte) {
	off := l.keyRegionOff() + i*l.attrLength()
	copy(l.buf[off:off+l.attrLength()], key)
}

// primaryEntry is the parallel recid-slot array element: the first
// recid of a key plus the head of its duplicate-extension chain.
type primaryEntry struct {
	RecID   uint32
	ExtHead int16
}

func (l *leafPage) primaryAt(i int) primaryEntry {
	off := l.recidRegionOff() + i*primaryRecIDSize
	return primaryEntry{
		RecID:   binary.LittleEndian.Uint32(l.buf[off : off+4]),
		ExtHead: int16(binary.LittleEndian.Uint16(l.buf[off+4 : off+6])),
	}
}

func (l *leafPage) setPrimaryAt(i int, e primaryEntry) {
	off := l.recidRegionOff() + i*primaryRecIDSize
	binary.LittleEndian.PutUint32(l.buf[off:off+4], e.RecID)
	binary.LittleEndian.PutUint16(l.buf[off+4:off+6], uint16(e.ExtHead))
}

type extEntry struct {
	Value uint32 // live: a recid; free: the next-free index (or noExt-as-uint32 sentinel)
	Next  int16  // live: next extension in this key's chain, noExt = end
}

func (l *leafPage) extAt(i int16) extEntry {
	off := l.extRegionOff() + int(i)*extEntrySize
	return extEntry{
		Value: binary.LittleEndian.Uint32(l.buf[off : off+4]),
		Next:  int16(binary.LittleEndian.Uint16(l.buf[off+4 : off+6])),
	}
}

func (l *leafPage) setExtAt(i int16, e extEntry) {
	off := l.extRegionOff() + int(i)*extEntrySize
	binary.LittleEndian.PutUint32(l.buf[off:off+4], e.Value)
	binary.LittleEndian.PutUint16(l.buf[off+4:off+6], uint16(e.Next))
}

// allocExt returns a free extension slot index, reusing the free list
// before bumping the high-water mark. Returns ok=false if the page has
// no room left for another extension entry.
func (l *leafPage) allocExt() (int16, bool) {
	if head := l.freeListHead(); head != noExt {
		e := l.extAt(head)
		l.setFreeListHead(int16(e.Value))
		l.setFreeListCount(l.freeListCount() - 1)
		return head, true
	}
	hw := l.extHighWater()
	if int(hw) >= l.maxExt() {
		return 0, false
	}
	l.setExtHighWater(hw + 1)
	return hw, true
}

// freeExt returns an extension slot to the free list, per §9's "free
// list embedded in the record-id field of freed entries".
func (l *leafPage) freeExt(i int16) {
	l.setExtAt(i, extEntry{Value: uint32(uint16(l.freeListHead())), Next: noExt})
	l.setFreeListHead(i)
	l.setFreeListCount(l.freeListCount() + 1)
}

// searchKey returns the leftmost position at which key could be
// inserted to preserve order (binary search per §4.4.2's tie-break
// rule: leftmost equal position on FOUND).
func (l *leafPage) searchKey(key []byte, attrType AttrType, attrLength int) (index int, found bool) {
	lo, hi := 0, l.numKeys()
	for lo < hi {
		mid := (lo + hi) / 2
		c := Compare(l.keyAt(mid), key, attrType, attrLength)
		if c < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < l.numKeys() && Compare(l.keyAt(lo), key, attrType, attrLength) == 0 {
		return lo, true
	}
	return lo, false
}

// insertKey shifts keys/primary-entries at [index, numKeys) one right
// and writes a new distinct key with a single recid.
func (l *leafPage) insertKey(index int, key []byte, recid uint32) error {
	if l.numKeys() >= l.maxKeys() {
		return errs.New("am.leafPage.insertKey", errs.NoMemory)
	}
	n := l.numKeys()
	for i := n; i > index; i-- {
		l.setKeyAt(i, l.keyAt(i-1))
		l.setPrimaryAt(i, l.primaryAt(i-1))
	}
	l.setKeyAt(index, key)
	l.setPrimaryAt(index, primaryEntry{RecID: recid, ExtHead: noExt})
	l.setNumKeys(n + 1)
	return nil
}

// appendDuplicate chains an additional recid under an existing key.
func (l *leafPage) appendDuplicate(index int, recid uint32) bool {
	idx, ok := l.allocExt()
	if !ok {
		return false
	}
	e := l.primaryAt(index)
	l.setExtAt(idx, extEntry{Value: recid, Next: e.ExtHead})
	e.ExtHead = idx
	l.setPrimaryAt(index, e)
	return true
}

// recidsAt returns every recid chained under key position index: the
// primary first, then extensions oldest-to-newest. This is insertion
// order until the primary recid is deleted; removeRecid then promotes
// the newest extension into the primary slot, so it is returned first.
func (l *leafPage) recidsAt(index int) []uint32 {
	e := l.primaryAt(index)
	out := []uint32{e.RecID}
	var chain []uint32
	for i := e.ExtHead; i != noExt; {
		x := l.extAt(i)
		chain = append(chain, x.Value)
		i = x.Next
	}
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i])
	}
	return out
}

// removeRecid deletes one recid from the chain at key position index.
// Returns true if the key's chain is now empty (caller must then remove
// the key slot itself).
func (l *leafPage) removeRecid(index int, recid uint32) (empty bool, found bool) {
	e := l.primaryAt(index)
	if e.RecID == recid {
		if e.ExtHead == noExt {
			return true, true
		}
		// Promote the first extension entry into the primary slot.
		head := l.extAt(e.ExtHead)
		oldExt := e.ExtHead
		e.RecID = head.Value
		e.ExtHead = head.Next
		l.setPrimaryAt(index, e)
		l.freeExt(oldExt)
		return false, true
	}
	prev := int16(-2) // sentinel meaning "primary"
	for i := e.ExtHead; i != noExt; {
		x := l.extAt(i)
		if x.Value == recid {
			if prev == -2 {
				e.ExtHead = x.Next
				l.setPrimaryAt(index, e)
			} else {
				p := l.extAt(prev)
				p.Next = x.Next
				l.setExtAt(prev, p)
			}
			l.freeExt(i)
			return false, true
		}
		prev = i
		i = x.Next
	}
	return false, false
}

// removeKey shifts keys/primary-entries at (index, numKeys) one left,
// per §4.4.4 (leaves are never merged; this may leave an under-full leaf).
func (l *leafPage) removeKey(index int) {
	n := l.numKeys()
	for i := index; i < n-1; i++ {
		l.setKeyAt(i, l.keyAt(i+1))
		l.setPrimaryAt(i, l.primaryAt(i+1))
	}
	l.setNumKeys(n - 1)
}
