package am

import (
	"encoding/binary"

	"pfidx/internal/pf"
)

// Internal page layout (§3.4): num_keys sorted keys interleaved with
// num_keys+1 child page numbers. Child i holds keys in [key(i-1), key(i)).
const (
	internalTypeOff      = 0
	internalNumKeysOff   = 1 // int16
	internalMaxKeysOff   = 3 // int16
	internalAttrLenOff   = 5 // int16
	internalHeaderSize   = 7
)

type internalPage struct {
	buf []byte
}

func wrapInternal(buf []byte) *internalPage { return &internalPage{buf: buf} }

func initInternal(buf []byte, attrLength int, maxKeys int) *internalPage {
	p := &internalPage{buf: buf}
	buf[internalTypeOff] = pageInternal
	p.setNumKeys(0)
	p.setMaxKeys(int16(maxKeys))
	p.setAttrLength(int16(attrLength))
	return p
}

func (p *internalPage) numKeys() int {
	return int(int16(binary.LittleEndian.Uint16(p.buf[internalNumKeysOff:])))
}
func (p *internalPage) setNumKeys(n int) {
	binary.LittleEndian.PutUint16(p.buf[internalNumKeysOff:], uint16(int16(n)))
}

func (p *internalPage) maxKeys() int {
	return int(int16(binary.LittleEndian.Uint16(p.buf[internalMaxKeysOff:])))
}
func (p *internalPage) setMaxKeys(n int16) {
	binary.LittleEndian.PutUint16(p.buf[internalMaxKeysOff:], uint16(n))
}

func (p *internalPage) attrLength() int {
	return int(int16(binary.LittleEndian.Uint16(p.buf[internalAttrLenOff:])))
}
func (p *internalPage) setAttrLength(n int16) {
	binary.LittleEndian.PutUint16(p.buf[internalAttrLenOff:], uint16(n))
}

// childOff and keyOff locate child i and key i in the interleaved
// child(0), key(0), child(1), ..., key(n-1), child(n) sequence.
func (p *internalPage) childOff(i int) int {
	return internalHeaderSize + i*(4+p.attrLength())
}

func (p *internalPage) keyOff(i int) int { return p.childOff(i) + 4 }

func (p *internalPage) keyAt(i int) []byte {
	off := p.keyOff(i)
	return p.buf[off : off+p.attrLength()]
}

func (p *internalPage) setKeyAt(i int, key []byte) {
	off := p.keyOff(i)
	copy(p.buf[off:off+p.attrLength()], key)
}

func (p *internalPage) childAt(i int) pf.PageNum {
	off := p.childOff(i)
	return pf.PageNum(int32(binary.LittleEndian.Uint32(p.buf[off : off+4])))
}

func (p *internalPage) setChildAt(i int, child pf.PageNum) {
	off := p.childOff(i)
	binary.LittleEndian.PutUint32(p.buf[off:off+4], uint32(int32(child)))
}

// childIndex returns the smallest i such that key < key(i) — the child
// slot to descend into (§4.4.2).
func (p *internalPage) childIndex(key []byte, attrType AttrType, attrLength int) int {
	lo, hi := 0, p.numKeys()
	for lo < hi {
		mid := (lo + hi) / 2
		if Compare(key, p.keyAt(mid), attrType, attrLength) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// insertAt inserts (key, rightChild) at position pos, where pos is the
// index returned by a prior descent's recorded offset; children shift
// right of the new key.
func (p *internalPage) insertAt(pos int, key []byte, rightChild pf.PageNum) {
	n := p.numKeys()
	for i := n; i > pos; i-- {
		p.setKeyAt(i, p.keyAt(i-1))
	}
	for i := n + 1; i > pos+1; i-- {
		p.setChildAt(i, p.childAt(i-1))
	}
	p.setKeyAt(pos, key)
	p.setChildAt(pos+1, rightChild)
	p.setNumKeys(n + 1)
}
