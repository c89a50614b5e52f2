package am

import (
	"encoding/binary"

	"pfidx/internal/pf"
)

// treeHeaderMagic identifies page 0 of an index file as a B+-tree header.
const treeHeaderMagic uint32 = 0x42504C54 // "BPLT"

const (
	thMagicOff           = 0
	thRootOff            = 4  // int32
	thLeftmostLeafOff    = 8  // int32
	thAttrTypeOff        = 12 // byte
	thAttrLengthOff      = 13 // int16
	thLeafMaxKeysOff     = 15 // int16
	thInternalMaxKeysOff = 17 // int16
	thHeaderSize         = 19
)

// treeHeader is the well-known page-0 metadata of an index file (§4.4.6):
// root page number, leftmost-leaf page number, and the attribute
// type/length and computed max-keys values fixed for the tree's life.
type treeHeader struct {
	buf []byte
}

func wrapHeader(buf []byte) *treeHeader { return &treeHeader{buf: buf} }

func initHeader(buf []byte, attrType AttrType, attrLength, leafMax, internalMax int) *treeHeader {
	h := &treeHeader{buf: buf}
	binary.LittleEndian.PutUint32(h.buf[thMagicOff:], treeHeaderMagic)
	h.setRoot(pf.PageNum(-1))
	h.setLeftmostLeaf(pf.PageNum(-1))
	h.buf[thAttrTypeOff] = byte(attrType)
	binary.LittleEndian.PutUint16(h.buf[thAttrLengthOff:], uint16(attrLength))
	binary.LittleEndian.PutUint16(h.buf[thLeafMaxKeysOff:], uint16(leafMax))
	binary.LittleEndian.PutUint16(h.buf[thInternalMaxKeysOff:], uint16(internalMax))
	return h
}

func (h *treeHeader) valid() bool {
	return binary.LittleEndian.Uint32(h.buf[thMagicOff:]) == treeHeaderMagic
}

func (h *treeHeader) root() pf.PageNum {
	return pf.PageNum(int32(binary.LittleEndian.Uint32(h.buf[thRootOff:])))
}
func (h *treeHeader) setRoot(p pf.PageNum) {
	binary.LittleEndian.PutUint32(h.buf[thRootOff:], uint32(int32(p)))
}

func (h *treeHeader) leftmostLeaf() pf.PageNum {
	return pf.PageNum(int32(binary.LittleEndian.Uint32(h.buf[thLeftmostLeafOff:])))
}
func (h *treeHeader) setLeftmostLeaf(p pf.PageNum) {
	binary.LittleEndian.PutUint32(h.buf[thLeftmostLeafOff:], uint32(int32(p)))
}

func (h *treeHeader) attrType() AttrType { return AttrType(h.buf[thAttrTypeOff]) }

func (h *treeHeader) attrLength() int {
	return int(binary.LittleEndian.Uint16(h.buf[thAttrLengthOff:]))
}

func (h *treeHeader) leafMaxKeys() int {
	return int(binary.LittleEndian.Uint16(h.buf[thLeafMaxKeysOff:]))
}

func (h *treeHeader) internalMaxKeys() int {
	return int(binary.LittleEndian.Uint16(h.buf[thInternalMaxKeysOff:]))
}

// computeMaxKeys derives leaf and internal fan-out from page size and
// attribute length (§4.4.6). Leaf capacity is split evenly between the
// primary key/recid arrays and the duplicate-extension region so every
// key can average one extra duplicate without starving the page.
func computeMaxKeys(attrLength int) (leafMax, internalMax int) {
	leafBudget := pf.PageSize - leafHeaderSize
	leafMax = leafBudget / (2 * (attrLength + primaryRecIDSize))
	if leafMax < 1 {
		leafMax = 1
	}
	internalBudget := pf.PageSize - internalHeaderSize - 4 // one extra child slot
	internalMax = internalBudget / (attrLength + 4)
	if internalMax < 2 {
		internalMax = 2
	}
	return leafMax, internalMax
}
