// Package sp is the slotted-page record layer (§3.3, §4.3 of the spec).
// It lays variable-length records out on top of pf's fixed-size pages:
// a small page header, a slot directory growing forward from the
// header, and record bytes growing backward from the end of the page.
// Record ids are stable across compaction, and slots are never removed
// from the directory so an id remains valid for the life of the page.
package sp

import "pfidx/internal/pf"

// magic identifies a page as SP-managed: ASCII "SPLT" read big-endian,
// i.e. the spec's 0x53504C54.
const magic uint32 = 0x53504C54

const (
	hdrSize   = 10 // magic(4) + slot_count(2) + free_offset(2) + free_space(2)
	slotSize  = 4  // offset(2) + length(2)
	tombstone = -1 // slot offset value marking a deleted record
)

// RecID is a record id: (page << 16) | slot, slot in [0, 65535].
type RecID uint32

// NewRecID packs a page number and slot index into a RecID.
func NewRecID(page pf.PageNum, slot int) RecID {
	return RecID(uint32(page)<<16 | uint32(uint16(slot)))
}

// Page returns the page number encoded in a RecID.
func (r RecID) Page() pf.PageNum { return pf.PageNum(uint32(r) >> 16) }

// Slot returns the slot index encoded in a RecID.
func (r RecID) Slot() int { return int(uint16(r)) }

// Utilization is the result of a compute_space_utilization pass (§4.3).
type Utilization struct {
	Pages     int
	LiveBytes int64
	Percent   float64
}
