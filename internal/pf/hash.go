package pf

import "pfidx/internal/errs"

// tableSize is the bucket count of the fixed hash table (§4.1). Chains
// grow unboundedly per bucket; the pool size bounds the total entry
// count, not the bucket count.
const tableSize = 127

type hashKey struct {
	fid  FileID
	page PageNum
}

// hashEntry is one chained node: key plus the owning frame's index.
type hashEntry struct {
	key   hashKey
	frame int
	next  int // index into the entries slice, -1 = end
}

// hashIndex is the fixed-bucket chained hash from (fid,page) -> frame
// index, used exclusively by the buffer pool to locate resident pages.
type hashIndex struct {
	buckets [tableSize]int // head entry index per bucket, -1 = empty
	entries []hashEntry
	free    []int // recycled entry slots
}

func newHashIndex(capacity int) *hashIndex {
	h := &hashIndex{entries: make([]hashEntry, 0, capacity)}
	for i := range h.buckets {
		h.buckets[i] = -1
	}
	return h
}

func bucketOf(fid FileID, page PageNum) int {
	sum := int(fid) + int(page)
	if sum < 0 {
		sum = -sum
	}
	return sum % tableSize
}

// find returns the frame index for (fid,page), or ok=false.
func (h *hashIndex) find(fid FileID, page PageNum) (int, bool) {
	b := bucketOf(fid, page)
	for i := h.buckets[b]; i != -1; i = h.entries[i].next {
		e := &h.entries[i]
		if e.key.fid == fid && e.key.page == page {
			return e.frame, true
		}
	}
	return 0, false
}

// insert adds (fid,page) -> frame. Fails with HashPageExist if present.
func (h *hashIndex) insert(fid FileID, page PageNum, frame int) error {
	if _, ok := h.find(fid, page); ok {
		return errs.New("pf.hashIndex.insert", errs.HashPageExist)
	}
	b := bucketOf(fid, page)
	idx := h.allocEntry()
	h.entries[idx] = hashEntry{key: hashKey{fid, page}, frame: frame, next: h.buckets[b]}
	h.buckets[b] = idx
	return nil
}

// delete removes (fid,page). Fails with HashNotFound if absent.
func (h *hashIndex) delete(fid FileID, page PageNum) error {
	b := bucketOf(fid, page)
	prev := -1
	for i := h.buckets[b]; i != -1; i = h.entries[i].next {
		e := &h.entries[i]
		if e.key.fid == fid && e.key.page == page {
			if prev == -1 {
				h.buckets[b] = e.next
			} else {
				h.entries[prev].next = e.next
			}
			h.free = append(h.free, i)
			return nil
		}
		prev = i
	}
	return errs.New("pf.hashIndex.delete", errs.HashNotFound)
}

func (h *hashIndex) allocEntry() int {
	if n := len(h.free); n > 0 {
		idx := h.free[n-1]
		h.free = h.free[:n-1]
		return idx
	}
	h.entries = append(h.entries, hashEntry{})
	return len(h.entries) - 1
}
