package am

import (
	"fmt"

	"pfidx/internal/errs"
	"pfidx/internal/pf"
)

// treeHandle is the in-memory, authoritative copy of an open index
// file's page-0 header. It is flushed back to page 0 whenever root or
// leftmostLeaf changes.
type treeHandle struct {
	attrType     AttrType
	attrLength   int
	leafMax      int
	internalMax  int
	root         pf.PageNum
	leftmostLeaf pf.PageNum
	dirty        bool
}

// Manager is the B+-tree access method, built directly on a pf buffer
// manager. Every open index file's header lives in memory between
// open_index and close_index, mirroring the descent stack and scan
// table's scoping (Design Notes §9).
type Manager struct {
	PF      *pf.Manager
	handles map[pf.FileID]*treeHandle
	scans   *scanTable
}

// New wraps an existing paged-file manager with B+-tree operations.
func New(m *pf.Manager) *Manager {
	return &Manager{PF: m, handles: map[pf.FileID]*treeHandle{}, scans: newScanTable()}
}

// IndexFileName builds the "<base_name>.<index_no>" convention of
// §4.4.6.
func IndexFileName(baseName string, indexNo int) string {
	return fmt.Sprintf("%s.%d", baseName, indexNo)
}

// CreateIndex creates and formats a new, empty index file.
func (m *Manager) CreateIndex(baseName string, indexNo int, attrType AttrType, attrLength int) error {
	if err := ValidateAttr(attrType, attrLength); err != nil {
		return err
	}
	name := IndexFileName(baseName, indexNo)
	if err := m.PF.CreateFile(name); err != nil {
		return err
	}
	fid, err := m.PF.OpenFile(name)
	if err != nil {
		return err
	}
	leafMax, internalMax := computeMaxKeys(attrLength)
	page, buf, err := m.PF.AllocPage(fid)
	if err != nil {
		m.PF.CloseFile(fid)
		return err
	}
	if page != 0 {
		m.PF.UnfixPage(fid, page, false)
		m.PF.CloseFile(fid)
		return errs.Newf("am.CreateIndex", errs.IntError, "expected header on page 0, got %d", page)
	}
	initHeader(buf, attrType, attrLength, leafMax, internalMax)
	if err := m.PF.UnfixPage(fid, page, true); err != nil {
		m.PF.CloseFile(fid)
		return err
	}
	return m.PF.CloseFile(fid)
}

// DestroyIndex removes an index file. The file must not be open.
func (m *Manager) DestroyIndex(baseName string, indexNo int) error {
	return m.PF.DestroyFile(IndexFileName(baseName, indexNo))
}

// OpenIndex opens an index file and loads its header into memory.
func (m *Manager) OpenIndex(baseName string, indexNo int) (pf.FileID, error) {
	name := IndexFileName(baseName, indexNo)
	fid, err := m.PF.OpenFile(name)
	if err != nil {
		return 0, err
	}
	buf, err := m.PF.GetThisPage(fid, 0)
	if err != nil {
		m.PF.CloseFile(fid)
		return 0, err
	}
	h := wrapHeader(buf)
	if !h.valid() {
		m.PF.UnfixPage(fid, 0, false)
		m.PF.CloseFile(fid)
		return 0, errs.Newf("am.OpenIndex", errs.IntError, "%s: not an index file", name)
	}
	handle := &treeHandle{
		attrType:     h.attrType(),
		attrLength:   h.attrLength(),
		leafMax:      h.leafMaxKeys(),
		internalMax:  h.internalMaxKeys(),
		root:         h.root(),
		leftmostLeaf: h.leftmostLeaf(),
	}
	if err := m.PF.UnfixPage(fid, 0, false); err != nil {
		m.PF.CloseFile(fid)
		return 0, err
	}
	m.handles[fid] = handle
	return fid, nil
}

// CloseIndex flushes any pending header change and closes the file.
func (m *Manager) CloseIndex(fid pf.FileID) error {
	if err := m.flushHeader(fid); err != nil {
		return err
	}
	delete(m.handles, fid)
	return m.PF.CloseFile(fid)
}

func (m *Manager) handle(fid pf.FileID) (*treeHandle, error) {
	h, ok := m.handles[fid]
	if !ok {
		return nil, errs.New("am", errs.FD)
	}
	return h, nil
}

func (m *Manager) flushHeader(fid pf.FileID) error {
	h, ok := m.handles[fid]
	if !ok || !h.dirty {
		return nil
	}
	buf, err := m.PF.GetThisPage(fid, 0)
	if err != nil {
		return err
	}
	th := wrapHeader(buf)
	th.setRoot(h.root)
	th.setLeftmostLeaf(h.leftmostLeaf)
	if err := m.PF.UnfixPage(fid, 0, true); err != nil {
		return err
	}
	h.dirty = false
	return nil
}

// descentFrame is one step of the root-to-leaf path, recording the
// internal page visited and the child offset taken, for split
// propagation (§4.5). It is a plain scoped local, not module state.
type descentFrame struct {
	page  pf.PageNum
	index int
}

// search descends from the root to the leaf that would hold key,
// returning the descent stack, the pinned leaf's page number and
// buffer, and the binary-search position within the leaf.
func (m *Manager) search(fid pf.FileID, h *treeHandle, key []byte) (stack []descentFrame, leafPageNum pf.PageNum, leafBuf []byte, index int, found bool, err error) {
	page := h.root
	buf, err := m.PF.GetThisPage(fid, page)
	if err != nil {
		return nil, 0, nil, 0, false, err
	}
	for buf[0] == pageInternal {
		ip := wrapInternal(buf)
		idx := ip.childIndex(key, h.attrType, h.attrLength)
		child := ip.childAt(idx)
		stack = append(stack, descentFrame{page: page, index: idx})
		if uerr := m.PF.UnfixPage(fid, page, false); uerr != nil {
			return nil, 0, nil, 0, false, uerr
		}
		page = child
		buf, err = m.PF.GetThisPage(fid, page)
		if err != nil {
			return nil, 0, nil, 0, false, err
		}
	}
	lp := wrapLeaf(buf)
	idx, ok := lp.searchKey(key, h.attrType, h.attrLength)
	return stack, page, buf, idx, ok, nil
}

// InsertEntry inserts (key, recid) per §4.4.3. An existing key gets the
// recid appended to its chain in place; if the leaf's extension region
// is full, it fails with NoMemory and does not split. A new distinct key
// is inserted in place if the leaf has room, else the leaf is split and
// the split propagates up the descent stack.
func (m *Manager) InsertEntry(fid pf.FileID, key []byte, recid uint32) error {
	h, err := m.handle(fid)
	if err != nil {
		return err
	}

	if h.root == -1 {
		page, buf, err := m.PF.AllocPage(fid)
		if err != nil {
			return err
		}
		lp := initLeaf(buf, h.attrLength, h.leafMax)
		if err := lp.insertKey(0, key, recid); err != nil {
			m.PF.UnfixPage(fid, page, false)
			return err
		}
		if err := m.PF.UnfixPage(fid, page, true); err != nil {
			return err
		}
		h.root, h.leftmostLeaf, h.dirty = page, page, true
		return m.flushHeader(fid)
	}

	stack, leafPageNum, buf, index, found, err := m.search(fid, h, key)
	if err != nil {
		return err
	}
	lp := wrapLeaf(buf)

	if found {
		if lp.appendDuplicate(index, recid) {
			return m.PF.UnfixPage(fid, leafPageNum, true)
		}
		// The leaf's duplicate-extension region (sized evenly against its
		// primary capacity by computeMaxKeys) is exhausted; a key with
		// this many duplicates on one leaf is pathological for the
		// configured attribute length.
		m.PF.UnfixPage(fid, leafPageNum, false)
		return errs.New("am.InsertEntry", errs.NoMemory)
	}

	if lp.numKeys() < lp.maxKeys() {
		if err := lp.insertKey(index, key, recid); err != nil {
			m.PF.UnfixPage(fid, leafPageNum, false)
			return err
		}
		return m.PF.UnfixPage(fid, leafPageNum, true)
	}

	splitKey, newPageNum, err := m.splitLeaf(fid, h, leafPageNum, lp, index, key, recid)
	if err != nil {
		m.PF.UnfixPage(fid, leafPageNum, false)
		return err
	}
	if err := m.PF.UnfixPage(fid, leafPageNum, true); err != nil {
		return err
	}
	return m.propagateSplit(fid, h, stack, splitKey, newPageNum)
}

// splitLeaf rebuilds old and a freshly allocated right sibling from the
// combined, ordered entry set (old leaf's entries plus the new one),
// splitting at the midpoint. Each entry's full duplicate chain moves
// with it — extension-region indices are page-local, so chains are
// replayed onto their destination page rather than copied byte-for-byte.
func (m *Manager) splitLeaf(fid pf.FileID, h *treeHandle, oldPageNum pf.PageNum, old *leafPage, index int, newKey []byte, newRecID uint32) ([]byte, pf.PageNum, error) {
	n := old.numKeys()
	entries := make([]leafEntry, 0, n+1)
	for i := 0; i < n; i++ {
		if i == index {
			entries = append(entries, leafEntry{key: newKey, recids: []uint32{newRecID}})
		}
		k := make([]byte, old.attrLength())
		copy(k, old.keyAt(i))
		entries = append(entries, leafEntry{key: k, recids: old.recidsAt(i)})
	}
	if index == n {
		entries = append(entries, leafEntry{key: newKey, recids: []uint32{newRecID}})
	}

	mid := len(entries) / 2
	leftEntries, rightEntries := entries[:mid], entries[mid:]

	newPageNum, newBuf, err := m.PF.AllocPage(fid)
	if err != nil {
		return nil, 0, err
	}
	newLeaf := initLeaf(newBuf, h.attrLength, h.leafMax)
	newLeaf.setNextLeaf(old.nextLeaf())

	old.setNumKeys(0)
	old.setFreeListHead(noExt)
	old.setFreeListCount(0)
	old.setExtHighWater(0)
	if err := replayLeafEntries(old, leftEntries); err != nil {
		m.PF.UnfixPage(fid, newPageNum, true)
		return nil, 0, err
	}
	if err := replayLeafEntries(newLeaf, rightEntries); err != nil {
		m.PF.UnfixPage(fid, newPageNum, true)
		return nil, 0, err
	}
	old.setNextLeaf(newPageNum)

	if err := m.PF.UnfixPage(fid, newPageNum, true); err != nil {
		return nil, 0, err
	}
	splitKey := make([]byte, h.attrLength)
	copy(splitKey, rightEntries[0].key)
	return splitKey, newPageNum, nil
}

// leafEntry is one (key, recid-chain) pairing used when rebuilding a
// leaf during a split — its recids are replayed via insertKey plus
// appendDuplicate rather than copied byte-for-byte, since duplicate
// extension slots are indices local to one page.
type leafEntry struct {
	key    []byte
	recids []uint32
}

func replayLeafEntries(lp *leafPage, entries []leafEntry) error {
	for _, e := range entries {
		if err := lp.insertKey(lp.numKeys(), e.key, e.recids[0]); err != nil {
			return err
		}
		for _, r := range e.recids[1:] {
			if !lp.appendDuplicate(lp.numKeys()-1, r) {
				return errs.New("am.splitLeaf", errs.NoMemory)
			}
		}
	}
	return nil
}

// propagateSplit inserts (splitKey, rightChild) into the parent
// recorded at the top of stack, splitting internal nodes as needed and
// finally splitting the root if the stack empties without absorption
// (§4.4.3).
func (m *Manager) propagateSplit(fid pf.FileID, h *treeHandle, stack []descentFrame, splitKey []byte, rightChild pf.PageNum) error {
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		buf, err := m.PF.GetThisPage(fid, top.page)
		if err != nil {
			return err
		}
		ip := wrapInternal(buf)
		if ip.numKeys() < ip.maxKeys() {
			ip.insertAt(top.index, splitKey, rightChild)
			return m.PF.UnfixPage(fid, top.page, true)
		}
		newSplitKey, newRight, serr := m.splitInternal(fid, h, ip, top.index, splitKey, rightChild)
		if serr != nil {
			m.PF.UnfixPage(fid, top.page, false)
			return serr
		}
		if err := m.PF.UnfixPage(fid, top.page, true); err != nil {
			return err
		}
		splitKey, rightChild = newSplitKey, newRight
	}

	newRootNum, newRootBuf, err := m.PF.AllocPage(fid)
	if err != nil {
		return err
	}
	nr := initInternal(newRootBuf, h.attrLength, h.internalMax)
	nr.setChildAt(0, h.root)
	nr.insertAt(0, splitKey, rightChild)
	if err := m.PF.UnfixPage(fid, newRootNum, true); err != nil {
		return err
	}
	h.root, h.dirty = newRootNum, true
	return m.flushHeader(fid)
}

// splitInternal rebuilds an overflowing internal node and a new right
// sibling from its combined, ordered key/child set, promoting the
// median key to the caller for insertion into the grandparent.
func (m *Manager) splitInternal(fid pf.FileID, h *treeHandle, ip *internalPage, insertPos int, newKey []byte, newRightChild pf.PageNum) ([]byte, pf.PageNum, error) {
	n := ip.numKeys()
	keys := make([][]byte, 0, n+1)
	children := make([]pf.PageNum, 0, n+2)
	children = append(children, ip.childAt(0))
	for i := 0; i < n; i++ {
		if i == insertPos {
			keys = append(keys, newKey)
			children = append(children, newRightChild)
		}
		k := make([]byte, ip.attrLength())
		copy(k, ip.keyAt(i))
		keys = append(keys, k)
		children = append(children, ip.childAt(i+1))
	}
	if insertPos == n {
		keys = append(keys, newKey)
		children = append(children, newRightChild)
	}

	mid := len(keys) / 2
	medianKey := keys[mid]
	leftKeys, leftChildren := keys[:mid], children[:mid+1]
	rightKeys, rightChildren := keys[mid+1:], children[mid+1:]

	newPageNum, newBuf, err := m.PF.AllocPage(fid)
	if err != nil {
		return nil, 0, err
	}
	right := initInternal(newBuf, h.attrLength, h.internalMax)
	right.setChildAt(0, rightChildren[0])
	for i, k := range rightKeys {
		right.insertAt(i, k, rightChildren[i+1])
	}
	if err := m.PF.UnfixPage(fid, newPageNum, true); err != nil {
		return nil, 0, err
	}

	ip.setNumKeys(0)
	ip.setChildAt(0, leftChildren[0])
	for i, k := range leftKeys {
		ip.insertAt(i, k, leftChildren[i+1])
	}

	return medianKey, newPageNum, nil
}

// DeleteEntry removes one (key, recid) pairing per §4.4.4. Leaves are
// never merged and internal nodes never rebalanced.
func (m *Manager) DeleteEntry(fid pf.FileID, key []byte, recid uint32) error {
	h, err := m.handle(fid)
	if err != nil {
		return err
	}
	if h.root == -1 {
		return errs.New("am.DeleteEntry", errs.NotFound)
	}
	_, leafPageNum, buf, index, found, err := m.search(fid, h, key)
	if err != nil {
		return err
	}
	lp := wrapLeaf(buf)
	if !found {
		m.PF.UnfixPage(fid, leafPageNum, false)
		return errs.New("am.DeleteEntry", errs.NotFound)
	}
	empty, ok := lp.removeRecid(index, recid)
	if !ok {
		m.PF.UnfixPage(fid, leafPageNum, false)
		return errs.New("am.DeleteEntry", errs.NotFound)
	}
	if empty {
		lp.removeKey(index)
	}
	return m.PF.UnfixPage(fid, leafPageNum, true)
}
