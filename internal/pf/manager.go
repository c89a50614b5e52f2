package pf

import "pfidx/internal/errs"

// Config configures a Manager's buffer pool.
type Config struct {
	PoolSize int // number of frames; 0 defaults to 64
	Policy   ReplacementPolicy
}

// Manager is the paged-file buffer manager: the single entry point for
// every file and page operation in spec §6.2. One Manager's buffer pool,
// hash index, and file table are shared by every file opened through it,
// matching the process-wide state described in §5 (callers needing
// concurrency safety serialize through their own lock at this boundary).
type Manager struct {
	pool     *pool
	files    map[FileID]*openFile
	nextFID  FileID
	Counters Counters
}

// Open creates a Manager with a fixed-size buffer pool.
func Open(cfg Config) *Manager {
	size := cfg.PoolSize
	if size <= 0 {
		size = 64
	}
	return &Manager{
		pool:  newPool(size, cfg.Policy),
		files: map[FileID]*openFile{},
	}
}

// CreateFile creates a new, empty paged file on disk.
func (m *Manager) CreateFile(name string) error { return createFile(name) }

// DestroyFile removes a paged file. The file must not be open.
func (m *Manager) DestroyFile(name string) error { return destroyFile(name) }

// OpenFile opens an existing paged file and returns its handle.
func (m *Manager) OpenFile(name string) (FileID, error) {
	of, err := openOSFile(name)
	if err != nil {
		return 0, err
	}
	fid := m.nextFID
	m.nextFID++
	m.files[fid] = of
	return fid, nil
}

func (m *Manager) file(fid FileID) (*openFile, error) {
	of, ok := m.files[fid]
	if !ok {
		return nil, errs.New("pf", errs.FD)
	}
	return of, nil
}

// CloseFile flushes and releases every frame of fid, then closes the OS
// handle. Fails with PageFixed if any frame of fid is still pinned.
func (m *Manager) CloseFile(fid FileID) error {
	of, err := m.file(fid)
	if err != nil {
		return err
	}
	if err := m.releaseFile(fid, of); err != nil {
		return err
	}
	if err := writeHeader(of.os, of.firstFree, of.numPages); err != nil {
		return err
	}
	err = of.os.Close()
	delete(m.files, fid)
	if err != nil {
		return errs.Wrap("pf.CloseFile", errs.Unix, err)
	}
	return nil
}

// releaseFile writes back every dirty frame of fid and drops it from the
// hash index and replacement list, without touching the OS handle.
func (m *Manager) releaseFile(fid FileID, of *openFile) error {
	for i := range m.pool.frames {
		f := &m.pool.frames[i]
		if !f.present || f.fid != fid {
			continue
		}
		if f.pin > 0 {
			return errs.New("pf.CloseFile", errs.PageFixed)
		}
		if f.dirty {
			if err := writePageRaw(of.os, f.page, f.nextFr, &f.data); err != nil {
				return err
			}
			m.Counters.PhysicalWrites++
		}
		m.pool.unlink(i)
		if err := m.pool.hash.delete(fid, f.page); err != nil {
			return err
		}
		f.present = false
		f.fid = invalidFID
		f.dirty = false
	}
	return nil
}

// GetThisPage pins and returns the data bytes of page in fid.
func (m *Manager) GetThisPage(fid FileID, page PageNum) ([]byte, error) {
	of, err := m.file(fid)
	if err != nil {
		return nil, err
	}
	m.Counters.LogicalRequests++
	if idx, ok := m.pool.hash.find(fid, page); ok {
		f := &m.pool.frames[idx]
		f.pin++
		m.pool.unlink(idx)
		m.Counters.LogicalHits++
		return f.data[:], nil
	}
	if page < 0 || page >= of.numPages {
		return nil, errs.New("pf.GetThisPage", errs.EOF)
	}
	idx, err := m.evictVictim("pf.GetThisPage")
	if err != nil {
		return nil, err
	}
	nextFree, data, err := readPageRaw(of.os, page)
	if err != nil {
		return nil, err
	}
	m.Counters.PhysicalReads++
	f := &m.pool.frames[idx]
	f.fid, f.page, f.nextFr, f.data = fid, page, nextFree, data
	f.dirty, f.pin, f.present = false, 1, true
	if err := m.pool.hash.insert(fid, page, idx); err != nil {
		return nil, err
	}
	return f.data[:], nil
}

// evictVictim finds a frame to reuse, writing it back first if dirty.
func (m *Manager) evictVictim(op string) (int, error) {
	idx, ok := m.pool.pickVictim()
	if !ok {
		return 0, m.pool.noBuf(op)
	}
	f := &m.pool.frames[idx]
	if f.present {
		if f.dirty {
			vof := m.files[f.fid]
			if vof != nil {
				if err := writePageRaw(vof.os, f.page, f.nextFr, &f.data); err != nil {
					return 0, err
				}
				m.Counters.PhysicalWrites++
			}
		}
		if err := m.pool.hash.delete(f.fid, f.page); err != nil {
			return 0, err
		}
	}
	m.pool.unlink(idx)
	f.present = false
	return idx, nil
}

// UnfixPage decrements the pin count and, once unpinned, splices the
// frame to the hot end of the replacement list. dirty is OR'd into the
// frame's dirty flag.
func (m *Manager) UnfixPage(fid FileID, page PageNum, dirty bool) error {
	idx, ok := m.pool.hash.find(fid, page)
	if !ok {
		return errs.New("pf.UnfixPage", errs.PageNotInBuf)
	}
	f := &m.pool.frames[idx]
	if f.pin <= 0 {
		return errs.New("pf.UnfixPage", errs.PageUnfixed)
	}
	f.dirty = f.dirty || dirty
	f.pin--
	if f.pin == 0 {
		m.pool.pushHot(idx)
	}
	return nil
}

// AllocPage allocates a new page (from the file's free list, or by
// growing the file) and returns it pinned with undefined contents.
func (m *Manager) AllocPage(fid FileID) (PageNum, []byte, error) {
	of, err := m.file(fid)
	if err != nil {
		return 0, nil, err
	}
	var page PageNum
	if n := len(of.freeOrder); n > 0 {
		page = of.freeOrder[0]
		of.freeOrder = of.freeOrder[1:]
		delete(of.freeSet, page)
		if len(of.freeOrder) > 0 {
			of.firstFree = of.freeOrder[0]
		} else {
			of.firstFree = ListEnd
		}
	} else {
		page = of.numPages
		of.numPages++
	}
	if err := writeHeader(of.os, of.firstFree, of.numPages); err != nil {
		return 0, nil, err
	}
	if _, ok := m.pool.hash.find(fid, page); ok {
		return 0, nil, errs.New("pf.AllocPage", errs.PageInBuf)
	}
	idx, err := m.evictVictim("pf.AllocPage")
	if err != nil {
		return 0, nil, err
	}
	f := &m.pool.frames[idx]
	f.fid, f.page, f.nextFr = fid, page, used
	f.data = [PageSize]byte{}
	f.dirty, f.pin, f.present = true, 1, true
	if err := m.pool.hash.insert(fid, page, idx); err != nil {
		return 0, nil, err
	}
	m.Counters.PageAllocations++
	return page, f.data[:], nil
}

// DisposePage frees page for reuse. The page must not be pinned; a
// second dispose of the same page fails with PageFree.
func (m *Manager) DisposePage(fid FileID, page PageNum) error {
	of, err := m.file(fid)
	if err != nil {
		return err
	}
	if of.freeSet[page] {
		return errs.New("pf.DisposePage", errs.PageFree)
	}
	if idx, ok := m.pool.hash.find(fid, page); ok {
		f := &m.pool.frames[idx]
		if f.pin > 0 {
			return errs.New("pf.DisposePage", errs.PageFixed)
		}
		m.pool.unlink(idx)
		if err := m.pool.hash.delete(fid, page); err != nil {
			return err
		}
		f.present = false
		f.fid = invalidFID
		f.dirty = false
	}
	// The nextfree link is always written directly so the on-disk chain
	// is correct even though the page is no longer cached.
	if err := writeNextFreeRaw(of.os, page, of.firstFree); err != nil {
		return err
	}
	of.freeOrder = append([]PageNum{page}, of.freeOrder...)
	of.freeSet[page] = true
	of.firstFree = page
	return writeHeader(of.os, of.firstFree, of.numPages)
}

// GetFirstPage returns the lowest-numbered in-use page of fid.
func (m *Manager) GetFirstPage(fid FileID) (PageNum, []byte, error) {
	return m.GetNextPage(fid, -1)
}

// GetNextPage returns the lowest-numbered in-use page after prev.
func (m *Manager) GetNextPage(fid FileID, prev PageNum) (PageNum, []byte, error) {
	of, err := m.file(fid)
	if err != nil {
		return 0, nil, err
	}
	for p := prev + 1; p < of.numPages; p++ {
		if of.freeSet[p] {
			continue
		}
		buf, err := m.GetThisPage(fid, p)
		if err != nil {
			return 0, nil, err
		}
		return p, buf, nil
	}
	return 0, nil, errs.New("pf.GetNextPage", errs.EOF)
}

// NumPages returns the current page count of fid.
func (m *Manager) NumPages(fid FileID) (int32, error) {
	of, err := m.file(fid)
	if err != nil {
		return 0, err
	}
	return of.numPages, nil
}
