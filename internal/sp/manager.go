package sp

import (
	"pfidx/internal/errs"
	"pfidx/internal/pf"
)

// Manager is the slotted-page record layer built directly on a pf
// buffer manager. It holds no state of its own beyond that reference:
// every record operation reaches disk exclusively through PF (§4.3).
type Manager struct {
	PF *pf.Manager
}

// New wraps an existing paged-file manager with record-level operations.
func New(m *pf.Manager) *Manager { return &Manager{PF: m} }

// maxRecordLen is the largest record that can ever fit a freshly
// allocated, empty page (header plus one slot deducted).
const maxRecordLen = pf.PageSize - hdrSize - slotSize

// Insert scans fid's pages in order for the first one with enough free
// space, reusing a tombstone slot when possible, else appends a new
// page. Exactly one page is pinned at a time during the search (§4.3).
func (m *Manager) Insert(fid pf.FileID, data []byte) (RecID, error) {
	if len(data) <= 0 || len(data) > maxRecordLen {
		return 0, errs.Newf("sp.Insert", errs.InvalidAttrLength, "record length %d out of range (1..%d)", len(data), maxRecordLen)
	}

	page, buf, err := m.PF.GetFirstPage(fid)
	for err == nil {
		p := wrapPage(buf)
		tomb := p.firstTombstone()
		reuse := -1
		fit := false
		if tomb >= 0 && p.fits(len(data), false) {
			fit, reuse = true, tomb
		} else if p.fits(len(data), true) {
			fit = true
		}
		if fit {
			idx := p.insert(data, reuse)
			if uerr := m.PF.UnfixPage(fid, page, true); uerr != nil {
				return 0, uerr
			}
			return NewRecID(page, idx), nil
		}
		if uerr := m.PF.UnfixPage(fid, page, false); uerr != nil {
			return 0, uerr
		}
		page, buf, err = m.PF.GetNextPage(fid, page)
	}
	if !errs.IsEOF(err) {
		return 0, err
	}

	page, buf, err = m.PF.AllocPage(fid)
	if err != nil {
		return 0, err
	}
	p := initPage(buf)
	idx := p.insert(data, -1)
	if uerr := m.PF.UnfixPage(fid, page, true); uerr != nil {
		return 0, uerr
	}
	return NewRecID(page, idx), nil
}

// Get returns a fresh copy of the record named by id.
func (m *Manager) Get(fid pf.FileID, id RecID) ([]byte, error) {
	buf, err := m.PF.GetThisPage(fid, id.Page())
	if err != nil {
		return nil, err
	}
	data, gerr := wrapPage(buf).get(id.Slot())
	if uerr := m.PF.UnfixPage(fid, id.Page(), false); uerr != nil {
		return nil, uerr
	}
	return data, gerr
}

// Delete tombstones the slot named by id. A second delete of the same
// id fails with NotFound.
func (m *Manager) Delete(fid pf.FileID, id RecID) error {
	buf, err := m.PF.GetThisPage(fid, id.Page())
	if err != nil {
		return err
	}
	derr := wrapPage(buf).delete(id.Slot())
	if uerr := m.PF.UnfixPage(fid, id.Page(), derr == nil); uerr != nil {
		return uerr
	}
	return derr
}

// CompactPage reclaims tombstone gaps on one page without disturbing
// slot indices, so outstanding record ids stay valid.
func (m *Manager) CompactPage(fid pf.FileID, page pf.PageNum) error {
	buf, err := m.PF.GetThisPage(fid, page)
	if err != nil {
		return err
	}
	wrapPage(buf).compact()
	return m.PF.UnfixPage(fid, page, true)
}

// Utilization sums non-tombstone record bytes across every page of fid.
func (m *Manager) Utilization(fid pf.FileID) (Utilization, error) {
	var u Utilization
	page, buf, err := m.PF.GetFirstPage(fid)
	for err == nil {
		u.Pages++
		u.LiveBytes += wrapPage(buf).liveBytes()
		if uerr := m.PF.UnfixPage(fid, page, false); uerr != nil {
			return u, uerr
		}
		page, buf, err = m.PF.GetNextPage(fid, page)
	}
	if !errs.IsEOF(err) {
		return u, err
	}
	if u.Pages > 0 {
		u.Percent = float64(u.LiveBytes) / float64(int64(u.Pages)*pf.PageSize) * 100
	}
	return u, nil
}

// Scan iterates live records of a file in (page, slot) ascending order,
// holding at most one page pinned at a time (§4.3).
type Scan struct {
	m      *Manager
	fid    pf.FileID
	page   pf.PageNum
	sp     *slottedPage
	idx    int
	pinned bool
	done   bool
}

// OpenScan begins a full-file record scan.
func (m *Manager) OpenScan(fid pf.FileID) (*Scan, error) {
	s := &Scan{m: m, fid: fid}
	page, buf, err := m.PF.GetFirstPage(fid)
	if err != nil {
		if errs.IsEOF(err) {
			s.done = true
			return s, nil
		}
		return nil, err
	}
	s.page, s.sp, s.pinned = page, wrapPage(buf), true
	return s, nil
}

// Next returns the next live record, or an EOF error once exhausted.
func (s *Scan) Next() (RecID, []byte, error) {
	for {
		if s.done {
			return 0, nil, errs.New("sp.Scan.Next", errs.EOF)
		}
		if s.idx >= s.sp.slotCount() {
			if uerr := s.m.PF.UnfixPage(s.fid, s.page, false); uerr != nil {
				return 0, nil, uerr
			}
			s.pinned = false
			next, buf, err := s.m.PF.GetNextPage(s.fid, s.page)
			if err != nil {
				s.done = true
				if !errs.IsEOF(err) {
					return 0, nil, err
				}
				continue
			}
			s.page, s.sp, s.idx, s.pinned = next, wrapPage(buf), 0, true
			continue
		}
		if s.sp.isTombstone(s.idx) {
			s.idx++
			continue
		}
		data, err := s.sp.get(s.idx)
		id := NewRecID(s.page, s.idx)
		s.idx++
		if err != nil {
			return 0, nil, err
		}
		return id, data, nil
	}
}

// Close releases any page still held by the scan.
func (s *Scan) Close() error {
	if !s.pinned {
		return nil
	}
	err := s.m.PF.UnfixPage(s.fid, s.page, false)
	s.pinned = false
	return err
}
