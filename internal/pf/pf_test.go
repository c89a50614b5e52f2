package pf

import (
	"os"
	"path/filepath"
	"testing"

	"pfidx/internal/errs"
)

func tempFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.pf")
}

func TestCreateOpenClose(t *testing.T) {
	name := tempFile(t)
	m := Open(Config{PoolSize: 4})
	if err := m.CreateFile(name); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := m.CreateFile(name); !errs.Is(err, errs.FileOpen) {
		t.Fatalf("expected FileOpen on double create, got %v", err)
	}
	fid, err := m.OpenFile(name)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := m.CloseFile(fid); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
}

func TestAllocGetUnfixRoundTrip(t *testing.T) {
	name := tempFile(t)
	m := Open(Config{PoolSize: 4})
	if err := m.CreateFile(name); err != nil {
		t.Fatal(err)
	}
	fid, err := m.OpenFile(name)
	if err != nil {
		t.Fatal(err)
	}
	page, buf, err := m.AllocPage(fid)
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	copy(buf, []byte("hello, page"))
	if err := m.UnfixPage(fid, page, true); err != nil {
		t.Fatalf("UnfixPage: %v", err)
	}
	got, err := m.GetThisPage(fid, page)
	if err != nil {
		t.Fatalf("GetThisPage: %v", err)
	}
	if string(got[:11]) != "hello, page" {
		t.Fatalf("data mismatch: %q", got[:11])
	}
	if err := m.UnfixPage(fid, page, false); err != nil {
		t.Fatal(err)
	}
	if err := m.CloseFile(fid); err != nil {
		t.Fatal(err)
	}

	// Reopen and verify the write survived a close (flush-on-close).
	fid2, err := m.OpenFile(name)
	if err != nil {
		t.Fatal(err)
	}
	got2, err := m.GetThisPage(fid2, page)
	if err != nil {
		t.Fatal(err)
	}
	if string(got2[:11]) != "hello, page" {
		t.Fatalf("data did not survive close: %q", got2[:11])
	}
	m.UnfixPage(fid2, page, false)
	m.CloseFile(fid2)
}

func TestUnfixMisuse(t *testing.T) {
	name := tempFile(t)
	m := Open(Config{PoolSize: 4})
	m.CreateFile(name)
	fid, _ := m.OpenFile(name)
	page, _, _ := m.AllocPage(fid)
	if err := m.UnfixPage(fid, page, false); err != nil {
		t.Fatal(err)
	}
	if err := m.UnfixPage(fid, page, false); !errs.Is(err, errs.PageUnfixed) {
		t.Fatalf("expected PageUnfixed, got %v", err)
	}
	if err := m.UnfixPage(fid, 999, false); !errs.Is(err, errs.PageNotInBuf) {
		t.Fatalf("expected PageNotInBuf, got %v", err)
	}
}

func TestCloseFileRefusesPinned(t *testing.T) {
	name := tempFile(t)
	m := Open(Config{PoolSize: 4})
	m.CreateFile(name)
	fid, _ := m.OpenFile(name)
	page, _, _ := m.AllocPage(fid)
	_ = page
	if err := m.CloseFile(fid); !errs.Is(err, errs.PageFixed) {
		t.Fatalf("expected PageFixed, got %v", err)
	}
	m.UnfixPage(fid, page, false)
	if err := m.CloseFile(fid); err != nil {
		t.Fatal(err)
	}
}

func TestDisposeAndAllocReusesFreeList(t *testing.T) {
	name := tempFile(t)
	m := Open(Config{PoolSize: 4})
	m.CreateFile(name)
	fid, _ := m.OpenFile(name)

	p0, _, _ := m.AllocPage(fid)
	m.UnfixPage(fid, p0, false)
	p1, _, _ := m.AllocPage(fid)
	m.UnfixPage(fid, p1, false)

	if err := m.DisposePage(fid, p0); err != nil {
		t.Fatalf("DisposePage: %v", err)
	}
	if err := m.DisposePage(fid, p0); !errs.Is(err, errs.PageFree) {
		t.Fatalf("expected PageFree on double dispose, got %v", err)
	}

	p2, _, err := m.AllocPage(fid)
	if err != nil {
		t.Fatal(err)
	}
	if p2 != p0 {
		t.Fatalf("expected freed page %d reused, got %d", p0, p2)
	}
	m.UnfixPage(fid, p2, false)
	m.CloseFile(fid)
}

func TestCounters_LogicalRequestsEqualsHitsPlusReads(t *testing.T) {
	name := tempFile(t)
	m := Open(Config{PoolSize: 2})
	m.CreateFile(name)
	fid, _ := m.OpenFile(name)

	pages := make([]PageNum, 5)
	for i := range pages {
		p, _, _ := m.AllocPage(fid)
		pages[i] = p
		m.UnfixPage(fid, p, false)
	}

	for round := 0; round < 3; round++ {
		for _, p := range pages {
			if _, err := m.GetThisPage(fid, p); err != nil {
				t.Fatal(err)
			}
			m.UnfixPage(fid, p, false)
		}
	}

	if m.Counters.LogicalRequests != m.Counters.LogicalHits+m.Counters.PhysicalReads {
		t.Fatalf("logical_requests(%d) != hits(%d)+reads(%d)",
			m.Counters.LogicalRequests, m.Counters.LogicalHits, m.Counters.PhysicalReads)
	}
	m.CloseFile(fid)
}

func TestEOFOnOutOfRangePage(t *testing.T) {
	name := tempFile(t)
	m := Open(Config{PoolSize: 2})
	m.CreateFile(name)
	fid, _ := m.OpenFile(name)
	if _, err := m.GetThisPage(fid, 5); !errs.Is(err, errs.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	m.CloseFile(fid)
}

func TestReplacementPolicies(t *testing.T) {
	for _, policy := range []ReplacementPolicy{LRU, MRU} {
		name := filepath.Join(t.TempDir(), "policy.pf")
		m := Open(Config{PoolSize: 3, Policy: policy})
		m.CreateFile(name)
		fid, _ := m.OpenFile(name)

		pages := make([]PageNum, 5)
		for i := range pages {
			p, _, _ := m.AllocPage(fid)
			pages[i] = p
			m.UnfixPage(fid, p, false)
		}

		ops := 30
		for i := 0; i < ops; i++ {
			p := pages[i%len(pages)]
			if _, err := m.GetThisPage(fid, p); err != nil {
				t.Fatalf("%s: GetThisPage: %v", policy, err)
			}
			m.UnfixPage(fid, p, false)
		}

		if m.Counters.LogicalRequests != m.Counters.LogicalHits+m.Counters.PhysicalReads {
			t.Fatalf("%s: counter identity broken", policy)
		}
		m.CloseFile(fid)
	}
}

func TestDestroyFile(t *testing.T) {
	name := tempFile(t)
	m := Open(Config{PoolSize: 2})
	m.CreateFile(name)
	if err := m.DestroyFile(name); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err = %v", err)
	}
}
