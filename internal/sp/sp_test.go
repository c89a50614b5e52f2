package sp

import (
	"fmt"
	"path/filepath"
	"testing"

	"pfidx/internal/errs"
	"pfidx/internal/pf"
)

func newManager(t *testing.T) (*Manager, pf.FileID) {
	t.Helper()
	name := filepath.Join(t.TempDir(), "records.sp")
	pfm := pf.Open(pf.Config{PoolSize: 8})
	if err := pfm.CreateFile(name); err != nil {
		t.Fatal(err)
	}
	fid, err := pfm.OpenFile(name)
	if err != nil {
		t.Fatal(err)
	}
	return New(pfm), fid
}

func TestInsertGetRoundTrip(t *testing.T) {
	m, fid := newManager(t)
	id, err := m.Insert(fid, []byte("hello world"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := m.Get(fid, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestDeleteIsIdempotentlyRejected(t *testing.T) {
	m, fid := newManager(t)
	id, err := m.Insert(fid, []byte("gone soon"))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(fid, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(fid, id); !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound reading deleted record, got %v", err)
	}
	if err := m.Delete(fid, id); !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound on double delete, got %v", err)
	}
}

func TestRejectsOversizeAndEmptyRecords(t *testing.T) {
	m, fid := newManager(t)
	if _, err := m.Insert(fid, nil); !errs.Is(err, errs.InvalidAttrLength) {
		t.Fatalf("expected rejection of empty record, got %v", err)
	}
	big := make([]byte, pf.PageSize)
	if _, err := m.Insert(fid, big); !errs.Is(err, errs.InvalidAttrLength) {
		t.Fatalf("expected rejection of oversize record, got %v", err)
	}
}

func TestScanSkipsTombstonesInOrder(t *testing.T) {
	m, fid := newManager(t)
	var ids []RecID
	for i := 0; i < 20; i++ {
		id, err := m.Insert(fid, []byte(fmt.Sprintf("record-%02d", i)))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	for i := 0; i < len(ids); i += 3 {
		if err := m.Delete(fid, ids[i]); err != nil {
			t.Fatal(err)
		}
	}

	scan, err := m.OpenScan(fid)
	if err != nil {
		t.Fatal(err)
	}
	defer scan.Close()

	var seen []string
	for {
		_, data, err := scan.Next()
		if errs.IsEOF(err) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		seen = append(seen, string(data))
	}

	want := 0
	for i := 0; i < 20; i++ {
		if i%3 != 0 {
			want++
		}
	}
	if len(seen) != want {
		t.Fatalf("expected %d live records, saw %d", want, len(seen))
	}
}

func TestCompactPreservesRecordIDs(t *testing.T) {
	m, fid := newManager(t)
	var ids []RecID
	for i := 0; i < 10; i++ {
		id, err := m.Insert(fid, []byte(fmt.Sprintf("keep-%d", i)))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	for i := 0; i < 10; i += 2 {
		if err := m.Delete(fid, ids[i]); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.CompactPage(fid, ids[0].Page()); err != nil {
		t.Fatalf("CompactPage: %v", err)
	}
	for i := 1; i < 10; i += 2 {
		got, err := m.Get(fid, ids[i])
		if err != nil {
			t.Fatalf("Get after compact: %v", err)
		}
		if string(got) != fmt.Sprintf("keep-%d", i) {
			t.Fatalf("record id %v no longer matches after compact: %q", ids[i], got)
		}
	}
}

func TestUtilizationAccounting(t *testing.T) {
	m, fid := newManager(t)
	ids := make([]RecID, 0, 10)
	for i := 0; i < 10; i++ {
		id, err := m.Insert(fid, []byte("0123456789"))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	u, err := m.Utilization(fid)
	if err != nil {
		t.Fatal(err)
	}
	if u.LiveBytes != 100 {
		t.Fatalf("expected 100 live bytes, got %d", u.LiveBytes)
	}
	if u.Percent <= 0 || u.Percent > 100 {
		t.Fatalf("unreasonable percent: %v", u.Percent)
	}

	for _, id := range ids[:5] {
		if err := m.Delete(fid, id); err != nil {
			t.Fatal(err)
		}
	}
	u2, err := m.Utilization(fid)
	if err != nil {
		t.Fatal(err)
	}
	if u2.LiveBytes != 50 {
		t.Fatalf("expected 50 live bytes after deletes, got %d", u2.LiveBytes)
	}
}

func TestInsertSpillsToNewPageWhenFull(t *testing.T) {
	m, fid := newManager(t)
	payload := make([]byte, 500)
	var last pf.PageNum = -1
	grew := false
	for i := 0; i < 20; i++ {
		id, err := m.Insert(fid, payload)
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		if last != -1 && id.Page() != last {
			grew = true
		}
		last = id.Page()
	}
	if !grew {
		t.Fatal("expected records to spill across more than one page")
	}
}
