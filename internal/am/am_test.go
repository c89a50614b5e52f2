package am

import (
	"math/rand"
	"path/filepath"
	"testing"

	"pfidx/internal/errs"
	"pfidx/internal/pf"
)

func newIndex(t *testing.T, attrType AttrType, attrLength int) (*Manager, pf.FileID) {
	t.Helper()
	dir := t.TempDir()
	base := filepath.Join(dir, "idx")
	pfm := pf.Open(pf.Config{PoolSize: 16})
	m := New(pfm)
	if err := m.CreateIndex(base, 0, attrType, attrLength); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	fid, err := m.OpenIndex(base, 0)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	return m, fid
}

func scanAll(t *testing.T, m *Manager, fid pf.FileID) []uint32 {
	t.Helper()
	slot, err := m.OpenScan(fid, All, nil)
	if err != nil {
		t.Fatalf("OpenScan: %v", err)
	}
	defer m.CloseScan(slot)
	var out []uint32
	for {
		r, err := m.Next(slot)
		if errs.IsEOF(err) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, r)
	}
	return out
}

func TestScenario1_DuplicateKeysInInsertionOrder(t *testing.T) {
	m, fid := newIndex(t, Int, 4)
	insert := func(key int32, recid uint32) {
		if err := m.InsertEntry(fid, EncodeInt(key), recid); err != nil {
			t.Fatalf("InsertEntry(%d,%d): %v", key, recid, err)
		}
	}
	insert(100, 1)
	insert(50, 2)
	insert(200, 3)
	insert(50, 4)

	got := scanAll(t, m, fid)
	want := []uint32{2, 4, 1, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestScenario2_EqualAndRangeScans(t *testing.T) {
	m, fid := newIndex(t, Int, 4)
	order := rand.New(rand.NewSource(7)).Perm(1000)
	for _, i := range order {
		key := int32(i + 1)
		if err := m.InsertEntry(fid, EncodeInt(key), uint32(key)); err != nil {
			t.Fatalf("InsertEntry(%d): %v", key, err)
		}
	}

	eq := func(k int32) []uint32 {
		slot, err := m.OpenScan(fid, Equal, EncodeInt(k))
		if err != nil {
			t.Fatal(err)
		}
		defer m.CloseScan(slot)
		var out []uint32
		for {
			r, err := m.Next(slot)
			if errs.IsEOF(err) {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			out = append(out, r)
		}
		return out
	}
	if got := eq(500); len(got) != 1 || got[0] != 500 {
		t.Fatalf("EQUAL(500) = %v", got)
	}

	slot, err := m.OpenScan(fid, GreaterThanEqual, EncodeInt(900))
	if err != nil {
		t.Fatal(err)
	}
	var ge []uint32
	for {
		r, err := m.Next(slot)
		if errs.IsEOF(err) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		ge = append(ge, r)
	}
	m.CloseScan(slot)
	if len(ge) != 101 {
		t.Fatalf("GREATER_THAN_EQUAL(900) returned %d entries, want 101", len(ge))
	}
	for i, r := range ge {
		if r != uint32(900+i) {
			t.Fatalf("GREATER_THAN_EQUAL(900)[%d] = %d, want %d", i, r, 900+i)
		}
	}

	slot2, err := m.OpenScan(fid, LessThan, EncodeInt(3))
	if err != nil {
		t.Fatal(err)
	}
	var lt []uint32
	for {
		r, err := m.Next(slot2)
		if errs.IsEOF(err) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		lt = append(lt, r)
	}
	m.CloseScan(slot2)
	if len(lt) != 2 || lt[0] != 1 || lt[1] != 2 {
		t.Fatalf("LESS_THAN(3) = %v, want [1 2]", lt)
	}
}

func TestScenario3_LeafChainEnumeratesInOrder(t *testing.T) {
	m, fid := newIndex(t, Int, 4)
	const n = 2000
	for i := int32(1); i <= n; i++ {
		if err := m.InsertEntry(fid, EncodeInt(i), uint32(i)); err != nil {
			t.Fatalf("InsertEntry(%d): %v", i, err)
		}
	}
	got := scanAll(t, m, fid)
	if len(got) != n {
		t.Fatalf("got %d entries, want %d", len(got), n)
	}
	for i := range got {
		if got[i] != uint32(i+1) {
			t.Fatalf("entry %d = %d, want %d", i, got[i], i+1)
		}
	}
}

func TestInsertThenDeleteRestoresMultiset(t *testing.T) {
	m, fid := newIndex(t, Int, 4)
	keys := []int32{5, 3, 9, 3, 7, 1, 9}
	for i, k := range keys {
		if err := m.InsertEntry(fid, EncodeInt(k), uint32(i)); err != nil {
			t.Fatal(err)
		}
	}
	before := scanAll(t, m, fid)

	if err := m.InsertEntry(fid, EncodeInt(42), 999); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteEntry(fid, EncodeInt(42), 999); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	after := scanAll(t, m, fid)

	if len(before) != len(after) {
		t.Fatalf("multiset size changed: before=%d after=%d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("multiset order changed at %d: before=%v after=%v", i, before, after)
		}
	}

	if err := m.DeleteEntry(fid, EncodeInt(42), 999); !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound on repeat delete, got %v", err)
	}
}

func TestPointScanCardinalityForDuplicates(t *testing.T) {
	m, fid := newIndex(t, Int, 4)
	for r := uint32(1); r <= 10; r++ {
		if err := m.InsertEntry(fid, EncodeInt(77), r); err != nil {
			t.Fatal(err)
		}
	}
	slot, err := m.OpenScan(fid, Equal, EncodeInt(77))
	if err != nil {
		t.Fatal(err)
	}
	defer m.CloseScan(slot)
	count := 0
	for {
		_, err := m.Next(slot)
		if errs.IsEOF(err) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		count++
	}
	if count != 10 {
		t.Fatalf("EQUAL(77) returned %d recids, want 10", count)
	}
}

func TestScenario6_ScanTableBound(t *testing.T) {
	m, fid := newIndex(t, Int, 4)
	if err := m.InsertEntry(fid, EncodeInt(1), 1); err != nil {
		t.Fatal(err)
	}
	slots := make([]int, 0, MaxScans)
	for i := 0; i < MaxScans; i++ {
		s, err := m.OpenScan(fid, All, nil)
		if err != nil {
			t.Fatalf("OpenScan %d: %v", i, err)
		}
		slots = append(slots, s)
	}
	if _, err := m.OpenScan(fid, All, nil); !errs.Is(err, errs.ScanTabFull) {
		t.Fatalf("expected ScanTabFull on the 21st scan, got %v", err)
	}
	for _, s := range slots {
		m.CloseScan(s)
	}
}

func TestCharKeyOrdering(t *testing.T) {
	m, fid := newIndex(t, Char, 8)
	words := []string{"delta", "alpha", "charlie", "bravo"}
	for i, w := range words {
		if err := m.InsertEntry(fid, EncodeChar(w, 8), uint32(i)); err != nil {
			t.Fatal(err)
		}
	}
	slot, err := m.OpenScan(fid, All, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m.CloseScan(slot)
	var order []uint32
	for {
		r, err := m.Next(slot)
		if errs.IsEOF(err) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		order = append(order, r)
	}
	// alpha(1) bravo(3) charlie(2) delta(0)
	want := []uint32{1, 3, 2, 0}
	if len(order) != len(want) {
		t.Fatalf("got %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestValidateAttrRejectsBadCombinations(t *testing.T) {
	if err := ValidateAttr(Int, 8); !errs.Is(err, errs.InvalidAttrLength) {
		t.Fatalf("expected InvalidAttrLength for INT length 8, got %v", err)
	}
	if err := ValidateAttr(Char, 0); !errs.Is(err, errs.InvalidAttrLength) {
		t.Fatalf("expected InvalidAttrLength for CHAR length 0, got %v", err)
	}
	if err := ValidateAttr(AttrType('x'), 4); !errs.Is(err, errs.InvalidAttrType) {
		t.Fatalf("expected InvalidAttrType, got %v", err)
	}
}

func TestDeleteMissingKeyFails(t *testing.T) {
	m, fid := newIndex(t, Int, 4)
	if err := m.DeleteEntry(fid, EncodeInt(1), 1); !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound on empty tree, got %v", err)
	}
	if err := m.InsertEntry(fid, EncodeInt(5), 5); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteEntry(fid, EncodeInt(5), 999); !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound deleting an unmatched recid, got %v", err)
	}
}
