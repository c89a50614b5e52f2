package pf

import (
	"encoding/binary"
	"os"

	"pfidx/internal/errs"
)

// openFile is the per-open-file metadata: the on-disk header (mirrored
// in memory), the free-page chain (loaded once at open, kept ordered so
// alloc pops the front in O(1), plus a set so double-dispose is
// detectable; dispose prepends by copying the slice), and the OS
// handle (§4.1, §6.2).
type openFile struct {
	name      string
	os        *os.File
	firstFree PageNum // mirrors the on-disk header
	numPages  int32
	freeOrder []PageNum       // free chain in on-disk link order, front = next alloc
	freeSet   map[PageNum]bool
}

func pageOffset(page PageNum) int64 {
	return int64(hdrSize) + int64(page)*int64(4+PageSize)
}

// readHeader reads {firstfree, numpages} from the start of the file.
func readHeader(f *os.File) (firstFree PageNum, numPages int32, err error) {
	buf := make([]byte, hdrSize)
	n, e := f.ReadAt(buf, 0)
	if e != nil || n != hdrSize {
		return 0, 0, errs.Wrap("pf.readHeader", errs.HdrRead, e)
	}
	firstFree = int32(binary.LittleEndian.Uint32(buf[0:4]))
	numPages = int32(binary.LittleEndian.Uint32(buf[4:8]))
	return firstFree, numPages, nil
}

func writeHeader(f *os.File, firstFree PageNum, numPages int32) error {
	buf := make([]byte, hdrSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(firstFree))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(numPages))
	if _, err := f.WriteAt(buf, 0); err != nil {
		return errs.Wrap("pf.writeHeader", errs.HdrWrite, err)
	}
	return nil
}

// readPageRaw reads the {nextfree, data} pair of one file page directly
// from disk, bypassing the buffer pool.
func readPageRaw(f *os.File, page PageNum) (nextFree int32, data [PageSize]byte, err error) {
	buf := make([]byte, 4+PageSize)
	n, e := f.ReadAt(buf, pageOffset(page))
	if e != nil || n != len(buf) {
		return 0, data, errs.Wrap("pf.readPageRaw", errs.IncompleteRead, e)
	}
	nextFree = int32(binary.LittleEndian.Uint32(buf[0:4]))
	copy(data[:], buf[4:])
	return nextFree, data, nil
}

func writePageRaw(f *os.File, page PageNum, nextFree int32, data *[PageSize]byte) error {
	buf := make([]byte, 4+PageSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(nextFree))
	copy(buf[4:], data[:])
	if _, err := f.WriteAt(buf, pageOffset(page)); err != nil {
		return errs.Wrap("pf.writePageRaw", errs.IncompleteWrite, err)
	}
	return nil
}

// writeNextFreeRaw updates only the 4-byte nextfree field of one page,
// without touching its data — used when a page is disposed while not
// resident in the buffer pool.
func writeNextFreeRaw(f *os.File, page PageNum, nextFree int32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(nextFree))
	if _, err := f.WriteAt(buf, pageOffset(page)); err != nil {
		return errs.Wrap("pf.writeNextFreeRaw", errs.IncompleteWrite, err)
	}
	return nil
}

func createFile(name string) error {
	if _, err := os.Stat(name); err == nil {
		return errs.New("pf.CreateFile", errs.FileOpen)
	}
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errs.Wrap("pf.CreateFile", errs.Unix, err)
	}
	defer f.Close()
	return writeHeader(f, ListEnd, 0)
}

func destroyFile(name string) error {
	if err := os.Remove(name); err != nil {
		return errs.Wrap("pf.DestroyFile", errs.Unix, err)
	}
	return nil
}

// openOSFile opens the file and walks its free-page chain once.
func openOSFile(name string) (*openFile, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0644)
	if err != nil {
		return nil, errs.Wrap("pf.OpenFile", errs.Unix, err)
	}
	firstFree, numPages, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	of := &openFile{
		name:      name,
		os:        f,
		firstFree: firstFree,
		numPages:  numPages,
		freeSet:   map[PageNum]bool{},
	}
	for p := firstFree; p != ListEnd; {
		next, _, err := readPageRaw(f, p)
		if err != nil {
			f.Close()
			return nil, err
		}
		of.freeOrder = append(of.freeOrder, p)
		of.freeSet[p] = true
		p = next
	}
	return of, nil
}
