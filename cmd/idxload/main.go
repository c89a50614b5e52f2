// Command idxload builds a B+-tree index over an existing slotted-page
// file, either by inserting records in scan order or, with -bulk, by
// sorting all (key, recid) pairs in memory first so ascending inserts
// minimize split churn.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"pfidx/internal/am"
	"pfidx/internal/engine"
	"pfidx/internal/errs"
	"pfidx/internal/pf"
)

// keyRec mirrors the original loader's (key,recId) pair, collected in a
// first pass over the slotted-page file before any index insert happens.
type keyRec struct {
	key   int32
	recID uint32
}

func main() {
	spFile := flag.String("sp", "sp_student.dat", "slotted-page data file to index")
	indexNo := flag.Int("index", 3, "index number (file becomes <sp without .dat>.<index>)")
	field := flag.Int("field", 1, "semicolon-delimited field position holding the INT key")
	bulk := flag.Bool("bulk", false, "sort all keys before inserting, to minimize split churn")
	gen := flag.Int("gen", 0, "if >0 and -sp doesn't exist, synthesize this many demo records first")
	out := flag.String("out", "am_bulk_load.csv", "stats CSV to append to")
	flag.Parse()

	e := engine.Open(engine.Config{PoolSize: 256})

	if *gen > 0 {
		if err := ensureSPFile(e, *spFile, *gen); err != nil {
			log.Fatalf("generating demo data: %v", err)
		}
	}

	fid, err := e.PF.OpenFile(*spFile)
	if err != nil {
		log.Fatalf("opening %s: %v", *spFile, err)
	}
	defer e.PF.CloseFile(fid)

	pairs, err := collectKeys(e, fid, *field)
	if err != nil {
		log.Fatalf("collecting keys: %v", err)
	}
	fmt.Printf("collected %d keys from %s\n", len(pairs), *spFile)

	if *bulk {
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
		fmt.Println("sorted for bulk load")
	}

	base := strings.TrimSuffix(*spFile, ".dat")
	if err := e.AM.CreateIndex(base, *indexNo, am.Int, 4); err != nil {
		log.Fatalf("CreateIndex: %v", err)
	}
	amFID, err := e.AM.OpenIndex(base, *indexNo)
	if err != nil {
		log.Fatalf("OpenIndex: %v", err)
	}
	defer e.AM.CloseIndex(amFID)

	before := e.Counters()
	start := time.Now()
	for _, p := range pairs {
		if ierr := e.AM.InsertEntry(amFID, am.EncodeInt(p.key), p.recID); ierr != nil {
			log.Fatalf("InsertEntry(%d,%d): %v", p.key, p.recID, ierr)
		}
	}
	elapsed := time.Since(start)
	after := e.Counters()

	method := "sorted_insert"
	if !*bulk {
		method = "scan_order_insert"
	}
	runID := uuid.New().String()
	if err := appendStatsCSV(*out, runID, method, len(pairs), elapsed,
		after.LogicalRequests-before.LogicalRequests,
		after.PhysicalReads-before.PhysicalReads,
		after.PhysicalWrites-before.PhysicalWrites); err != nil {
		log.Fatalf("writing stats: %v", err)
	}
	fmt.Printf("inserted %d entries (%s) in %s, run=%s\n", len(pairs), method, elapsed, runID)
}

// ensureSPFile creates spFile with n synthetic "id;roll;name" records if
// it doesn't already exist, so idxload can be exercised standalone.
func ensureSPFile(e *engine.Engine, spFile string, n int) error {
	if _, err := os.Stat(spFile); err == nil {
		return nil
	}
	if err := e.PF.CreateFile(spFile); err != nil {
		return errors.Wrapf(err, "creating %s", spFile)
	}
	fid, err := e.PF.OpenFile(spFile)
	if err != nil {
		return errors.Wrapf(err, "opening %s", spFile)
	}
	defer e.PF.CloseFile(fid)
	for i := 0; i < n; i++ {
		rec := fmt.Sprintf("%d;%d;student%d", i, (i*37+1)%n, i)
		if _, err := e.SP.Insert(fid, []byte(rec)); err != nil {
			return errors.Wrapf(err, "inserting demo record %d", i)
		}
	}
	return nil
}

// collectKeys scans fid once, extracting the integer key at
// fieldIndex from each semicolon-delimited record.
func collectKeys(e *engine.Engine, fid pf.FileID, fieldIndex int) ([]keyRec, error) {
	scan, err := e.SP.OpenScan(fid)
	if err != nil {
		return nil, err
	}
	defer scan.Close()

	var pairs []keyRec
	for {
		id, data, err := scan.Next()
		if errs.IsEOF(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		key, ferr := extractKeyField(data, fieldIndex)
		if ferr != nil {
			return nil, errors.Wrapf(ferr, "record %v", id)
		}
		pairs = append(pairs, keyRec{key: key, recID: uint32(id)})
	}
	return pairs, nil
}

// extractKeyField splits rec on ';' and parses the fieldIndex'th token
// as a base-10 integer, mirroring the original loader's field extraction.
func extractKeyField(rec []byte, fieldIndex int) (int32, error) {
	fields := strings.Split(string(rec), ";")
	field, ok := lo.Nth(fields, fieldIndex)
	if !ok {
		return 0, errors.Errorf("record %q has no field %d", rec, fieldIndex)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(field), 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing field %d of %q", fieldIndex, rec)
	}
	return int32(v), nil
}

// appendStatsCSV appends one row to the run's stats CSV, writing the
// header first if the file is new.
func appendStatsCSV(path, runID, method string, records int, elapsed time.Duration, logicalReq, physReads, physWrites int64) error {
	_, statErr := os.Stat(path)
	needsHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if needsHeader {
		if err := w.Write([]string{"run", "method", "records", "time_sec", "logicalReq", "physReads", "physWrites"}); err != nil {
			return err
		}
	}
	row := []string{
		runID,
		method,
		strconv.Itoa(records),
		strconv.FormatFloat(elapsed.Seconds(), 'f', 4, 64),
		strconv.FormatInt(logicalReq, 10),
		strconv.FormatInt(physReads, 10),
		strconv.FormatInt(physWrites, 10),
	}
	return w.Write(row)
}
