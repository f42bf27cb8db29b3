package exec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/strataql/strata/internal/errs"
	"github.com/strataql/strata/internal/row"
)

// Tagged row encoding for spilled sorted runs, the same discriminated
// tag-byte scheme internal/stripe's footer uses for tagged column
// stats, reapplied here so a run file round-trips every row.Value type
// (not just the JSON-representable subset).
const (
	tagNull byte = iota
	tagInt
	tagFloat
	tagString
	tagBool
	tagTimestamp
	tagBinary
)

func writeRow(w *bufio.Writer, r row.Row) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(r))); err != nil {
		return err
	}
	for _, v := range r {
		if err := writeValue(w, v); err != nil {
			return err
		}
	}
	return nil
}

func writeValue(w *bufio.Writer, v row.Value) error {
	switch x := v.(type) {
	case nil:
		return w.WriteByte(tagNull)
	case int64:
		if err := w.WriteByte(tagInt); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, x)
	case float64:
		if err := w.WriteByte(tagFloat); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, x)
	case string:
		if err := w.WriteByte(tagString); err != nil {
			return err
		}
		return writeBytes(w, []byte(x))
	case bool:
		if err := w.WriteByte(tagBool); err != nil {
			return err
		}
		if x {
			return w.WriteByte(1)
		}
		return w.WriteByte(0)
	case time.Time:
		if err := w.WriteByte(tagTimestamp); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, x.UnixNano())
	case []byte:
		if err := w.WriteByte(tagBinary); err != nil {
			return err
		}
		return writeBytes(w, x)
	default:
		return fmt.Errorf("exec: unsupported spill value type %T", v)
	}
}

func writeBytes(w *bufio.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readRow(r *bufio.Reader) (row.Row, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make(row.Row, n)
	for i := range out {
		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func readValue(r *bufio.Reader) (row.Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNull:
		return nil, nil
	case tagInt:
		var x int64
		if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
			return nil, err
		}
		return x, nil
	case tagFloat:
		var x float64
		if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
			return nil, err
		}
		return x, nil
	case tagString:
		b, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case tagBool:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case tagTimestamp:
		var ns int64
		if err := binary.Read(r, binary.LittleEndian, &ns); err != nil {
			return nil, err
		}
		return time.Unix(0, ns).UTC(), nil
	case tagBinary:
		return readBytes(r)
	default:
		return nil, fmt.Errorf("exec: unknown spill value tag %d", tag)
	}
}

func readBytes(r *bufio.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readFull(r *bufio.Reader, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := r.Read(b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// sortedRun is one spilled, pre-sorted batch of rows, backed by a temp
// file so DISTINCT/ORDER BY/GROUP BY/hash-join stay within
// config.MemoryBudgetBytes instead of materializing an unbounded result
// (spec.md §5).
type sortedRun struct {
	path string
}

func spillRun(rows []row.Row) (*sortedRun, error) {
	f, err := os.CreateTemp("", "strata-run-*")
	if err != nil {
		return nil, errs.IOError("exec.spillRun", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, r := range rows {
		if err := writeRow(w, r); err != nil {
			os.Remove(f.Name())
			return nil, errs.IOError("exec.spillRun", err)
		}
	}
	if err := w.Flush(); err != nil {
		os.Remove(f.Name())
		return nil, errs.IOError("exec.spillRun", err)
	}
	return &sortedRun{path: f.Name()}, nil
}

// runReader streams rows back out of a sortedRun's temp file in the
// order they were written (already sorted by the caller before spill).
type runReader struct {
	f   *os.File
	r   *bufio.Reader
	cur row.Row
	err error
	eof bool
}

func (s *sortedRun) open() (*runReader, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errs.IOError("exec.sortedRun.open", err)
	}
	rr := &runReader{f: f, r: bufio.NewReader(f)}
	rr.advance()
	return rr, nil
}

func (rr *runReader) advance() {
	r, err := readRow(rr.r)
	if err != nil {
		rr.eof = true
		rr.cur = nil
		return
	}
	rr.cur = r
}

func (rr *runReader) close() { rr.f.Close() }

func (s *sortedRun) remove() { os.Remove(s.path) }
