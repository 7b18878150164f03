package indicator

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"indlink/internal/rowstore"
)

const (
	rolloverPrefix = "collected"
	rolloverSuffix = ".csv"
)

// dirLocks serializes exports per directory within this process. Separate
// processes sharing a directory must still not export concurrently.
var dirLocks sync.Map // cleaned dir → *sync.Mutex

func lockDir(dir string) func() {
	key := filepath.Clean(dir)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}
	v, _ := dirLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// NextFile returns the next rollover path in dir: collected<N+1>.csv where N
// is the highest existing sequence, or collected0.csv if there is none.
// A matching name with a non-numeric sequence aborts with ErrBadRolloverName.
func NextFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", dir, err)
	}

	mx := -1
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, rolloverPrefix) || !strings.HasSuffix(name, rolloverSuffix) {
			continue
		}
		seq := name[len(rolloverPrefix) : len(name)-len(rolloverSuffix)]
		n, err := strconv.Atoi(seq)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrBadRolloverName, name)
		}
		if n > mx {
			mx = n
		}
	}
	return filepath.Join(dir, rolloverPrefix+strconv.Itoa(mx+1)+rolloverSuffix), nil
}

// ExportResult describes one written dataset file.
type ExportResult struct {
	Path    string
	Rows    int
	Columns int
}

// Export writes the rows of one instrument to the next rollover file in dir.
// The header lists the schema columns double-quoted; each following line is
// "timestamp,<row values>" in ascending timestamp order. On failure the
// partial file is removed and the error wraps ErrExport. A nil store
// writes the header only.
func Export(dir string, schema *Schema, store *rowstore.Store, instrument string) (ExportResult, error) {
	unlock := lockDir(dir)
	defer unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ExportResult{}, fmt.Errorf("%w: %w", ErrExport, err)
	}
	path, err := NextFile(dir)
	if err != nil {
		if errors.Is(err, ErrBadRolloverName) {
			return ExportResult{}, err
		}
		return ExportResult{}, fmt.Errorf("%w: %w", ErrExport, err)
	}

	rows, err := writeCollected(path, schema, store, instrument)
	if err != nil {
		return ExportResult{}, fmt.Errorf("%w: %s: %w", ErrExport, path, err)
	}
	return ExportResult{Path: path, Rows: rows, Columns: schema.Width()}, nil
}

func writeCollected(path string, schema *Schema, store *rowstore.Store, instrument string) (rows int, err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	w := bufio.NewWriter(f)
	if err := writeHeader(w, schema.Columns()); err != nil {
		return 0, err
	}
	if store != nil {
		for _, ts := range store.SortedTimestamps(instrument) {
			w.WriteString(strconv.FormatInt(ts, 10))
			w.WriteByte(',')
			w.WriteString(store.RowText(instrument, ts))
			if err := w.WriteByte('\n'); err != nil {
				return rows, err
			}
			rows++
		}
	}
	return rows, w.Flush()
}

func writeHeader(w io.Writer, cols []string) error {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(c, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
