// Package csvlog writes run logs as CSV files: one hparams.csv with the
// configuration of the run and one metrics.csv with a row per logged step,
// under <root>/<name>/version_<n>. Metric rows are appended in batches.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// FlushEvery is the number of buffered rows that triggers a flush.
const FlushEvery = 100

const metricsFile = "metrics.csv"

// Logger buffers metric rows and appends them to metrics.csv on flush.
// The header holds step and the sorted columns; a column first logged after
// rows were written widens the file once.
type Logger struct {
	dir     string
	runID   string
	header  []string
	known   map[string]bool
	f       *os.File
	w       *csv.Writer
	pending []map[string]string
}

// New creates the next free version directory of name under root. Columns
// declares metric names up front, so they are in the header from the start.
func New(root, name string, columns ...string) (*Logger, error) {
	base := filepath.Join(root, name)
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, err
	}
	version, err := nextVersion(base)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(base, fmt.Sprintf("version_%d", version))
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating log dir")
	}
	l := &Logger{
		dir:    dir,
		runID:  uuid.New().String(),
		header: []string{"step"},
		known:  map[string]bool{"step": true},
	}
	l.declare(columns)
	return l, nil
}

// declare adds the unknown keys to the header and reports whether any was new.
func (l *Logger) declare(keys []string) bool {
	var added bool
	for _, k := range keys {
		if !l.known[k] {
			l.known[k] = true
			l.header = append(l.header, k)
			added = true
		}
	}
	if added {
		sort.Strings(l.header[1:])
	}
	return added
}

func nextVersion(base string) (int, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return 0, err
	}
	next := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "version_") {
			continue
		}
		if v, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "version_")); err == nil && v >= next {
			next = v + 1
		}
	}
	return next, nil
}

// Dir returns the version directory.
func (l *Logger) Dir() string {
	return l.dir
}

// RunID returns the unique id of this run.
func (l *Logger) RunID() string {
	return l.runID
}

// LogHyperParams writes hparams.csv as key,value rows, the run id first.
func (l *Logger) LogHyperParams(params map[string]any) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "run_id" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	records := [][]string{{"key", "value"}, {"run_id", l.runID}}
	for _, k := range keys {
		records = append(records, []string{k, fmt.Sprint(params[k])})
	}
	return writeFile(filepath.Join(l.dir, "hparams.csv"), records)
}

// LogMetrics buffers one row for step.
func (l *Logger) LogMetrics(step int, metrics map[string]float64) error {
	row := map[string]string{"step": strconv.Itoa(step)}
	for k, v := range metrics {
		row[k] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	l.pending = append(l.pending, row)
	if len(l.pending) >= FlushEvery {
		return l.Flush()
	}
	return nil
}

// Flush appends the buffered rows to metrics.csv and drops them.
func (l *Logger) Flush() error {
	if len(l.pending) == 0 {
		return nil
	}
	var keys []string
	for _, row := range l.pending {
		for k := range row {
			keys = append(keys, k)
		}
	}
	widened := l.declare(keys)
	name := filepath.Join(l.dir, metricsFile)
	switch {
	case l.f == nil:
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		l.f, l.w = f, csv.NewWriter(f)
		if err := l.w.Write(l.header); err != nil {
			return errors.Wrapf(err, "writing %s", name)
		}
	case widened:
		if err := l.widen(name); err != nil {
			return err
		}
	}
	for _, row := range l.pending {
		rec := make([]string, len(l.header))
		for i, k := range l.header {
			rec[i] = row[k]
		}
		if err := l.w.Write(rec); err != nil {
			return errors.Wrapf(err, "writing %s", name)
		}
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return errors.Wrapf(err, "writing %s", name)
	}
	l.pending = nil
	return nil
}

// widen rewrites the rows already on disk under the current header and
// reopens the file for appending.
func (l *Logger) widen(name string) error {
	if err := l.f.Close(); err != nil {
		return err
	}
	l.f, l.w = nil, nil
	old, err := readFile(name)
	if err != nil {
		return err
	}
	records := [][]string{l.header}
	if len(old) > 0 {
		cols := old[0]
		for _, o := range old[1:] {
			row := make(map[string]string, len(cols))
			for i, c := range cols {
				if i < len(o) {
					row[c] = o[i]
				}
			}
			rec := make([]string, len(l.header))
			for i, k := range l.header {
				rec[i] = row[k]
			}
			records = append(records, rec)
		}
	}
	if err := writeFile(name, records); err != nil {
		return err
	}
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	l.f, l.w = f, csv.NewWriter(f)
	return nil
}

// Close flushes the remaining rows and closes metrics.csv.
func (l *Logger) Close() error {
	err := l.Flush()
	if l.f != nil {
		if cerr := l.f.Close(); err == nil {
			err = cerr
		}
		l.f, l.w = nil, nil
	}
	return err
}

func readFile(name string) ([][]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	return records, nil
}

func writeFile(name string, records [][]string) error {
	tmp := name + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	err = w.WriteAll(records)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "writing %s", name)
	}
	return os.Rename(tmp, name)
}
