// Package checkpoint stores training state snapshots as zlib compressed
// JSON files whose names embed the zero padded iteration number, so that
// lexical and numeric order agree. Files are never overwritten.
package checkpoint

import (
	"compress/zlib"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	prefix = "iter-"
	suffix = "-ckpt.json.z"
	digits = 10
)

var (
	// ErrNoCheckpoint is returned by Latest when the directory has no checkpoint.
	ErrNoCheckpoint = errors.New("no checkpoint found")

	// ErrDuplicate is returned by Latest when two files embed the same iteration.
	ErrDuplicate = errors.New("duplicate checkpoint iteration")

	// ErrExists is returned by Save instead of overwriting a checkpoint.
	ErrExists = errors.New("checkpoint already exists")
)

// Name returns the file name of the checkpoint of iteration iter.
func Name(iter int) string {
	return fmt.Sprintf("%s%0*d%s", prefix, digits, iter, suffix)
}

// Parse returns the iteration embedded in a checkpoint file name.
func Parse(name string) (int, bool) {
	name = filepath.Base(name)
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	num := name[len(prefix) : len(name)-len(suffix)]
	if num == "" || strings.TrimLeft(num, "0123456789") != "" {
		return 0, false
	}
	iter, err := strconv.Atoi(num)
	if err != nil {
		return 0, false
	}
	return iter, true
}

// Entry is a checkpoint file found on disk.
type Entry struct {
	Path string
	Iter int
}

// List returns the checkpoints of dir ordered by iteration.
func List(dir string) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	var out []Entry
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if iter, ok := Parse(f.Name()); ok {
			out = append(out, Entry{Path: filepath.Join(dir, f.Name()), Iter: iter})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Iter < out[j].Iter
	})
	return out, nil
}

// Latest returns the checkpoint of dir with the highest iteration.
func Latest(dir string) (Entry, error) {
	list, err := List(dir)
	if err != nil {
		return Entry{}, err
	}
	if len(list) == 0 {
		return Entry{}, errors.Wrapf(ErrNoCheckpoint, "in %s", dir)
	}
	for i := 1; i < len(list); i++ {
		if list[i].Iter == list[i-1].Iter {
			return Entry{}, errors.Wrapf(ErrDuplicate, "%s and %s", list[i-1].Path, list[i].Path)
		}
	}
	return list[len(list)-1], nil
}

// Save writes state as the checkpoint of iteration iter in dir. The file
// appears complete or not at all.
func Save(dir string, iter int, state any) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	name := filepath.Join(dir, Name(iter))
	if _, err := os.Stat(name); err == nil {
		return "", errors.Wrapf(ErrExists, "%s", name)
	}
	tmp, err := os.CreateTemp(dir, ".ckpt-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	zw := zlib.NewWriter(tmp)
	err = json.NewEncoder(zw).Encode(state)
	if err == nil {
		err = zw.Close()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", errors.Wrapf(err, "writing %s", name)
	}
	if err := os.Link(tmp.Name(), name); err != nil {
		if os.IsExist(err) {
			return "", errors.Wrapf(ErrExists, "%s", name)
		}
		return "", err
	}
	return name, nil
}

// Load decodes the checkpoint at path into state.
func Load(path string, state any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	zr, err := zlib.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	defer zr.Close()
	if err := json.NewDecoder(zr).Decode(state); err != nil {
		return errors.Wrapf(err, "decoding %s", path)
	}
	return nil
}
