package segment

import (
	"fmt"
	"os"
	"path/filepath"

	mmap "github.com/blevesearch/mmap-go"

	"github.com/fathom-search/fathom/pkg/column"
)

func columnDir(dir string) string { return filepath.Join(dir, "columns") }

func columnPath(dir string, f column.Field, suffix string) string {
	return filepath.Join(columnDir(dir), fmt.Sprintf("%d.%s", int(f), suffix))
}

// openColumns mmaps every present column file under dir/columns and
// assembles a column.Reader.
func openColumns(dir string, numDocs uint32) (*column.Reader, error) {
	r := column.NewReader(numDocs)
	cdir := columnDir(dir)
	entries, err := os.ReadDir(cdir)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, err
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		seen[e.Name()] = true
	}

	for i := 0; i < column.NumFields; i++ {
		f := column.Field(i)
		switch f.DataType() {
		case column.TypeU64:
			if err := mapIfPresent(cdir, f, "u64", seen, func(m mmap.MMap) { r.AddU64Column(f, m) }); err != nil {
				return nil, err
			}
		case column.TypeF64:
			if err := mapIfPresent(cdir, f, "f64", seen, func(m mmap.MMap) { r.AddF64Column(f, m) }); err != nil {
				return nil, err
			}
		case column.TypeBytes:
			offName := fmt.Sprintf("%d.bytes.offsets", i)
			dataName := fmt.Sprintf("%d.bytes.data", i)
			if !seen[offName] || !seen[dataName] {
				continue
			}
			offM, err := mapFile(filepath.Join(cdir, offName))
			if err != nil {
				return nil, err
			}
			dataM, err := mapFile(filepath.Join(cdir, dataName))
			if err != nil {
				return nil, err
			}
			r.AddBytesColumn(f, offM, dataM)
		}
	}
	return r, nil
}

func mapIfPresent(cdir string, f column.Field, suffix string, seen map[string]bool, add func(mmap.MMap)) error {
	name := fmt.Sprintf("%d.%s", int(f), suffix)
	if !seen[name] {
		return nil
	}
	m, err := mapFile(filepath.Join(cdir, name))
	if err != nil {
		return err
	}
	add(m)
	return nil
}

func mapFile(path string) (mmap.MMap, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	m, err := mmap.Map(fh, mmap.RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return m, nil
}
