package segment

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fathom-search/fathom/pkg/docset"
	"github.com/fathom-search/fathom/pkg/schema"
)

func makeDoc(title, body string) schema.Document {
	var d schema.Document
	d.Fields[schema.FieldTitle] = title
	d.Fields[schema.FieldCleanBody] = body
	return d
}

func TestWriterCommitAndOpen(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)
	w.Add(makeDoc("hello world", "the quick brown fox jumps over the lazy dog"))
	w.Add(makeDoc("goodbye world", "a completely different sentence about cats"))

	segID, err := w.Commit()
	require.NoError(t, err)
	require.NotEmpty(t, segID)

	committed, err := ReadCommitted(root)
	require.NoError(t, err)
	require.Contains(t, committed.SegmentIDs, segID)

	seg, err := Open(filepath.Join(root, "segments", segID))
	require.NoError(t, err)
	require.Equal(t, uint32(2), seg.NumDocs())

	ds := seg.TermQuery(schema.FieldTitle, []byte("world"))
	require.Equal(t, uint32(0), ds.Doc())
	require.Equal(t, uint32(1), ds.Advance())
	require.Equal(t, docset.Terminated, ds.Advance())

	ds2 := seg.TermQuery(schema.FieldTitle, []byte("nonexistent"))
	require.Equal(t, docset.Terminated, ds2.Doc())
}

func TestWriterPhraseQuery(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)
	w.Add(makeDoc("", "the quick brown fox"))
	w.Add(makeDoc("", "brown the quick fox"))
	segID, err := w.Commit()
	require.NoError(t, err)

	seg, err := Open(filepath.Join(root, "segments", segID))
	require.NoError(t, err)

	ds := seg.PhraseQuery(schema.FieldCleanBody, [][]byte{[]byte("quick"), []byte("brown")}, 0)
	require.Equal(t, uint32(0), ds.Doc())
	require.Equal(t, docset.Terminated, ds.Advance())
}
