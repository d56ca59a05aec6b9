package segment

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fathom-search/fathom/pkg/schema"
)

// metaFile is the per-segment metadata sidecar: document/field norm
// statistics the scorer needs, and the committed segment id.
type metaFile struct {
	ID           string                         `json:"id"`
	NumDocs      uint32                         `json:"num_docs"`
	AvgFieldNorm map[schema.FieldID]float64     `json:"avg_field_norm"`
	FieldNormID  map[schema.FieldID]map[uint32]byte `json:"field_norm_id"`
	DocFreq      map[schema.FieldID]map[string]uint32 `json:"doc_freq"`
	NumDocsField map[schema.FieldID]uint32     `json:"num_docs_field"`
}

const metaFileName = "meta.json"

func readMeta(dir string) (*metaFile, error) {
	b, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return nil, err
	}
	var m metaFile
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func writeMeta(dir string, m *metaFile) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, metaFileName), b, 0o644)
}

// CommittedSegments lists the segment ids a shard root has committed,
// read from CommitMetadataFile.
type CommittedSegments struct {
	SegmentIDs []string `json:"segment_ids"`
}

// ReadCommitted loads the committed-segment-id list for a shard root.
func ReadCommitted(shardRoot string) (*CommittedSegments, error) {
	b, err := os.ReadFile(filepath.Join(shardRoot, CommitMetadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &CommittedSegments{}, nil
		}
		return nil, err
	}
	var cs CommittedSegments
	if err := json.Unmarshal(b, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

// WriteCommitted atomically replaces the committed-segment-id list via a
// temp file and rename. It takes no lock itself; Writer.Commit calls it
// while holding the shard's commit lock.
func WriteCommitted(shardRoot string, cs *CommittedSegments) error {
	b, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	tmp := filepath.Join(shardRoot, CommitMetadataFile+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(shardRoot, CommitMetadataFile))
}
