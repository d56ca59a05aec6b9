package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	roaring "github.com/RoaringBitmap/roaring/v2"
)

// encodePostingsV1 serializes a posting-entry table to a flat binary
// blob: an entry count, then per entry a roaring-encoded doc bitmap,
// term frequencies, and (optionally) positions.
func encodePostingsV1(entries []postingEntry) []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(entries)))
	for _, e := range entries {
		bm, _ := e.docs.ToBytes()
		writeU32(&buf, uint32(len(bm)))
		buf.Write(bm)

		writeU32(&buf, uint32(len(e.termFreq)))
		for doc, tf := range e.termFreq {
			writeU32(&buf, doc)
			writeU32(&buf, tf)
		}

		if e.positions == nil {
			buf.WriteByte(0)
			continue
		}
		buf.WriteByte(1)
		writeU32(&buf, uint32(len(e.positions)))
		for doc, positions := range e.positions {
			writeU32(&buf, doc)
			writeU32(&buf, uint32(len(positions)))
			for _, p := range positions {
				writeU32(&buf, p)
			}
		}
	}
	return buf.Bytes()
}

func decodePostingsV1(data []byte) ([]postingEntry, error) {
	r := bytes.NewReader(data)
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	entries := make([]postingEntry, n)
	for i := range entries {
		bmLen, err := readU32(r)
		if err != nil {
			return nil, err
		}
		bmBytes := make([]byte, bmLen)
		if _, err := io.ReadFull(r, bmBytes); err != nil {
			return nil, err
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(bmBytes); err != nil {
			return nil, fmt.Errorf("decode posting bitmap: %w", err)
		}

		tfCount, err := readU32(r)
		if err != nil {
			return nil, err
		}
		tf := make(map[uint32]uint32, tfCount)
		for j := uint32(0); j < tfCount; j++ {
			doc, err := readU32(r)
			if err != nil {
				return nil, err
			}
			freq, err := readU32(r)
			if err != nil {
				return nil, err
			}
			tf[doc] = freq
		}

		hasPositions, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		var positions map[uint32][]uint32
		if hasPositions == 1 {
			posCount, err := readU32(r)
			if err != nil {
				return nil, err
			}
			positions = make(map[uint32][]uint32, posCount)
			for j := uint32(0); j < posCount; j++ {
				doc, err := readU32(r)
				if err != nil {
					return nil, err
				}
				plen, err := readU32(r)
				if err != nil {
					return nil, err
				}
				ps := make([]uint32, plen)
				for k := range ps {
					v, err := readU32(r)
					if err != nil {
						return nil, err
					}
					ps[k] = v
				}
				positions[doc] = ps
			}
		}

		entries[i] = postingEntry{docs: bm, termFreq: tf, positions: positions}
	}
	return entries, nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
