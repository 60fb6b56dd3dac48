package vector

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"
)

// buildLanceFixture hand-assembles a minimal valid .lance file with 2
// rows and 3-dimensional embeddings, mirroring the layout Decode
// expects, so this package's tests don't depend on a real embedding
// pipeline.
func buildLanceFixture(t *testing.T) []byte {
	t.Helper()

	meta := Meta{RowCount: 2, EmbeddingDimension: 3, Model: "bge-m3"}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		t.Fatal(err)
	}

	header := make([]byte, headerLen)
	copy(header[0:4], FileMagic)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(metaJSON)))

	idCol := stringColumn([]string{"a1", "a2"})
	titleCol := stringColumn([]string{"Alpha", "Beta"})
	typeCol := stringColumn([]string{"place", "person"})
	chunkCol := int32Column([]int32{0, 0})
	previewCol := stringColumn([]string{"alpha preview", "beta preview"})
	embedCol := embeddingColumn([][]float32{{1, 0, 0}, {0, 1, 0}})

	var body []byte
	offsets := make([]int64, 6)
	cur := int64(headerLen + len(metaJSON))
	for i, col := range [][]byte{idCol, titleCol, typeCol, chunkCol, previewCol, embedCol} {
		offsets[i] = cur
		body = append(body, col...)
		cur += int64(len(col))
	}

	footer := make([]byte, footerLen)
	for i, off := range offsets {
		binary.LittleEndian.PutUint64(footer[8+i*8:16+i*8], math.Float64bits(float64(off)))
	}

	out := append([]byte{}, header...)
	out = append(out, metaJSON...)
	out = append(out, body...)
	out = append(out, footer...)
	return out
}

func stringColumn(values []string) []byte {
	offsets := make([]uint32, len(values)+1)
	var data []byte
	for i, v := range values {
		offsets[i] = uint32(len(data))
		data = append(data, []byte(v)...)
	}
	offsets[len(values)] = uint32(len(data))

	out := make([]byte, (len(values)+1)*4)
	for i, o := range offsets {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], o)
	}
	return append(out, data...)
}

func int32Column(values []int32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], uint32(v))
	}
	return out
}

func embeddingColumn(rows [][]float32) []byte {
	var out []byte
	for _, row := range rows {
		for _, v := range row {
			buf := make([]byte, 4)
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			out = append(out, buf...)
		}
	}
	return out
}

func TestDecodeLanceFixture(t *testing.T) {
	buf := buildLanceFixture(t)
	meta, rows, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if meta.RowCount != 2 || meta.EmbeddingDimension != 3 || meta.Model != "bge-m3" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != "a1" || rows[0].Title != "Alpha" || rows[0].Type != "place" {
		t.Fatalf("unexpected row 0: %+v", rows[0])
	}
	if rows[1].ID != "a2" || rows[1].TextPreview != "beta preview" {
		t.Fatalf("unexpected row 1: %+v", rows[1])
	}
	if len(rows[0].Embedding) != 3 || rows[0].Embedding[0] != 1 {
		t.Fatalf("unexpected embedding: %+v", rows[0].Embedding)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := buildLanceFixture(t)
	buf[0] = 'X'
	if _, _, err := Decode(buf); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestDecodeRejectsTruncatedFile(t *testing.T) {
	buf := buildLanceFixture(t)
	if _, _, err := Decode(buf[:10]); err == nil {
		t.Fatal("expected error for truncated file")
	}
}
