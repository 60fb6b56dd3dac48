package vector

import (
	"encoding/binary"
	"encoding/json"
	"math"

	wikidb "github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb"
)

// FileMagic is the 4-byte magic at the start of every embeddings/*.lance
// partition file.
const FileMagic = "LANC"

const (
	headerLen = 16
	footerLen = 72
)

// Meta is the small JSON metadata block embedded in a .lance file's
// header.
type Meta struct {
	RowCount           int    `json:"rowCount"`
	EmbeddingDimension int    `json:"embeddingDimension"`
	Model              string `json:"model"`
}

// Row is one decoded vector-file row.
type Row struct {
	ID          string
	Title       string
	Type        string
	ChunkIndex  int32
	TextPreview string
	Embedding   []float32
}

// Decode parses a complete .lance file buffer into its metadata and
// rows: a 16-byte header (magic, reserved, metadata-JSON length,
// reserved), the metadata JSON, six columns stored contiguously (id,
// title, type, chunk_index, text_preview, embedding), and a 72-byte
// footer holding the six column start offsets.
func Decode(buf []byte) (Meta, []Row, error) {
	if len(buf) < headerLen+footerLen {
		return Meta{}, nil, wikidb.NewError(wikidb.KindCorrupt, "vector file too short", nil)
	}
	if string(buf[0:4]) != FileMagic {
		return Meta{}, nil, wikidb.NewError(wikidb.KindCorrupt, "bad vector-file magic", nil)
	}
	metaLen := binary.LittleEndian.Uint32(buf[8:12])
	metaStart := headerLen
	metaEnd := metaStart + int(metaLen)
	if metaEnd > len(buf) {
		return Meta{}, nil, wikidb.NewError(wikidb.KindCorrupt, "vector file metadata length out of bounds", nil)
	}

	var meta Meta
	if err := json.Unmarshal(buf[metaStart:metaEnd], &meta); err != nil {
		return Meta{}, nil, wikidb.NewError(wikidb.KindCorrupt, "vector file metadata is not valid JSON", err)
	}

	footer := buf[len(buf)-footerLen:]
	offsets := make([]int64, 6)
	for i := 0; i < 6; i++ {
		bits := binary.LittleEndian.Uint64(footer[8+i*8 : 16+i*8])
		offsets[i] = int64(math.Float64frombits(bits))
	}
	columnsEnd := int64(len(buf) - footerLen)

	colEnd := func(i int) int64 {
		if i+1 < len(offsets) {
			return offsets[i+1]
		}
		return columnsEnd
	}

	ids, err := decodeStringColumn(buf, offsets[0], colEnd(0), meta.RowCount)
	if err != nil {
		return Meta{}, nil, err
	}
	titles, err := decodeStringColumn(buf, offsets[1], colEnd(1), meta.RowCount)
	if err != nil {
		return Meta{}, nil, err
	}
	types, err := decodeStringColumn(buf, offsets[2], colEnd(2), meta.RowCount)
	if err != nil {
		return Meta{}, nil, err
	}
	chunkIndexes, err := decodeInt32Column(buf, offsets[3], meta.RowCount)
	if err != nil {
		return Meta{}, nil, err
	}
	previews, err := decodeStringColumn(buf, offsets[4], colEnd(4), meta.RowCount)
	if err != nil {
		return Meta{}, nil, err
	}
	embeddings, err := decodeEmbeddingColumn(buf, offsets[5], meta.RowCount, meta.EmbeddingDimension)
	if err != nil {
		return Meta{}, nil, err
	}

	rows := make([]Row, meta.RowCount)
	for i := 0; i < meta.RowCount; i++ {
		rows[i] = Row{
			ID:          ids[i],
			Title:       titles[i],
			Type:        types[i],
			ChunkIndex:  chunkIndexes[i],
			TextPreview: previews[i],
			Embedding:   embeddings[i],
		}
	}
	return meta, rows, nil
}

// decodeStringColumn reads (rowCount+1) 32-bit LE offsets followed by
// concatenated UTF-8 bytes.
func decodeStringColumn(buf []byte, start, end int64, rowCount int) ([]string, error) {
	if start < 0 || end > int64(len(buf)) || start > end {
		return nil, wikidb.NewError(wikidb.KindCorrupt, "string column bounds out of range", nil)
	}
	section := buf[start:end]
	offsetsLen := (rowCount + 1) * 4
	if offsetsLen > len(section) {
		return nil, wikidb.NewError(wikidb.KindCorrupt, "string column offset table truncated", nil)
	}
	offsets := make([]uint32, rowCount+1)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(section[i*4 : i*4+4])
	}
	data := section[offsetsLen:]
	out := make([]string, rowCount)
	for i := 0; i < rowCount; i++ {
		lo, hi := offsets[i], offsets[i+1]
		if int(hi) > len(data) || lo > hi {
			return nil, wikidb.NewError(wikidb.KindCorrupt, "string column offset out of range", nil)
		}
		out[i] = string(data[lo:hi])
	}
	return out, nil
}

func decodeInt32Column(buf []byte, start int64, rowCount int) ([]int32, error) {
	needed := int64(rowCount) * 4
	if start < 0 || start+needed > int64(len(buf)) {
		return nil, wikidb.NewError(wikidb.KindCorrupt, "int32 column bounds out of range", nil)
	}
	section := buf[start : start+needed]
	out := make([]int32, rowCount)
	for i := 0; i < rowCount; i++ {
		out[i] = int32(binary.LittleEndian.Uint32(section[i*4 : i*4+4]))
	}
	return out, nil
}

// decodeEmbeddingColumn reads rowCount x dimension float32 LE values.
func decodeEmbeddingColumn(buf []byte, start int64, rowCount, dimension int) ([][]float32, error) {
	needed := int64(rowCount) * int64(dimension) * 4
	if start < 0 || start+needed > int64(len(buf)) {
		return nil, wikidb.NewError(wikidb.KindCorrupt, "embedding column bounds out of range", nil)
	}
	section := buf[start : start+needed]
	out := make([][]float32, rowCount)
	for i := 0; i < rowCount; i++ {
		vec := make([]float32, dimension)
		for j := 0; j < dimension; j++ {
			off := (i*dimension + j) * 4
			bits := binary.LittleEndian.Uint32(section[off : off+4])
			vec[j] = math.Float32frombits(bits)
		}
		out[i] = vec
	}
	return out, nil
}
