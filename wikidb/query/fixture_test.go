package query

import (
	"encoding/binary"
	"math"
)

// This file hand-assembles tiny synthetic Parquet files (one row group
// of required columns, each either BYTE_ARRAY or DOUBLE) so facade tests
// can exercise ManifestReader/ParquetReader paths without a real Parquet
// writer. It mirrors wikidb/parquet's own test fixture encoder, trimmed
// to what this package's tests need.

const (
	qwI32    = 5
	qwI64    = 6
	qwBinary = 8
	qwList   = 9
	qwStruct = 12
)

func qVarint(buf *[]byte, v uint64) {
	for v >= 0x80 {
		*buf = append(*buf, byte(v)|0x80)
		v >>= 7
	}
	*buf = append(*buf, byte(v))
}

func qZigZag32(buf *[]byte, v int32) {
	zz := uint32((v << 1) ^ (v >> 31))
	qVarint(buf, uint64(zz))
}

func qZigZag64(buf *[]byte, v int64) {
	zz := uint64((v << 1) ^ (v >> 63))
	qVarint(buf, zz)
}

func qField(buf *[]byte, id int16, wireType byte) {
	*buf = append(*buf, wireType)
	qZigZag32(buf, int32(id))
}

func qStop(buf *[]byte) { *buf = append(*buf, 0x00) }

func qString(buf *[]byte, s string) {
	b := []byte(s)
	qVarint(buf, uint64(len(b)))
	*buf = append(*buf, b...)
}

func qListHeader(buf *[]byte, elemType byte, size int) {
	if size < 15 {
		*buf = append(*buf, byte(size)<<4|elemType)
	} else {
		*buf = append(*buf, 0xf0|elemType)
		qVarint(buf, uint64(size))
	}
}

func qRootSchema(numChildren int32) []byte {
	var buf []byte
	qField(&buf, 4, qwBinary)
	qString(&buf, "root")
	qField(&buf, 5, qwI32)
	qZigZag32(&buf, numChildren)
	qStop(&buf)
	return buf
}

func qLeafSchema(name string, physType int32) []byte {
	var buf []byte
	qField(&buf, 1, qwI32)
	qZigZag32(&buf, physType)
	qField(&buf, 3, qwI32)
	qZigZag32(&buf, 0) // REQUIRED
	qField(&buf, 4, qwBinary)
	qString(&buf, name)
	qField(&buf, 6, qwI32)
	if physType == 6 {
		qZigZag32(&buf, 0) // UTF8
	} else {
		qZigZag32(&buf, 2) // NONE
	}
	qStop(&buf)
	return buf
}

func qSchemaList(names []string, physTypes []int32) []byte {
	var buf []byte
	qListHeader(&buf, qwStruct, len(names)+1)
	buf = append(buf, qRootSchema(int32(len(names)))...)
	for i, n := range names {
		buf = append(buf, qLeafSchema(n, physTypes[i])...)
	}
	return buf
}

func qColumnMetaData(physType int32, pathInSchema string, numValues int64, uncompressedSize, compressedSize, dataPageOffset int64) []byte {
	var buf []byte
	qField(&buf, 1, qwI32)
	qZigZag32(&buf, physType)
	qField(&buf, 3, qwList)
	qListHeader(&buf, qwBinary, 1)
	qString(&buf, pathInSchema)
	qField(&buf, 4, qwI32)
	qZigZag32(&buf, 0) // UNCOMPRESSED
	qField(&buf, 5, qwI64)
	qZigZag64(&buf, numValues)
	qField(&buf, 6, qwI64)
	qZigZag64(&buf, uncompressedSize)
	qField(&buf, 7, qwI64)
	qZigZag64(&buf, compressedSize)
	qField(&buf, 9, qwI64)
	qZigZag64(&buf, dataPageOffset)
	qStop(&buf)
	return buf
}

func qColumnChunk(metaData []byte) []byte {
	var buf []byte
	qField(&buf, 3, qwStruct)
	buf = append(buf, metaData...)
	qStop(&buf)
	return buf
}

func qRowGroup(columns [][]byte, numRows int64) []byte {
	var buf []byte
	qField(&buf, 1, qwList)
	qListHeader(&buf, qwStruct, len(columns))
	for _, c := range columns {
		buf = append(buf, c...)
	}
	qField(&buf, 3, qwI64)
	qZigZag64(&buf, numRows)
	qStop(&buf)
	return buf
}

func qFileMetaData(schemaList []byte, numRows int64, rowGroups [][]byte) []byte {
	var buf []byte
	qField(&buf, 1, qwI32)
	qZigZag32(&buf, 1) // version
	qField(&buf, 2, qwList)
	buf = append(buf, schemaList...)
	qField(&buf, 3, qwI64)
	qZigZag64(&buf, numRows)
	qField(&buf, 4, qwList)
	qListHeader(&buf, qwStruct, len(rowGroups))
	for _, rg := range rowGroups {
		buf = append(buf, rg...)
	}
	qStop(&buf)
	return buf
}

func qPageHeader(uncompressedSize, compressedSize, numValues int32) []byte {
	var buf []byte
	qField(&buf, 1, qwI32)
	qZigZag32(&buf, 0) // DATA_PAGE
	qField(&buf, 2, qwI32)
	qZigZag32(&buf, uncompressedSize)
	qField(&buf, 3, qwI32)
	qZigZag32(&buf, compressedSize)
	qField(&buf, 5, qwStruct)
	{
		var dph []byte
		qField(&dph, 1, qwI32)
		qZigZag32(&dph, numValues)
		qStop(&dph)
		buf = append(buf, dph...)
	}
	qStop(&buf)
	return buf
}

func qByteArrayValue(s string) []byte {
	b := []byte(s)
	out := make([]byte, 4+len(b))
	binary.LittleEndian.PutUint32(out, uint32(len(b)))
	copy(out[4:], b)
	return out
}

func qDoubleValue(v float64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, math.Float64bits(v))
	return out
}

// qColumn is one named column's required values, either strings
// (BYTE_ARRAY) or floats (DOUBLE), selected by which slice is non-nil.
type qColumn struct {
	Name    string
	Strings []string
	Doubles []float64
}

// qRow is one row of the fixture's id/title/category columns.
type qRow struct {
	ID       string
	Title    string
	Category string
}

// buildArticlesParquet assembles a single-row-group Parquet file
// holding rows' id/title/category columns, all required BYTE_ARRAY.
func buildArticlesParquet(rows []qRow) []byte {
	ids := make([]string, len(rows))
	titles := make([]string, len(rows))
	cats := make([]string, len(rows))
	for i, r := range rows {
		ids[i], titles[i], cats[i] = r.ID, r.Title, r.Category
	}
	return buildParquetFile([]qColumn{
		{Name: "id", Strings: ids},
		{Name: "title", Strings: titles},
		{Name: "category", Strings: cats},
	}, len(rows))
}

// buildParquetFile assembles a single-row-group Parquet file from an
// arbitrary set of required columns (string or double valued).
func buildParquetFile(cols []qColumn, numRows int) []byte {
	names := make([]string, len(cols))
	physTypes := make([]int32, len(cols))
	var pages [][]byte
	var colMeta [][]byte
	offset := int64(0)
	for i, col := range cols {
		names[i] = col.Name
		var body []byte
		if col.Doubles != nil {
			physTypes[i] = 5 // DOUBLE
			for _, v := range col.Doubles {
				body = append(body, qDoubleValue(v)...)
			}
		} else {
			physTypes[i] = 6 // BYTE_ARRAY
			for _, v := range col.Strings {
				body = append(body, qByteArrayValue(v)...)
			}
		}
		page := append(qPageHeader(int32(len(body)), int32(len(body)), int32(numRows)), body...)
		pages = append(pages, page)
		colMeta = append(colMeta, qColumnMetaData(physTypes[i], col.Name, int64(numRows), int64(len(page)), int64(len(page)), offset))
		offset += int64(len(page))
	}

	var columnChunks [][]byte
	for _, cm := range colMeta {
		columnChunks = append(columnChunks, qColumnChunk(cm))
	}
	rg := qRowGroup(columnChunks, int64(numRows))
	schema := qSchemaList(names, physTypes)
	footer := qFileMetaData(schema, int64(numRows), [][]byte{rg})

	var file []byte
	for _, p := range pages {
		file = append(file, p...)
	}
	file = append(file, footer...)
	trailer := make([]byte, 8)
	binary.LittleEndian.PutUint32(trailer[0:4], uint32(len(footer)))
	copy(trailer[4:8], "PAR1")
	file = append(file, trailer...)
	return file
}
