package parquet

import "encoding/binary"

// This file implements a minimal compact-Thrift encoder used only by
// this package's tests, to build synthetic Parquet footers and pages
// without depending on a real Parquet writer. It always uses the
// long-form field header (explicit zig-zag id) so callers never need
// to track per-struct field-id deltas.

const (
	wBool   = 1
	wI32    = 5
	wI64    = 6
	wBinary = 8
	wList   = 9
	wStruct = 12
)

func tVarint(buf *[]byte, v uint64) {
	for v >= 0x80 {
		*buf = append(*buf, byte(v)|0x80)
		v >>= 7
	}
	*buf = append(*buf, byte(v))
}

func tZigZag32(buf *[]byte, v int32) {
	zz := uint32((v << 1) ^ (v >> 31))
	tVarint(buf, uint64(zz))
}

func tZigZag64(buf *[]byte, v int64) {
	zz := uint64((v << 1) ^ (v >> 63))
	tVarint(buf, zz)
}

func tField(buf *[]byte, id int16, wireType byte) {
	*buf = append(*buf, wireType) // delta nibble 0 => long form
	tZigZag32(buf, int32(id))
}

func tStop(buf *[]byte) { *buf = append(*buf, 0x00) }

func tBinaryBytes(buf *[]byte, b []byte) {
	tVarint(buf, uint64(len(b)))
	*buf = append(*buf, b...)
}

func tString(buf *[]byte, s string) { tBinaryBytes(buf, []byte(s)) }

func tListHeader(buf *[]byte, elemType byte, size int) {
	if size < 15 {
		*buf = append(*buf, byte(size)<<4|elemType)
	} else {
		*buf = append(*buf, 0xf0|elemType)
		tVarint(buf, uint64(size))
	}
}

func buildRootSchemaElement(numChildren int32) []byte {
	var buf []byte
	tField(&buf, 4, wBinary)
	tString(&buf, "root")
	tField(&buf, 5, wI32)
	tZigZag32(&buf, numChildren)
	tStop(&buf)
	return buf
}

func buildLeafSchemaElement(name string, physType int32, repetition int32, convertedType int32) []byte {
	var buf []byte
	tField(&buf, 1, wI32)
	tZigZag32(&buf, physType)
	tField(&buf, 3, wI32)
	tZigZag32(&buf, repetition)
	tField(&buf, 4, wBinary)
	tString(&buf, name)
	tField(&buf, 6, wI32)
	tZigZag32(&buf, convertedType)
	tStop(&buf)
	return buf
}

func buildSchemaList(elems [][]byte) []byte {
	var buf []byte
	tListHeader(&buf, wStruct, len(elems))
	for _, e := range elems {
		buf = append(buf, e...)
	}
	return buf
}

func buildColumnMetaData(physType int32, pathInSchema string, codec int32, numValues int64, uncompressedSize, compressedSize, dataPageOffset int64) []byte {
	var buf []byte
	tField(&buf, 1, wI32)
	tZigZag32(&buf, physType)
	tField(&buf, 3, wList)
	tListHeader(&buf, wBinary, 1)
	tString(&buf, pathInSchema)
	tField(&buf, 4, wI32)
	tZigZag32(&buf, codec)
	tField(&buf, 5, wI64)
	tZigZag64(&buf, numValues)
	tField(&buf, 6, wI64)
	tZigZag64(&buf, uncompressedSize)
	tField(&buf, 7, wI64)
	tZigZag64(&buf, compressedSize)
	tField(&buf, 9, wI64)
	tZigZag64(&buf, dataPageOffset)
	tStop(&buf)
	return buf
}

func buildColumnChunk(metaData []byte) []byte {
	var buf []byte
	tField(&buf, 3, wStruct)
	buf = append(buf, metaData...)
	tStop(&buf)
	return buf
}

func buildRowGroup(columns [][]byte, numRows int64) []byte {
	var buf []byte
	tField(&buf, 1, wList)
	tListHeader(&buf, wStruct, len(columns))
	for _, c := range columns {
		buf = append(buf, c...)
	}
	tField(&buf, 3, wI64)
	tZigZag64(&buf, numRows)
	tStop(&buf)
	return buf
}

func buildFileMetaData(version int32, schemaList []byte, numSchemaElems int, numRows int64, rowGroups [][]byte) []byte {
	var buf []byte
	tField(&buf, 1, wI32)
	tZigZag32(&buf, version)
	tField(&buf, 2, wList)
	buf = append(buf, schemaList...)
	tField(&buf, 3, wI64)
	tZigZag64(&buf, numRows)
	tField(&buf, 4, wList)
	tListHeader(&buf, wStruct, len(rowGroups))
	for _, rg := range rowGroups {
		buf = append(buf, rg...)
	}
	tStop(&buf)
	return buf
}

func buildPageHeader(uncompressedSize, compressedSize, numValues int32) []byte {
	var buf []byte
	tField(&buf, 1, wI32)
	tZigZag32(&buf, 0) // DATA_PAGE
	tField(&buf, 2, wI32)
	tZigZag32(&buf, uncompressedSize)
	tField(&buf, 3, wI32)
	tZigZag32(&buf, compressedSize)
	tField(&buf, 5, wStruct)
	{
		var dph []byte
		tField(&dph, 1, wI32)
		tZigZag32(&dph, numValues)
		tStop(&dph)
		buf = append(buf, dph...)
	}
	tStop(&buf)
	return buf
}

func byteArrayValue(s string) []byte {
	b := []byte(s)
	out := make([]byte, 4+len(b))
	binary.LittleEndian.PutUint32(out, uint32(len(b)))
	copy(out[4:], b)
	return out
}

// defLevelSection encodes levels as a single bit-packed RLE run, padded
// to a multiple of 8 values the way a real Parquet writer would.
func defLevelSection(levels []int) []byte {
	padded := make([]int, ((len(levels)+7)/8)*8)
	copy(padded, levels)
	groups := len(padded) / 8

	var body []byte
	header := uint64(groups)<<1 | 1
	tVarint(&body, header)
	for g := 0; g < groups; g++ {
		var b byte
		for i := 0; i < 8; i++ {
			if padded[g*8+i] != 0 {
				b |= 1 << uint(i)
			}
		}
		body = append(body, b)
	}

	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out, uint32(len(body)))
	copy(out[4:], body)
	return out
}
