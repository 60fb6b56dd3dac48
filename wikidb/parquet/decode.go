package parquet

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/compress"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/thrift"
)

// Value is one decoded cell. Exactly one typed field is meaningful,
// selected by Type, unless IsNull is set (definition level 0 on an
// optional column).
type Value struct {
	Type    PhysicalType
	IsNull  bool
	Bool    bool
	Int32   int32
	Int64   int64
	Float32 float32
	Float64 float64
	Bytes   []byte
}

type pageType int32

const (
	pageTypeData       pageType = 0
	pageTypeDictionary pageType = 2
)

type pageHeader struct {
	Type                 pageType
	UncompressedPageSize int32
	CompressedPageSize   int32
	DataPageNumValues    int32
}

func decodePageHeader(d *thrift.Decoder) (pageHeader, error) {
	var ph pageHeader
	d.BeginStruct()
	defer d.EndStruct()
	for {
		h, err := d.ReadFieldHeader()
		if err != nil {
			return ph, err
		}
		if thrift.IsStop(h) {
			break
		}
		switch h.ID {
		case 1:
			v, err := d.ReadZigZag32()
			if err != nil {
				return ph, err
			}
			ph.Type = pageType(v)
		case 2:
			v, err := d.ReadZigZag32()
			if err != nil {
				return ph, err
			}
			ph.UncompressedPageSize = v
		case 3:
			v, err := d.ReadZigZag32()
			if err != nil {
				return ph, err
			}
			ph.CompressedPageSize = v
		case 5:
			n, err := decodeDataPageHeader(d)
			if err != nil {
				return ph, err
			}
			ph.DataPageNumValues = n
		default:
			if err := d.Skip(h.Type); err != nil {
				return ph, err
			}
		}
	}
	return ph, nil
}

func decodeDataPageHeader(d *thrift.Decoder) (int32, error) {
	var numValues int32
	d.BeginStruct()
	defer d.EndStruct()
	for {
		h, err := d.ReadFieldHeader()
		if err != nil {
			return 0, err
		}
		if thrift.IsStop(h) {
			break
		}
		switch h.ID {
		case 1:
			v, err := d.ReadZigZag32()
			if err != nil {
				return 0, err
			}
			numValues = v
		default:
			if err := d.Skip(h.Type); err != nil {
				return 0, err
			}
		}
	}
	return numValues, nil
}

// DecodePage parses one data page starting at buf[0]: a compact-Thrift
// PageHeader followed by (possibly compressed) definition-level and
// value bytes. It returns the decoded values and the number of bytes
// of buf it consumed, so callers can advance to the next page in a
// multi-page column chunk.
func DecodePage(buf []byte, codec compress.Codec, typ PhysicalType, optional bool) ([]Value, int, error) {
	d := thrift.NewDecoder(buf)
	ph, err := decodePageHeader(d)
	if err != nil {
		return nil, 0, fmt.Errorf("parquet: page header: %w", err)
	}
	headerLen := d.Pos()
	compressedLen := int(ph.CompressedPageSize)
	if compressedLen < 0 || headerLen+compressedLen > len(buf) {
		return nil, 0, fmt.Errorf("parquet: page exceeds buffer (header %d + compressed %d > %d)", headerLen, compressedLen, len(buf))
	}
	pageBody := buf[headerLen : headerLen+compressedLen]

	raw := pageBody
	if codec != compress.Uncompressed {
		raw, err = compress.Decompress(pageBody, codec, int(ph.UncompressedPageSize))
		if err != nil {
			return nil, 0, err
		}
	}

	values, err := decodePageValues(raw, typ, optional, int(ph.DataPageNumValues))
	if err != nil {
		return nil, 0, err
	}
	return values, headerLen + compressedLen, nil
}

func decodePageValues(raw []byte, typ PhysicalType, optional bool, numValues int) ([]Value, error) {
	pos := 0
	defLevels := make([]int, numValues)
	for i := range defLevels {
		defLevels[i] = 1
	}
	if optional {
		if len(raw) < 4 {
			return nil, fmt.Errorf("parquet: truncated definition-level section")
		}
		levelLen := int(binary.LittleEndian.Uint32(raw[pos : pos+4]))
		pos += 4
		if levelLen < 0 || pos+levelLen > len(raw) {
			return nil, fmt.Errorf("parquet: definition-level section exceeds page")
		}
		levels, err := decodeRLEBitPacked(raw[pos:pos+levelLen], 1, numValues)
		if err != nil {
			return nil, err
		}
		defLevels = levels
		pos += levelLen
	}

	values := make([]Value, numValues)
	for i := 0; i < numValues; i++ {
		if defLevels[i] == 0 {
			values[i] = Value{Type: typ, IsNull: true}
			continue
		}
		v, n, err := decodeScalar(raw[pos:], typ)
		if err != nil {
			return nil, err
		}
		values[i] = v
		pos += n
	}
	return values, nil
}

func decodeScalar(buf []byte, typ PhysicalType) (Value, int, error) {
	switch typ {
	case TypeBoolean:
		if len(buf) < 1 {
			return Value{}, 0, fmt.Errorf("parquet: truncated bool value")
		}
		return Value{Type: typ, Bool: buf[0] != 0}, 1, nil
	case TypeInt32:
		if len(buf) < 4 {
			return Value{}, 0, fmt.Errorf("parquet: truncated int32 value")
		}
		return Value{Type: typ, Int32: int32(binary.LittleEndian.Uint32(buf))}, 4, nil
	case TypeInt64:
		if len(buf) < 8 {
			return Value{}, 0, fmt.Errorf("parquet: truncated int64 value")
		}
		return Value{Type: typ, Int64: int64(binary.LittleEndian.Uint64(buf))}, 8, nil
	case TypeFloat:
		if len(buf) < 4 {
			return Value{}, 0, fmt.Errorf("parquet: truncated float value")
		}
		return Value{Type: typ, Float32: math.Float32frombits(binary.LittleEndian.Uint32(buf))}, 4, nil
	case TypeDouble:
		if len(buf) < 8 {
			return Value{}, 0, fmt.Errorf("parquet: truncated double value")
		}
		return Value{Type: typ, Float64: math.Float64frombits(binary.LittleEndian.Uint64(buf))}, 8, nil
	case TypeByteArray:
		if len(buf) < 4 {
			return Value{}, 0, fmt.Errorf("parquet: truncated byte_array length")
		}
		n := int(binary.LittleEndian.Uint32(buf))
		if n < 0 || 4+n > len(buf) {
			return Value{}, 0, fmt.Errorf("parquet: truncated byte_array body")
		}
		out := make([]byte, n)
		copy(out, buf[4:4+n])
		return Value{Type: typ, Bytes: out}, 4 + n, nil
	default:
		return Value{}, 0, fmt.Errorf("parquet: unsupported physical type %d", typ)
	}
}

// decodeRLEBitPacked decodes a hybrid RLE/bit-packed run sequence (the
// Parquet definition/repetition level encoding) at the given bit width,
// producing exactly numValues integers.
func decodeRLEBitPacked(buf []byte, bitWidth uint, numValues int) ([]int, error) {
	out := make([]int, 0, numValues)
	pos := 0
	for len(out) < numValues {
		if pos >= len(buf) {
			return nil, fmt.Errorf("parquet: truncated RLE/bit-packed stream")
		}
		header, n := binary.Uvarint(buf[pos:])
		if n <= 0 {
			return nil, fmt.Errorf("parquet: invalid RLE run header")
		}
		pos += n
		if header&1 == 0 {
			runLen := int(header >> 1)
			byteWidth := int((bitWidth + 7) / 8)
			if pos+byteWidth > len(buf) {
				return nil, fmt.Errorf("parquet: truncated RLE run value")
			}
			var value int
			for i := 0; i < byteWidth; i++ {
				value |= int(buf[pos+i]) << (8 * i)
			}
			pos += byteWidth
			for i := 0; i < runLen; i++ {
				out = append(out, value)
			}
		} else {
			groups := int(header >> 1)
			count := groups * 8
			bytesNeeded := (count*int(bitWidth) + 7) / 8
			if pos+bytesNeeded > len(buf) {
				return nil, fmt.Errorf("parquet: truncated bit-packed run")
			}
			out = append(out, unpackBits(buf[pos:pos+bytesNeeded], bitWidth, count)...)
			pos += bytesNeeded
		}
	}
	if len(out) > numValues {
		out = out[:numValues]
	}
	return out, nil
}

func unpackBits(data []byte, bitWidth uint, count int) []int {
	out := make([]int, count)
	bitPos := 0
	for i := 0; i < count; i++ {
		var v int
		for b := uint(0); b < bitWidth; b++ {
			byteIdx := bitPos / 8
			bitIdx := uint(bitPos % 8)
			if byteIdx < len(data) && (data[byteIdx]>>bitIdx)&1 == 1 {
				v |= 1 << b
			}
			bitPos++
		}
		out[i] = v
	}
	return out
}
