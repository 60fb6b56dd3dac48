package parquet

import (
	"encoding/binary"
	"fmt"

	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/compress"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/thrift"
)

// FooterMagic is the trailing 4-byte magic every valid Parquet file
// ends with.
const FooterMagic = "PAR1"

// TrailerLen is the fixed-size trailer: 4 bytes of little-endian footer
// length followed by the 4-byte magic.
const TrailerLen = 8

// ErrCorruptFooter indicates the trailing magic is wrong or the footer
// bytes are truncated/malformed.
type ErrCorruptFooter struct {
	Reason string
}

func (e *ErrCorruptFooter) Error() string { return "parquet: corrupt footer: " + e.Reason }

// ParseTrailer reads the last TrailerLen bytes of a Parquet file and
// returns the footer's byte length.
func ParseTrailer(trailer []byte) (footerLen int64, err error) {
	if len(trailer) != TrailerLen {
		return 0, &ErrCorruptFooter{Reason: fmt.Sprintf("trailer must be %d bytes, got %d", TrailerLen, len(trailer))}
	}
	if string(trailer[4:8]) != FooterMagic {
		return 0, &ErrCorruptFooter{Reason: "missing PAR1 magic"}
	}
	return int64(binary.LittleEndian.Uint32(trailer[0:4])), nil
}

// DecodeFileMetaData parses the compact-Thrift FileMetaData structure
// from footer bytes (everything between the file's second PAR1 magic
// boundary and the trailer).
func DecodeFileMetaData(footer []byte) (*FileMetaData, error) {
	d := thrift.NewDecoder(footer)
	md := &FileMetaData{}

	d.BeginStruct()
	defer d.EndStruct()
	for {
		h, err := d.ReadFieldHeader()
		if err != nil {
			return nil, &ErrCorruptFooter{Reason: err.Error()}
		}
		if thrift.IsStop(h) {
			break
		}
		switch h.ID {
		case 1: // version
			v, err := d.ReadZigZag32()
			if err != nil {
				return nil, &ErrCorruptFooter{Reason: "version: " + err.Error()}
			}
			md.Version = v
		case 2: // schema
			schema, err := decodeSchemaList(d)
			if err != nil {
				return nil, &ErrCorruptFooter{Reason: "schema: " + err.Error()}
			}
			md.Schema = schema
		case 3: // num_rows
			v, err := d.ReadZigZag64()
			if err != nil {
				return nil, &ErrCorruptFooter{Reason: "num_rows: " + err.Error()}
			}
			md.NumRows = v
		case 4: // row_groups
			rgs, err := decodeRowGroupList(d)
			if err != nil {
				return nil, &ErrCorruptFooter{Reason: "row_groups: " + err.Error()}
			}
			md.RowGroups = rgs
		default:
			if err := d.Skip(h.Type); err != nil {
				return nil, &ErrCorruptFooter{Reason: err.Error()}
			}
		}
	}
	return md, nil
}

func decodeSchemaList(d *thrift.Decoder) ([]SchemaElement, error) {
	elemType, n, err := d.ReadListHeader()
	if err != nil {
		return nil, err
	}
	if elemType != thrift.WireStruct {
		return nil, fmt.Errorf("expected struct list, got wire type %d", elemType)
	}
	out := make([]SchemaElement, 0, n)
	for i := 0; i < n; i++ {
		se, err := decodeSchemaElement(d)
		if err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, nil
}

func decodeSchemaElement(d *thrift.Decoder) (SchemaElement, error) {
	var se SchemaElement
	var repetitionType int32 = -1
	d.BeginStruct()
	defer d.EndStruct()
	for {
		h, err := d.ReadFieldHeader()
		if err != nil {
			return se, err
		}
		if thrift.IsStop(h) {
			break
		}
		switch h.ID {
		case 1: // type
			v, err := d.ReadZigZag32()
			if err != nil {
				return se, err
			}
			se.Type = physicalTypeFromThrift(v)
		case 3: // repetition_type
			v, err := d.ReadZigZag32()
			if err != nil {
				return se, err
			}
			repetitionType = v
		case 4: // name
			s, err := d.ReadString()
			if err != nil {
				return se, err
			}
			se.Name = s
		case 5: // num_children
			v, err := d.ReadZigZag32()
			if err != nil {
				return se, err
			}
			se.NumChildren = v
		case 6: // converted_type
			v, err := d.ReadZigZag32()
			if err != nil {
				return se, err
			}
			se.ConvertedType = convertedTypeFromThrift(v)
		default:
			if err := d.Skip(h.Type); err != nil {
				return se, err
			}
		}
	}
	se.Optional = repetitionType == 1
	return se, nil
}

func decodeRowGroupList(d *thrift.Decoder) ([]RowGroup, error) {
	elemType, n, err := d.ReadListHeader()
	if err != nil {
		return nil, err
	}
	if elemType != thrift.WireStruct {
		return nil, fmt.Errorf("expected struct list, got wire type %d", elemType)
	}
	out := make([]RowGroup, 0, n)
	for i := 0; i < n; i++ {
		rg, err := decodeRowGroup(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rg)
	}
	return out, nil
}

func decodeRowGroup(d *thrift.Decoder) (RowGroup, error) {
	var rg RowGroup
	d.BeginStruct()
	defer d.EndStruct()
	for {
		h, err := d.ReadFieldHeader()
		if err != nil {
			return rg, err
		}
		if thrift.IsStop(h) {
			break
		}
		switch h.ID {
		case 1: // columns
			cols, err := decodeColumnChunkList(d)
			if err != nil {
				return rg, err
			}
			rg.Columns = cols
		case 3: // num_rows
			v, err := d.ReadZigZag64()
			if err != nil {
				return rg, err
			}
			rg.NumRows = v
		default:
			if err := d.Skip(h.Type); err != nil {
				return rg, err
			}
		}
	}
	return rg, nil
}

func decodeColumnChunkList(d *thrift.Decoder) ([]ColumnChunk, error) {
	elemType, n, err := d.ReadListHeader()
	if err != nil {
		return nil, err
	}
	if elemType != thrift.WireStruct {
		return nil, fmt.Errorf("expected struct list, got wire type %d", elemType)
	}
	out := make([]ColumnChunk, 0, n)
	for i := 0; i < n; i++ {
		cc, err := decodeColumnChunk(d)
		if err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	return out, nil
}

func decodeColumnChunk(d *thrift.Decoder) (ColumnChunk, error) {
	var cc ColumnChunk
	d.BeginStruct()
	defer d.EndStruct()
	for {
		h, err := d.ReadFieldHeader()
		if err != nil {
			return cc, err
		}
		if thrift.IsStop(h) {
			break
		}
		switch h.ID {
		case 3: // meta_data
			md, err := decodeColumnMetaData(d)
			if err != nil {
				return cc, err
			}
			cc.MetaData = md
		default:
			if err := d.Skip(h.Type); err != nil {
				return cc, err
			}
		}
	}
	return cc, nil
}

func decodeColumnMetaData(d *thrift.Decoder) (ColumnMetaData, error) {
	var md ColumnMetaData
	d.BeginStruct()
	defer d.EndStruct()
	for {
		h, err := d.ReadFieldHeader()
		if err != nil {
			return md, err
		}
		if thrift.IsStop(h) {
			break
		}
		switch h.ID {
		case 1: // type
			v, err := d.ReadZigZag32()
			if err != nil {
				return md, err
			}
			md.Type = physicalTypeFromThrift(v)
		case 3: // path_in_schema
			path, err := decodeStringList(d)
			if err != nil {
				return md, err
			}
			md.PathInSchema = path
		case 4: // codec
			v, err := d.ReadZigZag32()
			if err != nil {
				return md, err
			}
			codec, err := codecFromThrift(v)
			if err != nil {
				return md, err
			}
			md.Codec = codec
		case 5: // num_values
			v, err := d.ReadZigZag64()
			if err != nil {
				return md, err
			}
			md.NumValues = v
		case 6: // total_uncompressed_size
			v, err := d.ReadZigZag64()
			if err != nil {
				return md, err
			}
			md.UncompressedSize = v
		case 7: // total_compressed_size
			v, err := d.ReadZigZag64()
			if err != nil {
				return md, err
			}
			md.CompressedSize = v
		case 9: // data_page_offset
			v, err := d.ReadZigZag64()
			if err != nil {
				return md, err
			}
			md.DataPageOffset = v
		case 11: // dictionary_page_offset
			v, err := d.ReadZigZag64()
			if err != nil {
				return md, err
			}
			md.DictionaryPageOffset = v
		default:
			if err := d.Skip(h.Type); err != nil {
				return md, err
			}
		}
	}
	return md, nil
}

func decodeStringList(d *thrift.Decoder) ([]string, error) {
	elemType, n, err := d.ReadListHeader()
	if err != nil {
		return nil, err
	}
	if elemType != thrift.WireBinary {
		return nil, fmt.Errorf("expected binary list, got wire type %d", elemType)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func physicalTypeFromThrift(v int32) PhysicalType {
	switch v {
	case 0:
		return TypeBoolean
	case 1:
		return TypeInt32
	case 2:
		return TypeInt64
	case 4:
		return TypeFloat
	case 5:
		return TypeDouble
	case 6:
		return TypeByteArray
	default:
		return TypeByteArray // INT96/FIXED_LEN_BYTE_ARRAY: treated as opaque bytes, unused by this schema
	}
}

func convertedTypeFromThrift(v int32) ConvertedType {
	switch v {
	case 0:
		return ConvertedUTF8
	case 19:
		return ConvertedJSON
	default:
		return ConvertedNone
	}
}

func codecFromThrift(v int32) (compress.Codec, error) {
	switch v {
	case 0:
		return compress.Uncompressed, nil
	case 1:
		return compress.Snappy, nil
	case 2:
		return compress.Gzip, nil
	case 6:
		return compress.Zstd, nil
	default:
		return 0, &compress.ErrUnsupportedCodec{Codec: compress.Codec(v)}
	}
}
