package parquet

import "github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/compress"

// PhysicalType is a Parquet primitive type, restricted to the subset
// this reader supports.
type PhysicalType int32

const (
	TypeBoolean PhysicalType = iota
	TypeInt32
	TypeInt64
	TypeFloat
	TypeDouble
	TypeByteArray
)

// ConvertedType annotates a BYTE_ARRAY column's logical interpretation.
type ConvertedType int32

const (
	ConvertedNone ConvertedType = iota
	ConvertedUTF8
	ConvertedJSON
)

// SchemaElement is one flattened entry of the file schema: a flat list
// denoting a nested schema by num_children.
type SchemaElement struct {
	Name          string
	Type          PhysicalType
	ConvertedType ConvertedType
	NumChildren   int32
	Optional      bool
}

// ColumnMetaData describes one column chunk within a row group.
type ColumnMetaData struct {
	PathInSchema        []string
	Codec               compress.Codec
	DataPageOffset      int64
	DictionaryPageOffset int64 // 0 if absent
	CompressedSize      int64
	UncompressedSize    int64
	NumValues           int64
	Type                PhysicalType
}

// ColumnChunk wraps a column's metadata as it appears in the footer.
type ColumnChunk struct {
	MetaData ColumnMetaData
}

// RowGroup is a horizontally partitioned block of rows.
type RowGroup struct {
	Columns  []ColumnChunk
	NumRows  int64
}

// FileMetaData is the decoded Parquet footer.
type FileMetaData struct {
	Version   int32
	Schema    []SchemaElement
	NumRows   int64
	RowGroups []RowGroup
}

// ColumnByPath finds rg's column chunk whose PathInSchema matches name,
// returning (chunk, true) or (zero, false) if the row group doesn't
// carry that column (e.g. it was excluded from the projection at write
// time, which this reader does not assume, but callers projecting a
// column absent from an older file version should handle the miss).
func (rg RowGroup) ColumnByPath(name string) (ColumnChunk, bool) {
	for _, c := range rg.Columns {
		if len(c.MetaData.PathInSchema) == 1 && c.MetaData.PathInSchema[0] == name {
			return c, true
		}
	}
	return ColumnChunk{}, false
}
