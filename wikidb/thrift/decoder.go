// Package thrift implements the minimal compact-binary Thrift decoder
// the Parquet footer format requires: positional, non-backtracking,
// no per-field allocation. It does not implement the full Thrift
// compact protocol (no write side, no union/map support beyond what the
// Parquet FileMetaData schema exercises).
package thrift

import (
	"encoding/binary"
	"fmt"
	"math"
)

// WireType is a compact-protocol field type tag.
type WireType byte

const (
	WireBool1      WireType = 1
	WireBool2      WireType = 2
	WireByte       WireType = 3
	WireI16        WireType = 4
	WireI32        WireType = 5
	WireI64        WireType = 6
	WireDouble     WireType = 7
	WireBinary     WireType = 8
	WireList       WireType = 9
	WireSet        WireType = 10
	WireMap        WireType = 11
	WireStruct     WireType = 12
)

// FieldHeader is the result of reading one compact-protocol field
// header: the field's id (resolved against the running delta) and its
// wire type. An id of 0 together with wireType 0 denotes a STOP marker.
type FieldHeader struct {
	ID   int16
	Type WireType
}

// Decoder is a positional cursor over a byte slice containing
// compact-binary Thrift. It never backtracks and never allocates for a
// single field read; callers that need to retain bytes must copy them.
type Decoder struct {
	buf          []byte
	pos          int
	lastFieldID  int16
	fieldIDStack []int16
}

// NewDecoder wraps buf for decoding starting at offset 0.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// BeginStruct must be called when entering a new struct (including each
// element of a list/set of structs): the compact protocol resolves a
// field header's short-form delta against the last field id seen
// within the CURRENT struct, so nesting requires saving and resetting
// that counter.
func (d *Decoder) BeginStruct() {
	d.fieldIDStack = append(d.fieldIDStack, d.lastFieldID)
	d.lastFieldID = 0
}

// EndStruct restores the enclosing struct's lastFieldID after this
// struct's STOP marker has been consumed. Must be paired with BeginStruct.
func (d *Decoder) EndStruct() {
	n := len(d.fieldIDStack)
	d.lastFieldID = d.fieldIDStack[n-1]
	d.fieldIDStack = d.fieldIDStack[:n-1]
}

// Pos returns the current read offset, useful for bounding a struct's
// sub-decode to the bytes a length-prefixed container claimed.
func (d *Decoder) Pos() int { return d.pos }

// remaining returns the number of unread bytes left in buf.
func (d *Decoder) remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) errf(format string, args ...interface{}) error {
	return fmt.Errorf("thrift: "+format, args...)
}

// ReadByte reads one raw byte.
func (d *Decoder) ReadByte() (byte, error) {
	if d.remaining() < 1 {
		return 0, d.errf("truncated at byte offset %d", d.pos)
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// ReadVarint reads an LEB128-style unsigned varint.
func (d *Decoder) ReadVarint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := d.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 70 {
			return 0, d.errf("varint too long at offset %d", d.pos)
		}
	}
}

// ReadZigZag32 reads a zig-zag-encoded varint as an int32.
func (d *Decoder) ReadZigZag32() (int32, error) {
	v, err := d.ReadVarint()
	if err != nil {
		return 0, err
	}
	n := uint32(v)
	return int32(n>>1) ^ -int32(n&1), nil
}

// ReadZigZag64 reads a zig-zag-encoded varint as an int64.
func (d *Decoder) ReadZigZag64() (int64, error) {
	v, err := d.ReadVarint()
	if err != nil {
		return 0, err
	}
	return int64(v>>1) ^ -int64(v&1), nil
}

// ReadDouble reads 8 little-endian bytes as a float64.
func (d *Decoder) ReadDouble() (float64, error) {
	if d.remaining() < 8 {
		return 0, d.errf("truncated double at offset %d", d.pos)
	}
	bits := binary.LittleEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return math.Float64frombits(bits), nil
}

// ReadBinary reads a varint-length-prefixed byte string.
func (d *Decoder) ReadBinary() ([]byte, error) {
	n, err := d.ReadVarint()
	if err != nil {
		return nil, err
	}
	if int(n) < 0 || d.remaining() < int(n) {
		return nil, d.errf("truncated binary of length %d at offset %d", n, d.pos)
	}
	out := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return out, nil
}

// ReadString reads a length-prefixed UTF-8 string.
func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBinary()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadFieldHeader reads one compact-protocol field header, resolving
// short-form delta ids against the decoder's running lastFieldID. A
// zero-valued header with Type==0 and ID==0 is the struct STOP marker;
// callers should check for it explicitly via IsStop.
func (d *Decoder) ReadFieldHeader() (FieldHeader, error) {
	b, err := d.ReadByte()
	if err != nil {
		return FieldHeader{}, err
	}
	if b == 0 {
		return FieldHeader{}, nil // STOP
	}
	delta := (b & 0xf0) >> 4
	wireType := WireType(b & 0x0f)
	var id int16
	if delta == 0 {
		// long form: id is a separate zig-zag varint
		zz, err := d.ReadZigZag32()
		if err != nil {
			return FieldHeader{}, err
		}
		id = int16(zz)
	} else {
		id = d.lastFieldID + int16(delta)
	}
	d.lastFieldID = id
	return FieldHeader{ID: id, Type: wireType}, nil
}

// IsStop reports whether h is the struct STOP sentinel.
func IsStop(h FieldHeader) bool { return h.ID == 0 && h.Type == 0 }

// ReadListHeader reads a compact-protocol list/set header: element wire
// type and element count.
func (d *Decoder) ReadListHeader() (WireType, int, error) {
	b, err := d.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	sizeNibble := (b & 0xf0) >> 4
	elemType := WireType(b & 0x0f)
	size := int(sizeNibble)
	if sizeNibble == 15 {
		v, err := d.ReadVarint()
		if err != nil {
			return 0, 0, err
		}
		size = int(v)
	}
	return elemType, size, nil
}

// Skip advances past one value of the given wire type without
// allocating beyond what ReadBinary/nested Skip calls already do.
func (d *Decoder) Skip(t WireType) error {
	switch t {
	case WireBool1, WireBool2:
		// The boolean value is packed into the field header's type
		// nibble; there is no value body to consume.
		return nil
	case WireByte:
		_, err := d.ReadByte()
		return err
	case WireI16, WireI32, WireI64:
		_, err := d.ReadVarint()
		return err
	case WireDouble:
		_, err := d.ReadDouble()
		return err
	case WireBinary:
		_, err := d.ReadBinary()
		return err
	case WireList, WireSet:
		elemType, size, err := d.ReadListHeader()
		if err != nil {
			return err
		}
		for i := 0; i < size; i++ {
			if err := d.Skip(elemType); err != nil {
				return err
			}
		}
		return nil
	case WireMap:
		return d.skipMap()
	case WireStruct:
		d.BeginStruct()
		for {
			h, err := d.ReadFieldHeader()
			if err != nil {
				return err
			}
			if IsStop(h) {
				d.EndStruct()
				return nil
			}
			if err := d.Skip(h.Type); err != nil {
				return err
			}
		}
	default:
		return d.errf("unknown wire type %d at offset %d", t, d.pos)
	}
}

func (d *Decoder) skipMap() error {
	size, err := d.ReadVarint()
	if err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	kvTypes, err := d.ReadByte()
	if err != nil {
		return err
	}
	keyType := WireType((kvTypes & 0xf0) >> 4)
	valType := WireType(kvTypes & 0x0f)
	for i := uint64(0); i < size; i++ {
		if err := d.Skip(keyType); err != nil {
			return err
		}
		if err := d.Skip(valType); err != nil {
			return err
		}
	}
	return nil
}
