// Package compress implements the block decompression codecs Parquet
// column chunks may use: none, snappy, gzip, zstd. Snappy is decoded
// from its raw block framing (varint-prefixed uncompressed length,
// then a stream of literal/copy tags); gzip and zstd delegate to
// platform implementations (compress/gzip and klauspost/compress/zstd,
// the ecosystem's pure-Go zstd).
package compress

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Codec identifies the compression algorithm applied to a Parquet
// column chunk's pages.
type Codec int

const (
	Uncompressed Codec = iota
	Snappy
	Gzip
	Zstd
)

// ErrUnsupportedCodec is returned for any codec value this package does
// not implement.
type ErrUnsupportedCodec struct {
	Codec Codec
}

func (e *ErrUnsupportedCodec) Error() string {
	return fmt.Sprintf("compress: unsupported codec %d", e.Codec)
}

// Decompress decompresses data, which was compressed with codec.
// uncompressedSize comes from the Parquet page metadata: the
// uncompressed and Snappy paths reject output of any other length,
// while the gzip and zstd paths use it only as a capacity hint and
// return whatever the stream decodes to.
func Decompress(data []byte, codec Codec, uncompressedSize int) ([]byte, error) {
	switch codec {
	case Uncompressed:
		if len(data) != uncompressedSize {
			return nil, fmt.Errorf("compress: uncompressed size mismatch, got %d want %d", len(data), uncompressedSize)
		}
		return data, nil
	case Snappy:
		return decompressSnappy(data, uncompressedSize)
	case Gzip:
		return decompressGzip(data, uncompressedSize)
	case Zstd:
		return decompressZstd(data, uncompressedSize)
	default:
		return nil, &ErrUnsupportedCodec{codec}
	}
}

func decompressGzip(data []byte, uncompressedSize int) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("compress: gzip header: %w", err)
	}
	defer r.Close()
	out := make([]byte, 0, uncompressedSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("compress: gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}

var zstdDecoderPool = sync.Pool{
	New: func() interface{} {
		d, _ := zstd.NewReader(nil)
		return d
	},
}

func decompressZstd(data []byte, uncompressedSize int) ([]byte, error) {
	d := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(d)
	if err := d.Reset(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("compress: zstd reset: %w", err)
	}
	out := make([]byte, 0, uncompressedSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, d); err != nil {
		return nil, fmt.Errorf("compress: zstd stream: %w", err)
	}
	return buf.Bytes(), nil
}

// decompressSnappy implements the snappy block format: a varint-encoded
// uncompressed length followed by a sequence of literal and copy tags.
func decompressSnappy(data []byte, uncompressedSize int) ([]byte, error) {
	length, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, fmt.Errorf("compress: snappy: invalid length varint")
	}
	if int(length) != uncompressedSize {
		return nil, fmt.Errorf("compress: snappy: length mismatch, header says %d, expected %d", length, uncompressedSize)
	}
	src := data[n:]
	dst := make([]byte, 0, length)

	pos := 0
	for pos < len(src) {
		tag := src[pos]
		switch tag & 0x03 {
		case 0: // literal
			litLen := int(tag>>2) + 1
			pos++
			if litLen > 60 {
				extra := litLen - 60
				if pos+extra > len(src) {
					return nil, fmt.Errorf("compress: snappy: truncated literal length")
				}
				litLen = 0
				for i := 0; i < extra; i++ {
					litLen |= int(src[pos+i]) << (8 * i)
				}
				litLen++
				pos += extra
			}
			if pos+litLen > len(src) {
				return nil, fmt.Errorf("compress: snappy: truncated literal")
			}
			dst = append(dst, src[pos:pos+litLen]...)
			pos += litLen
		case 1: // copy with 1-byte offset
			length := int((tag>>2)&0x07) + 4
			if pos+2 > len(src) {
				return nil, fmt.Errorf("compress: snappy: truncated copy1")
			}
			offset := (int(tag&0xe0) << 3) | int(src[pos+1])
			pos += 2
			if err := appendCopy(&dst, offset, length); err != nil {
				return nil, err
			}
		case 2: // copy with 2-byte offset
			length := int(tag>>2) + 1
			if pos+3 > len(src) {
				return nil, fmt.Errorf("compress: snappy: truncated copy2")
			}
			offset := int(src[pos+1]) | int(src[pos+2])<<8
			pos += 3
			if err := appendCopy(&dst, offset, length); err != nil {
				return nil, err
			}
		case 3: // copy with 4-byte offset
			length := int(tag>>2) + 1
			if pos+5 > len(src) {
				return nil, fmt.Errorf("compress: snappy: truncated copy4")
			}
			offset := int(src[pos+1]) | int(src[pos+2])<<8 | int(src[pos+3])<<16 | int(src[pos+4])<<24
			pos += 5
			if err := appendCopy(&dst, offset, length); err != nil {
				return nil, err
			}
		}
	}
	if len(dst) != uncompressedSize {
		return nil, fmt.Errorf("compress: snappy: decoded %d bytes, expected %d", len(dst), uncompressedSize)
	}
	return dst, nil
}

func appendCopy(dst *[]byte, offset, length int) error {
	if offset <= 0 || offset > len(*dst) {
		return fmt.Errorf("compress: snappy: invalid copy offset %d (buf len %d)", offset, len(*dst))
	}
	start := len(*dst) - offset
	for i := 0; i < length; i++ {
		*dst = append(*dst, (*dst)[start+i])
	}
	return nil
}
