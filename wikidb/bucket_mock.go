package wikidb

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
)

// MockBucket is an in-memory Bucket for tests, grounded on the same
// shape as FileBucket/HTTPBucket so range-fetch buffer tests don't need
// a real object store.
type MockBucket struct {
	Items map[string][]byte
}

func (m MockBucket) Close() error { return nil }

func (m MockBucket) Size(_ context.Context, key string) (int64, error) {
	bs, ok := m.Items[key]
	if !ok {
		return 0, NewError(KindNotFound, "object not found: "+key, nil)
	}
	return int64(len(bs)), nil
}

func (m MockBucket) NewRangeReaderEtag(_ context.Context, key string, offset, length int64, etag string) (io.ReadCloser, string, error) {
	bs, ok := m.Items[key]
	if !ok {
		return nil, "", NewError(KindNotFound, "object not found: "+key, nil)
	}
	hash := md5.Sum(bs)
	resultEtag := hex.EncodeToString(hash[:])
	if etag != "" && etag != resultEtag {
		return nil, "", &RefreshRequiredError{}
	}
	if offset < 0 || offset+length > int64(len(bs)) {
		return nil, "", NewError(KindInvalidArgument, "range out of bounds", nil)
	}
	return io.NopCloser(bytes.NewReader(bs[offset : offset+length])), resultEtag, nil
}
