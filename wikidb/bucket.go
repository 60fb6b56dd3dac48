package wikidb

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

func gcerrorsIsNotFound(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}

// Bucket abstracts the object store the corpus lives in: a gocloud.dev
// blob bucket, plain HTTP byte-range GETs, or a local directory for
// development. NewRangeReaderEtag is the one primitive the range-fetch
// buffer (RangeFetcher) needs; everything else in this module is built
// on top of it.
type Bucket interface {
	Close() error
	NewRangeReaderEtag(ctx context.Context, key string, offset, length int64, etag string) (io.ReadCloser, string, error)
	// Size returns the byte length of key; the range-fetch buffer
	// issues this as its initial HEAD before reading any ranges.
	Size(ctx context.Context, key string) (int64, error)
}

// RefreshRequiredError indicates the remote object changed since the
// caller's cached etag was recorded: any bytes cached under that etag
// must be discarded before retrying.
type RefreshRequiredError struct {
	StatusCode int
}

func (e *RefreshRequiredError) Error() string {
	return fmt.Sprintf("object changed, http status %d", e.StatusCode)
}

func isRefreshRequiredCode(code int) bool {
	return code == http.StatusPreconditionFailed || code == http.StatusRequestedRangeNotSatisfiable
}

// FileBucket serves objects from a local directory, for development and
// tests without a real object store.
type FileBucket struct {
	Path string
}

func (b FileBucket) NewRangeReaderEtag(_ context.Context, key string, offset, length int64, etag string) (io.ReadCloser, string, error) {
	name := filepath.Join(b.Path, filepath.FromSlash(key))
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", NewError(KindNotFound, "object not found: "+key, err)
		}
		return nil, "", NewError(KindTransport, "opening "+key, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, "", NewError(KindTransport, "stat "+key, err)
	}
	hash := md5.Sum([]byte(fmt.Sprintf("%d %d", info.ModTime().UnixNano(), info.Size())))
	newEtag := hex.EncodeToString(hash[:])
	if etag != "" && etag != newEtag {
		return nil, "", &RefreshRequiredError{}
	}
	if offset+length > info.Size() {
		return nil, "", NewError(KindInvalidArgument, "range out of bounds", nil)
	}
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, "", NewError(KindTransport, "reading "+key, err)
	}
	return io.NopCloser(bytes.NewReader(buf)), newEtag, nil
}

func (b FileBucket) Close() error { return nil }

func (b FileBucket) Size(_ context.Context, key string) (int64, error) {
	info, err := os.Stat(filepath.Join(b.Path, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, NewError(KindNotFound, "object not found: "+key, err)
		}
		return 0, NewError(KindTransport, "stat "+key, err)
	}
	return info.Size(), nil
}

// HTTPBucket serves objects over plain HTTP byte-range GET requests
// against a base URL.
type HTTPBucket struct {
	BaseURL string
	Client  *http.Client
}

func (b HTTPBucket) NewRangeReaderEtag(ctx context.Context, key string, offset, length int64, etag string) (io.ReadCloser, string, error) {
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimRight(b.BaseURL, "/") + "/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", NewError(KindInternal, "building request", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", NewError(KindCanceled, "range read canceled", err)
		}
		return nil, "", NewError(KindTransport, "range read", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		if isRefreshRequiredCode(resp.StatusCode) {
			return nil, "", &RefreshRequiredError{resp.StatusCode}
		}
		return nil, "", NewError(KindTransport, fmt.Sprintf("unexpected http status %d", resp.StatusCode), nil)
	}
	return resp.Body, resp.Header.Get("ETag"), nil
}

func (b HTTPBucket) Close() error { return nil }

func (b HTTPBucket) Size(ctx context.Context, key string) (int64, error) {
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimRight(b.BaseURL, "/") + "/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, NewError(KindInternal, "building HEAD request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, NewError(KindCanceled, "HEAD canceled", err)
		}
		return 0, NewError(KindTransport, "HEAD failed, object unavailable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return 0, NewError(KindNotFound, "object not found: "+key, nil)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, NewError(KindTransport, fmt.Sprintf("HEAD returned status %d", resp.StatusCode), nil)
	}
	if resp.ContentLength < 0 {
		return 0, NewError(KindTransport, "HEAD response missing Content-Length", nil)
	}
	return resp.ContentLength, nil
}

// BlobBucket adapts a gocloud.dev/blob bucket, giving this module S3,
// GCS, and Azure Blob Storage backends for free through gocloud's
// driver registry (blank-imported by cmd/wikidb).
type BlobBucket struct {
	Bucket *blob.Bucket
}

func (b BlobBucket) NewRangeReaderEtag(ctx context.Context, key string, offset, length int64, etag string) (io.ReadCloser, string, error) {
	reader, err := b.Bucket.NewRangeReader(ctx, key, offset, length, &blob.ReaderOptions{
		BeforeRead: func(asFunc func(interface{}) bool) error {
			var req *s3.GetObjectInput
			if etag != "" && asFunc(&req) {
				req.IfMatch = &etag
			}
			return nil
		},
	})
	if err != nil {
		var reqErr awserr.RequestFailure
		if ok := errorsAsRequestFailure(err, &reqErr); ok && isRefreshRequiredCode(reqErr.StatusCode()) {
			return nil, "", &RefreshRequiredError{reqErr.StatusCode()}
		}
		if ctx.Err() != nil {
			return nil, "", NewError(KindCanceled, "range read canceled", err)
		}
		return nil, "", NewError(KindTransport, "range read", err)
	}
	resultEtag := ""
	var resp s3.GetObjectOutput
	if reader.As(&resp) && resp.ETag != nil {
		resultEtag = *resp.ETag
	}
	return reader, resultEtag, nil
}

func (b BlobBucket) Close() error { return b.Bucket.Close() }

func (b BlobBucket) Size(ctx context.Context, key string) (int64, error) {
	attrs, err := b.Bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrorsIsNotFound(err) {
			return 0, NewError(KindNotFound, "object not found: "+key, err)
		}
		return 0, NewError(KindTransport, "fetching attributes for "+key, err)
	}
	return attrs.Size, nil
}

func errorsAsRequestFailure(err error, target *awserr.RequestFailure) bool {
	for err != nil {
		if rf, ok := err.(awserr.RequestFailure); ok {
			*target = rf
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// OpenBucket opens bucketURL as a Bucket: "http(s)://" uses HTTPBucket,
// "file://" uses FileBucket, anything else is handed to gocloud.dev/blob
// (s3://, gs://, azblob://, ...).
func OpenBucket(ctx context.Context, bucketURL string) (Bucket, error) {
	switch {
	case strings.HasPrefix(bucketURL, "http://") || strings.HasPrefix(bucketURL, "https://"):
		return HTTPBucket{BaseURL: bucketURL}, nil
	case strings.HasPrefix(bucketURL, "file://"):
		return FileBucket{Path: strings.TrimPrefix(bucketURL, "file://")}, nil
	default:
		bkt, err := blob.OpenBucket(ctx, bucketURL)
		if err != nil {
			return nil, NewError(KindTransport, "opening bucket "+bucketURL, err)
		}
		return BlobBucket{Bucket: bkt}, nil
	}
}
