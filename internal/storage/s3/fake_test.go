package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeObject struct {
	data     []byte
	meta     map[string]string
	modified time.Time
}

// fakeS3 is an in-memory API with per-operation failure injection.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]map[string]fakeObject
	created map[string]time.Time
	failing map[string][]error
	calls   map[string]int
	now     time.Time
}

func newFakeS3(buckets ...string) *fakeS3 {
	f := &fakeS3{
		buckets: make(map[string]map[string]fakeObject),
		created: make(map[string]time.Time),
		failing: make(map[string][]error),
		calls:   make(map[string]int),
		now:     time.Unix(1700000000, 0),
	}
	for _, b := range buckets {
		f.buckets[b] = make(map[string]fakeObject)
		f.created[b] = f.now
	}
	return f
}

func (f *fakeS3) failNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[op] = append(f.failing[op], errs...)
}

func (f *fakeS3) put(bucket, key, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[bucket][key] = fakeObject{data: []byte(data), modified: f.now}
}

func (f *fakeS3) object(bucket, key string) (fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.buckets[bucket][key]
	return o, ok
}

func (f *fakeS3) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// enter records a call and returns any injected failure. The caller holds mu.
func (f *fakeS3) enter(op string) error {
	f.calls[op]++
	if q := f.failing[op]; len(q) > 0 {
		f.failing[op] = q[1:]
		return q[0]
	}
	return nil
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func (f *fakeS3) ListBuckets(ctx context.Context, in *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListBuckets"); err != nil {
		return nil, err
	}
	out := &s3.ListBucketsOutput{}
	for _, name := range slices.Sorted(maps.Keys(f.buckets)) {
		created := f.created[name]
		out.Buckets = append(out.Buckets, s3types.Bucket{Name: aws.String(name), CreationDate: &created})
	}
	return out, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("HeadBucket"); err != nil {
		return nil, err
	}
	if _, ok := f.buckets[aws.ToString(in.Bucket)]; !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateBucket"); err != nil {
		return nil, err
	}
	name := aws.ToString(in.Bucket)
	if _, ok := f.buckets[name]; ok {
		return nil, &s3types.BucketAlreadyOwnedByYou{}
	}
	f.buckets[name] = make(map[string]fakeObject)
	f.created[name] = f.now
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) DeleteBucket(ctx context.Context, in *s3.DeleteBucketInput, _ ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteBucket"); err != nil {
		return nil, err
	}
	objects, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, &s3types.NoSuchBucket{}
	}
	if len(objects) > 0 {
		return nil, apiError("BucketNotEmpty")
	}
	delete(f.buckets, aws.ToString(in.Bucket))
	return &s3.DeleteBucketOutput{}, nil
}

func (f *fakeS3) lookup(bucket, key string) (fakeObject, error) {
	objects, ok := f.buckets[bucket]
	if !ok {
		return fakeObject{}, &s3types.NoSuchBucket{}
	}
	o, ok := objects[key]
	if !ok {
		return fakeObject{}, &s3types.NoSuchKey{}
	}
	return o, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("HeadObject"); err != nil {
		return nil, err
	}
	o, err := f.lookup(aws.ToString(in.Bucket), aws.ToString(in.Key))
	if err != nil {
		return nil, &s3types.NotFound{}
	}
	modified := o.modified
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(o.data))),
		Metadata:      maps.Clone(o.meta),
		LastModified:  &modified,
	}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetObject"); err != nil {
		return nil, err
	}
	o, err := f.lookup(aws.ToString(in.Bucket), aws.ToString(in.Key))
	if err != nil {
		return nil, err
	}
	data := o.data
	if r := aws.ToString(in.Range); r != "" {
		bounds := strings.SplitN(strings.TrimPrefix(r, "bytes="), "-", 2)
		start, _ := strconv.Atoi(bounds[0])
		end, _ := strconv.Atoi(bounds[1])
		end = min(end+1, len(data))
		if start >= end {
			return nil, apiError("InvalidRange")
		}
		data = data[start:end]
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(slices.Clone(data))),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutObject"); err != nil {
		return nil, err
	}
	objects, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, &s3types.NoSuchBucket{}
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	objects[aws.ToString(in.Key)] = fakeObject{data: data, meta: maps.Clone(in.Metadata), modified: f.now}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) CopyObject(ctx context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CopyObject"); err != nil {
		return nil, err
	}
	srcBucket, escaped, _ := strings.Cut(aws.ToString(in.CopySource), "/")
	srcKey, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, apiError("InvalidArgument")
	}
	o, err := f.lookup(srcBucket, srcKey)
	if err != nil {
		return nil, err
	}
	dst, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, &s3types.NoSuchBucket{}
	}
	dst[aws.ToString(in.Key)] = fakeObject{data: slices.Clone(o.data), meta: maps.Clone(o.meta), modified: f.now}
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteObject"); err != nil {
		return nil, err
	}
	objects, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, &s3types.NoSuchBucket{}
	}
	delete(objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 pages over keys and common prefixes together; the
// continuation token is the index of the next item.
func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListObjectsV2"); err != nil {
		return nil, err
	}
	objects, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, &s3types.NoSuchBucket{}
	}

	type item struct {
		key    string
		prefix bool
	}
	prefix, delim := aws.ToString(in.Prefix), aws.ToString(in.Delimiter)
	var items []item
	for _, key := range slices.Sorted(maps.Keys(objects)) {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if i := strings.Index(rest, delim); delim != "" && i >= 0 {
			p := prefix + rest[:i+1]
			if n := len(items); n > 0 && items[n-1].prefix && items[n-1].key == p {
				continue
			}
			items = append(items, item{key: p, prefix: true})
			continue
		}
		items = append(items, item{key: key})
	}

	start := 0
	if in.ContinuationToken != nil {
		n, err := strconv.Atoi(*in.ContinuationToken)
		if err != nil {
			return nil, apiError("InvalidArgument")
		}
		start = n
	}
	limit := int(aws.ToInt32(in.MaxKeys))
	if limit <= 0 {
		limit = 1000
	}
	end := min(start+limit, len(items))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(items))}
	for _, it := range items[start:end] {
		if it.prefix {
			out.CommonPrefixes = append(out.CommonPrefixes, s3types.CommonPrefix{Prefix: aws.String(it.key)})
			continue
		}
		o := objects[it.key]
		modified := o.modified
		out.Contents = append(out.Contents, s3types.Object{
			Key:          aws.String(it.key),
			Size:         aws.Int64(int64(len(o.data))),
			LastModified: &modified,
		})
	}
	out.KeyCount = aws.Int32(int32(end - start))
	if end < len(items) {
		out.NextContinuationToken = aws.String(fmt.Sprint(end))
	}
	return out, nil
}

var _ API = (*fakeS3)(nil)
