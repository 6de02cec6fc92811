package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"
	"golang.org/x/sys/unix"

	"github.com/objectfs/rgwbridge/internal/circuit"
	"github.com/objectfs/rgwbridge/pkg/native"
	"github.com/objectfs/rgwbridge/pkg/retry"
)

// Object metadata keys holding POSIX attributes.
const (
	metaMode = "mode"
	metaUID  = "uid"
	metaGID  = "gid"
)

const (
	defaultDirPerm  uint32 = 0o755
	defaultFilePerm uint32 = 0o644
)

// Library exposes S3 through the native contract with the RGW namespace
// layout: the root lists buckets, the first level is buckets and deeper
// levels are "/"-delimited key prefixes. A directory below a bucket exists
// when a "name/" marker object exists or the prefix holds objects.
type Library struct {
	cfg     *Config
	factory ClientFactory
	retryer *retry.Retryer
	breaker *circuit.Breaker
	stats   *requestStats
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	next     uintptr
	runtimes map[native.Runtime]bool
	sessions map[native.FS]*session
}

type session struct {
	api    API
	uid    string
	rootFH native.FH

	mu           sync.Mutex
	handles      map[native.FH]*handle
	cursors      map[uint64]*string
	nextCursor   uint64
	transporters map[string]*cargoships3.Transporter
}

type handle struct {
	bucket string
	key    string
	dir    bool

	mu     sync.Mutex
	stat   native.Stat
	data   []byte
	loaded bool
	dirty  bool
}

func (h *handle) isRoot() bool { return h.bucket == "" }

// prefix is the listing prefix of a directory handle.
func (h *handle) prefix() string {
	if h.key == "" {
		return ""
	}
	return h.key + "/"
}

func (h *handle) child(name string) (bucket, key string) {
	switch {
	case h.isRoot():
		return name, ""
	case h.key == "":
		return h.bucket, name
	default:
		return h.bucket, h.key + "/" + name
	}
}

// Option configures a Library.
type Option func(*Library)

// WithClientFactory replaces the SDK client constructor.
func WithClientFactory(f ClientFactory) Option {
	return func(l *Library) { l.factory = f }
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) { l.logger = logger.With("component", "s3-library") }
}

// WithClock replaces the time source used for new objects.
func WithClock(now func() time.Time) Option {
	return func(l *Library) { l.now = now }
}

// New creates an S3 native library. A nil cfg uses NewDefaultConfig.
func New(cfg *Config, opts ...Option) *Library {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	c := *cfg
	c.applyDefaults()

	l := &Library{
		cfg:      &c,
		factory:  NewClient,
		stats:    newRequestStats(),
		logger:   slog.Default().With("component", "s3-library"),
		now:      time.Now,
		next:     0x1000,
		runtimes: make(map[native.Runtime]bool),
		sessions: make(map[native.FS]*session),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.retryer = retry.New(c.Retry).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		l.stats.retry()
		l.logger.Debug("retrying S3 request", "attempt", attempt, "delay", delay, "error", err)
	})
	if c.Circuit.Enabled {
		cb := c.Circuit
		cb.IsFailure = unavailable
		cb.OnStateChange = func(from, to circuit.State) {
			l.logger.Warn("S3 circuit breaker changed state", "from", from.String(), "to", to.String())
		}
		l.breaker = circuit.New(cb)
	}
	return l
}

// unavailable reports failures that say the store itself is unhealthy, as
// opposed to answers about a missing or forbidden object.
func unavailable(err error) bool {
	switch statusOf(err) {
	case native.EIO, native.Errno(unix.ETIMEDOUT):
		return true
	}
	return false
}

// Name implements native.Library.
func (l *Library) Name() string { return "s3" }

// GetMetrics returns request statistics.
func (l *Library) GetMetrics() BackendMetrics {
	m := l.stats.snapshot()
	if l.breaker != nil {
		m.CircuitState = l.breaker.State().String()
		m.CircuitRejections = int64(l.breaker.Counts().Rejected)
	}
	return m
}

func (l *Library) token() uintptr {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next += 0x10
	return l.next
}

// call runs one S3 request with a timeout, retrying transient failures.
func (l *Library) call(operation string, fn func(ctx context.Context) error) error {
	start := time.Now()
	attempt := func() error {
		return l.retryer.DoWithContext(context.Background(), func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
			defer cancel()
			return classify(operation, fn(ctx))
		})
	}
	var err error
	if l.breaker != nil {
		err = l.breaker.Execute(attempt)
	} else {
		err = attempt()
	}
	l.stats.request(operation, time.Since(start), err, l.now())
	if err != nil {
		l.logger.Debug("S3 request failed", "operation", operation, "error", err)
	}
	return err
}

func (l *Library) session(fs native.FS) (*session, native.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[fs]
	if !ok {
		return nil, native.EINVAL
	}
	return s, native.OK
}

func (l *Library) resolve(fs native.FS, fh native.FH) (*session, *handle, native.Status) {
	s, st := l.session(fs)
	if st.Failed() {
		return nil, nil, st
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[fh]
	if !ok {
		return nil, nil, native.EBADF
	}
	return s, h, native.OK
}

func (l *Library) resolveDir(fs native.FS, fh native.FH) (*session, *handle, native.Status) {
	s, h, st := l.resolve(fs, fh)
	if st.Failed() {
		return nil, nil, st
	}
	if !h.dir {
		return nil, nil, native.ENOTDIR
	}
	return s, h, native.OK
}

func (l *Library) add(s *session, h *handle) native.FH {
	fh := native.FH(l.token())
	s.mu.Lock()
	s.handles[fh] = h
	s.mu.Unlock()
	return fh
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}

func dirStat(perm, uid, gid uint32, mtime int64) native.Stat {
	return native.Stat{Mode: native.ModeDir | perm, UID: uid, GID: gid, Atime: mtime, Mtime: mtime}
}

// statFromObject builds a stat from object metadata, falling back to
// defaults for objects not written through the library.
func statFromObject(meta map[string]string, dir bool, size int64, modified *time.Time) native.Stat {
	perm, typ := defaultFilePerm, native.ModeFile
	if dir {
		perm, typ, size = defaultDirPerm, native.ModeDir, 0
	}
	if v, err := strconv.ParseUint(meta[metaMode], 8, 32); err == nil {
		perm = uint32(v) & native.ModePerm
	}
	var uid, gid uint32
	if v, err := strconv.ParseUint(meta[metaUID], 10, 32); err == nil {
		uid = uint32(v)
	}
	if v, err := strconv.ParseUint(meta[metaGID], 10, 32); err == nil {
		gid = uint32(v)
	}
	mtime := aws.ToTime(modified).Unix()
	if modified == nil {
		mtime = 0
	}
	return native.Stat{Size: size, Mode: typ | perm, UID: uid, GID: gid, Atime: mtime, Mtime: mtime}
}

func metadataOf(st native.Stat) map[string]string {
	return map[string]string{
		metaMode: strconv.FormatUint(uint64(st.Mode&native.ModePerm), 8),
		metaUID:  strconv.FormatUint(uint64(st.UID), 10),
		metaGID:  strconv.FormatUint(uint64(st.GID), 10),
	}
}

// Create implements native.Library.
func (l *Library) Create(args []string) (native.Runtime, native.Status) {
	rt := native.Runtime(l.token())
	l.mu.Lock()
	l.runtimes[rt] = true
	l.mu.Unlock()
	l.logger.Info("S3 library initialized", "region", l.cfg.Region, "endpoint", l.cfg.Endpoint, "page_size", l.cfg.PageSize)
	return rt, native.OK
}

// Mount implements native.Library. Only the namespace root may be mounted.
func (l *Library) Mount(rt native.Runtime, uid, accessKey, secretKey, root string) (native.FS, native.Status) {
	l.mu.Lock()
	known := l.runtimes[rt]
	l.mu.Unlock()
	if !known {
		return 0, native.EINVAL
	}
	if strings.Trim(root, "/") != "" {
		return 0, native.ENOTSUP
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.RequestTimeout)
	api, err := l.factory(ctx, l.cfg, accessKey, secretKey)
	cancel()
	if err != nil {
		l.logger.Warn("S3 client creation failed", "uid", uid, "error", err)
		return 0, native.EIO
	}

	err = l.call("ListBuckets", func(ctx context.Context) error {
		_, err := api.ListBuckets(ctx, &s3.ListBucketsInput{})
		return err
	})
	if err != nil {
		return 0, statusOf(err)
	}

	s := &session{
		api:          api,
		uid:          uid,
		handles:      make(map[native.FH]*handle),
		cursors:      make(map[uint64]*string),
		transporters: make(map[string]*cargoships3.Transporter),
	}
	s.rootFH = l.add(s, &handle{dir: true, stat: dirStat(defaultDirPerm, 0, 0, 0)})

	fs := native.FS(l.token())
	l.mu.Lock()
	l.sessions[fs] = s
	l.mu.Unlock()
	l.logger.Debug("S3 session mounted", "uid", uid)
	return fs, native.OK
}

// Umount implements native.Library. Unflushed writes are uploaded first;
// the session is released even when an upload fails.
func (l *Library) Umount(fs native.FS) native.Status {
	l.mu.Lock()
	s, ok := l.sessions[fs]
	delete(l.sessions, fs)
	l.mu.Unlock()
	if !ok {
		return native.EINVAL
	}

	s.mu.Lock()
	handles := make([]*handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	result := native.OK
	for _, h := range handles {
		if st := l.flush(s, h); st.Failed() && !result.Failed() {
			result = st
		}
	}
	return result
}

// Root implements native.Library.
func (l *Library) Root(fs native.FS) native.FH {
	s, st := l.session(fs)
	if st.Failed() {
		return 0
	}
	return s.rootFH
}

// Open implements native.Library.
func (l *Library) Open(fs native.FS, fh native.FH, flags uint32) native.Status {
	_, _, st := l.resolve(fs, fh)
	return st
}

// Close implements native.Library. Buffered writes are uploaded here.
func (l *Library) Close(fs native.FS, fh native.FH, flags native.CloseFlags) native.Status {
	s, h, st := l.resolve(fs, fh)
	if st.Failed() {
		return st
	}
	if fh == s.rootFH {
		return native.OK
	}
	st = l.flush(s, h)
	if flags&native.CloseFlagRelease != 0 {
		s.mu.Lock()
		delete(s.handles, fh)
		s.mu.Unlock()
	}
	return st
}

func (s *session) transporter(l *Library, bucket string) *cargoships3.Transporter {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transporters[bucket]
	if !ok {
		t = newTransporter(s.api, l.cfg, bucket)
		s.transporters[bucket] = t
		if t != nil {
			l.logger.Info("CargoShip S3 optimization enabled", "bucket", bucket, "concurrency", l.cfg.Concurrency)
		}
	}
	return t
}

// flush uploads a dirty file handle.
func (l *Library) flush(s *session, h *handle) native.Status {
	if h.dir {
		return native.OK
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.dirty {
		return native.OK
	}

	data := h.data
	meta := metadataOf(h.stat)

	if t := s.transporter(l, h.bucket); t != nil {
		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.RequestTimeout)
		result, err := t.Upload(ctx, cargoships3.Archive{
			Key:          h.key,
			Reader:       bytes.NewReader(data),
			Size:         int64(len(data)),
			StorageClass: cargoStorageClass(l.cfg.StorageClass),
			Metadata:     meta,
		})
		cancel()
		if err == nil {
			l.logger.Debug("CargoShip optimized upload completed",
				"key", h.key,
				"size", len(data),
				"throughput", result.Throughput,
				"duration", result.Duration)
			l.stats.upload(int64(len(data)), true)
			h.dirty = false
			return native.OK
		}
		l.stats.cargoShipFallback()
		l.logger.Warn("CargoShip optimization failed, falling back to standard S3", "key", h.key, "error", err)
	}

	err := l.call("PutObject", func(ctx context.Context) error {
		_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(h.bucket),
			Key:           aws.String(h.key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			StorageClass:  storageClass(l.cfg.StorageClass),
			Metadata:      meta,
		})
		return err
	})
	if err != nil {
		return statusOf(err)
	}
	l.stats.upload(int64(len(data)), false)
	h.dirty = false
	return native.OK
}

func (l *Library) headObject(s *session, bucket, key string) (*s3.HeadObjectOutput, error) {
	var out *s3.HeadObjectOutput
	err := l.call("HeadObject", func(ctx context.Context) error {
		var err error
		out, err = s.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		return err
	})
	return out, err
}

// dirExists looks for a directory marker, then for any object under the
// prefix.
func (l *Library) dirExists(s *session, bucket, key string) (bool, native.Stat, native.Status) {
	marker, err := l.headObject(s, bucket, key+"/")
	if err == nil {
		return true, statFromObject(marker.Metadata, true, 0, marker.LastModified), native.OK
	}
	if st := statusOf(err); st != native.ENOENT {
		return false, native.Stat{}, st
	}

	var out *s3.ListObjectsV2Output
	err = l.call("ListObjectsV2", func(ctx context.Context) error {
		var err error
		out, err = s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(bucket),
			Prefix:  aws.String(key + "/"),
			MaxKeys: aws.Int32(1),
		})
		return err
	})
	if err != nil {
		return false, native.Stat{}, statusOf(err)
	}
	if len(out.Contents) == 0 && len(out.CommonPrefixes) == 0 {
		return false, native.Stat{}, native.OK
	}
	return true, dirStat(defaultDirPerm, 0, 0, 0), native.OK
}

// Read implements native.Library.
func (l *Library) Read(fs native.FS, fh native.FH, off int64, buf []byte) (int, native.Status) {
	s, h, st := l.resolve(fs, fh)
	if st.Failed() {
		return 0, st
	}
	if h.dir {
		return 0, native.EISDIR
	}
	if off < 0 {
		return 0, native.EINVAL
	}

	h.mu.Lock()
	if h.loaded || h.dirty {
		defer h.mu.Unlock()
		if off >= int64(len(h.data)) {
			return 0, native.OK
		}
		return copy(buf, h.data[off:]), native.OK
	}
	size := h.stat.Size
	h.mu.Unlock()

	if len(buf) == 0 || off >= size {
		return 0, native.OK
	}
	end := min(off+int64(len(buf)), size) - 1

	var n int
	err := l.call("GetObject", func(ctx context.Context) error {
		out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(h.bucket),
			Key:    aws.String(h.key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		n, err = io.ReadFull(out.Body, buf[:end-off+1])
		if stderrors.Is(err, io.ErrUnexpectedEOF) || stderrors.Is(err, io.EOF) {
			err = nil
		}
		return err
	})
	l.stats.download(int64(n))
	if err != nil {
		return n, statusOf(err)
	}
	return n, native.OK
}

// maxObjectSize is the largest object a single PutObject accepts, which
// bounds a buffered handle.
const maxObjectSize int64 = 5 << 30

// Write implements native.Library. Data is buffered per handle and uploaded
// on Close; existing content is fetched first so partial writes keep it.
func (l *Library) Write(fs native.FS, fh native.FH, off int64, buf []byte) (int, native.Status) {
	s, h, st := l.resolve(fs, fh)
	if st.Failed() {
		return 0, st
	}
	if h.dir {
		return 0, native.EISDIR
	}
	if off < 0 {
		return 0, native.EINVAL
	}
	if off > maxObjectSize-int64(len(buf)) {
		return 0, native.EFBIG
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.loaded && !h.dirty {
		if h.stat.Size > 0 {
			var data []byte
			err := l.call("GetObject", func(ctx context.Context) error {
				out, err := s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(h.bucket), Key: aws.String(h.key)})
				if err != nil {
					return err
				}
				defer out.Body.Close()
				data, err = io.ReadAll(out.Body)
				return err
			})
			if err != nil {
				return 0, statusOf(err)
			}
			l.stats.download(int64(len(data)))
			h.data = data
		}
		h.loaded = true
	}

	end := off + int64(len(buf))
	if end > int64(len(h.data)) {
		h.data = append(h.data, make([]byte, end-int64(len(h.data)))...)
	}
	copy(h.data[off:], buf)
	h.dirty = true
	h.stat.Size = int64(len(h.data))
	h.stat.Mtime = l.now().Unix()
	return len(buf), native.OK
}

// Lookup implements native.Library.
func (l *Library) Lookup(fs native.FS, parent native.FH, name string, flags native.LookupFlags) (native.FH, native.Status) {
	s, p, st := l.resolveDir(fs, parent)
	if st.Failed() {
		return 0, st
	}
	if !validName(name) {
		return 0, native.EINVAL
	}

	if p.isRoot() {
		if flags&native.LookupFlagFile != 0 {
			return 0, native.EISDIR
		}
		err := l.call("HeadBucket", func(ctx context.Context) error {
			_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
			return err
		})
		if err != nil {
			st := statusOf(err)
			if st == native.ENOENT && flags&native.LookupFlagCreate != 0 {
				// Only buckets live at the root.
				return 0, native.EPERM
			}
			return 0, st
		}
		return l.add(s, &handle{bucket: name, dir: true, stat: dirStat(defaultDirPerm, 0, 0, 0)}), native.OK
	}

	bucket, key := p.child(name)
	if flags&native.LookupFlagDir == 0 {
		out, err := l.headObject(s, bucket, key)
		if err == nil {
			stat := statFromObject(out.Metadata, false, aws.ToInt64(out.ContentLength), out.LastModified)
			return l.add(s, &handle{bucket: bucket, key: key, stat: stat}), native.OK
		}
		if st := statusOf(err); st != native.ENOENT {
			return 0, st
		}
	}
	if flags&native.LookupFlagFile == 0 {
		ok, stat, st := l.dirExists(s, bucket, key)
		if st.Failed() {
			return 0, st
		}
		if ok {
			return l.add(s, &handle{bucket: bucket, key: key, dir: true, stat: stat}), native.OK
		}
	}
	if flags&native.LookupFlagCreate == 0 || flags&native.LookupFlagDir != 0 {
		return 0, native.ENOENT
	}

	now := l.now().Unix()
	stat := native.Stat{Mode: native.ModeFile | defaultFilePerm, Atime: now, Mtime: now}
	err := l.call("PutObject", func(ctx context.Context) error {
		_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(nil),
			ContentLength: aws.Int64(0),
			StorageClass:  storageClass(l.cfg.StorageClass),
			Metadata:      metadataOf(stat),
		})
		return err
	})
	if err != nil {
		return 0, statusOf(err)
	}
	return l.add(s, &handle{bucket: bucket, key: key, stat: stat}), native.OK
}

// Getattr implements native.Library.
func (l *Library) Getattr(fs native.FS, fh native.FH) (native.Stat, native.Status) {
	s, h, st := l.resolve(fs, fh)
	if st.Failed() {
		return native.Stat{}, st
	}
	h.mu.Lock()
	if h.dir || h.loaded || h.dirty {
		defer h.mu.Unlock()
		return h.stat, native.OK
	}
	h.mu.Unlock()

	out, err := l.headObject(s, h.bucket, h.key)
	if err != nil {
		return native.Stat{}, statusOf(err)
	}
	stat := statFromObject(out.Metadata, false, aws.ToInt64(out.ContentLength), out.LastModified)
	h.mu.Lock()
	h.stat = stat
	h.mu.Unlock()
	return stat, native.OK
}

type listEntry struct {
	name  string
	stat  native.Stat
	flags native.LookupFlags
}

// Readdir implements native.Library. Each call issues one listing request;
// the returned cursor names the continuation token of the next page.
func (l *Library) Readdir(fs native.FS, dir native.FH, offset uint64, fn native.ReaddirFunc) (uint64, bool, native.Status) {
	s, h, st := l.resolveDir(fs, dir)
	if st.Failed() {
		return offset, false, st
	}
	if h.isRoot() {
		return l.readBuckets(s, offset, fn)
	}

	var token *string
	if offset != 0 {
		s.mu.Lock()
		t, ok := s.cursors[offset]
		delete(s.cursors, offset)
		s.mu.Unlock()
		if !ok {
			return offset, false, native.EINVAL
		}
		token = t
	}

	prefix := h.prefix()
	var out *s3.ListObjectsV2Output
	err := l.call("ListObjectsV2", func(ctx context.Context) error {
		var err error
		out, err = s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(h.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			MaxKeys:           aws.Int32(int32(l.cfg.PageSize)),
			ContinuationToken: token,
		})
		return err
	})
	if err != nil {
		return offset, false, statusOf(err)
	}

	var entries []listEntry
	for _, cp := range out.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
		if name == "" {
			continue
		}
		entries = append(entries, listEntry{name: name, stat: dirStat(defaultDirPerm, 0, 0, 0), flags: native.LookupFlagDir})
	}
	for _, obj := range out.Contents {
		name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		stat := statFromObject(nil, false, aws.ToInt64(obj.Size), obj.LastModified)
		entries = append(entries, listEntry{name: name, stat: stat, flags: native.LookupFlagFile})
	}
	slices.SortFunc(entries, func(a, b listEntry) int { return strings.Compare(a.name, b.name) })

	for _, e := range entries {
		st := e.stat
		if !fn(e.name, &st, native.SetattrSize|native.SetattrMode, e.flags, offset) {
			return offset, false, native.OK
		}
	}

	if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
		s.mu.Lock()
		s.nextCursor++
		next := s.nextCursor
		s.cursors[next] = out.NextContinuationToken
		s.mu.Unlock()
		return next, false, native.OK
	}
	return offset, true, native.OK
}

func (l *Library) readBuckets(s *session, offset uint64, fn native.ReaddirFunc) (uint64, bool, native.Status) {
	var out *s3.ListBucketsOutput
	err := l.call("ListBuckets", func(ctx context.Context) error {
		var err error
		out, err = s.api.ListBuckets(ctx, &s3.ListBucketsInput{})
		return err
	})
	if err != nil {
		return offset, false, statusOf(err)
	}

	total := uint64(len(out.Buckets))
	next := offset
	for i := offset; i < total; i++ {
		b := out.Buckets[i]
		var created int64
		if b.CreationDate != nil {
			created = b.CreationDate.Unix()
		}
		st := dirStat(defaultDirPerm, 0, 0, created)
		next = i + 1
		if !fn(aws.ToString(b.Name), &st, native.SetattrMode, native.LookupFlagDir, next) {
			return next, next >= total, native.OK
		}
	}
	return max(next, total), true, native.OK
}

// Mkdir implements native.Library. At the root it creates a bucket, below
// it a "name/" marker object carrying the requested attributes.
func (l *Library) Mkdir(fs native.FS, parent native.FH, name string, attrs native.Stat, mask native.SetattrMask) (native.FH, native.Status) {
	s, p, st := l.resolveDir(fs, parent)
	if st.Failed() {
		return 0, st
	}
	if !validName(name) {
		return 0, native.EINVAL
	}

	now := l.now().Unix()
	stat := dirStat(defaultDirPerm, 0, 0, now)
	if mask&native.SetattrMode != 0 {
		stat.Mode = native.ModeDir | attrs.Mode&native.ModePerm
	}
	if mask&native.SetattrUID != 0 {
		stat.UID = attrs.UID
	}
	if mask&native.SetattrGID != 0 {
		stat.GID = attrs.GID
	}

	if p.isRoot() {
		err := l.call("CreateBucket", func(ctx context.Context) error {
			in := &s3.CreateBucketInput{Bucket: aws.String(name)}
			if l.cfg.Region != "us-east-1" {
				in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
					LocationConstraint: s3types.BucketLocationConstraint(l.cfg.Region),
				}
			}
			_, err := s.api.CreateBucket(ctx, in)
			return err
		})
		if err != nil {
			return 0, statusOf(err)
		}
		return l.add(s, &handle{bucket: name, dir: true, stat: stat}), native.OK
	}

	bucket, key := p.child(name)
	if _, err := l.headObject(s, bucket, key); err == nil {
		return 0, native.EEXIST
	} else if st := statusOf(err); st != native.ENOENT {
		return 0, st
	}
	exists, _, st := l.dirExists(s, bucket, key)
	if st.Failed() {
		return 0, st
	}
	if exists {
		return 0, native.EEXIST
	}

	err := l.call("PutObject", func(ctx context.Context) error {
		_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key + "/"),
			Body:          bytes.NewReader(nil),
			ContentLength: aws.Int64(0),
			Metadata:      metadataOf(stat),
		})
		return err
	})
	if err != nil {
		return 0, statusOf(err)
	}
	return l.add(s, &handle{bucket: bucket, key: key, dir: true, stat: stat}), native.OK
}

func copySource(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return bucket + "/" + strings.Join(parts, "/")
}

// Rename implements native.Library as copy then delete. Buckets and
// directories cannot be renamed.
func (l *Library) Rename(fs native.FS, srcDir native.FH, srcName string, dstDir native.FH, dstName string) native.Status {
	s, src, st := l.resolveDir(fs, srcDir)
	if st.Failed() {
		return st
	}
	_, dst, st := l.resolveDir(fs, dstDir)
	if st.Failed() {
		return st
	}
	if !validName(srcName) || !validName(dstName) {
		return native.EINVAL
	}
	if src.isRoot() || dst.isRoot() {
		return native.ENOTSUP
	}

	srcBucket, srcKey := src.child(srcName)
	dstBucket, dstKey := dst.child(dstName)

	if _, err := l.headObject(s, srcBucket, srcKey); err != nil {
		st := statusOf(err)
		if st == native.ENOENT {
			if isDir, _, _ := l.dirExists(s, srcBucket, srcKey); isDir {
				return native.ENOTSUP
			}
		}
		return st
	}
	if isDir, _, st := l.dirExists(s, dstBucket, dstKey); st.Failed() {
		return st
	} else if isDir {
		return native.EISDIR
	}

	err := l.call("CopyObject", func(ctx context.Context) error {
		_, err := s.api.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:            aws.String(dstBucket),
			Key:               aws.String(dstKey),
			CopySource:        aws.String(copySource(srcBucket, srcKey)),
			MetadataDirective: s3types.MetadataDirectiveCopy,
		})
		return err
	})
	if err != nil {
		return statusOf(err)
	}
	err = l.call("DeleteObject", func(ctx context.Context) error {
		_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(srcBucket), Key: aws.String(srcKey)})
		return err
	})
	return statusOf(err)
}

// Unlink implements native.Library. Directories must be empty.
func (l *Library) Unlink(fs native.FS, parent native.FH, name string) native.Status {
	s, p, st := l.resolveDir(fs, parent)
	if st.Failed() {
		return st
	}
	if !validName(name) {
		return native.EINVAL
	}

	if p.isRoot() {
		err := l.call("DeleteBucket", func(ctx context.Context) error {
			_, err := s.api.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
			return err
		})
		return statusOf(err)
	}

	bucket, key := p.child(name)
	_, err := l.headObject(s, bucket, key)
	if err == nil {
		err = l.call("DeleteObject", func(ctx context.Context) error {
			_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
			return err
		})
		return statusOf(err)
	}
	if st := statusOf(err); st != native.ENOENT {
		return st
	}

	marker := key + "/"
	var out *s3.ListObjectsV2Output
	err = l.call("ListObjectsV2", func(ctx context.Context) error {
		var err error
		out, err = s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(bucket),
			Prefix:  aws.String(marker),
			MaxKeys: aws.Int32(2),
		})
		return err
	})
	if err != nil {
		return statusOf(err)
	}
	hasMarker := false
	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) == marker {
			hasMarker = true
			continue
		}
		return native.ENOTEMPTY
	}
	if !hasMarker {
		return native.ENOENT
	}
	err = l.call("DeleteObject", func(ctx context.Context) error {
		_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(marker)})
		return err
	})
	return statusOf(err)
}

var _ native.Library = (*Library)(nil)
