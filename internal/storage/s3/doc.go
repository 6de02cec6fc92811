/*
Package s3 implements the native library contract on top of Amazon S3 and
S3-compatible gateways, so the bridge can run against a plain object store
where librgw is not available.

# Namespace

The mounted tree follows the RGW file layout:

	/                   the account: one directory per bucket
	/<bucket>           a bucket
	/<bucket>/a/b/c     the object "a/b/c"; "a" and "a/b" are directories

A directory below a bucket exists when either a marker object "a/b/" exists
or some object carries the "a/b/" prefix. Mkdir writes a marker so empty
directories survive; Unlink of a directory removes the marker and fails with
ENOTEMPTY while other objects remain under the prefix.

POSIX attributes set through Mkdir or file creation are stored as object
metadata ("mode" in octal, "uid" and "gid" in decimal). Objects written by
other clients report 0644 files and 0755 directories owned by root.

# Paging

Readdir issues one ListObjectsV2 request per call with the configured page
size. The returned cursor is a small integer naming the continuation token of
the next page, kept per session until that page is requested. At the root
the cursor is the index into the bucket listing.

# Writes

Writes are buffered per open handle and uploaded when the handle is closed
or the session is unmounted. Existing content is fetched on the first write
so partial overwrites keep the rest of the object. When enabled, uploads go
through the CargoShip transporter and fall back to PutObject on failure.

# Errors and retries

SDK failures are mapped to negative errno statuses (NoSuchKey to ENOENT,
AccessDenied to EACCES and so on). Throttling and 5xx responses are
classified as BACKEND_TRANSIENT and retried with exponential backoff through
pkg/retry before a status is returned.

With circuit_breaker enabled, a run of EIO or ETIMEDOUT outcomes opens the
breaker and later requests fail with EIO without reaching the store until
the timeout passes.

# Configuration

	backend:
	  type: s3
	  s3:
	    region: us-west-2
	    endpoint: http://rgw.local:7480
	    force_path_style: true
	    page_size: 1000
	    storage_class: STANDARD
	    enable_cargoship_optimization: true
	    concurrency: 8
	    retry:
	      max_attempts: 4
	      initial_delay: 100ms
	    circuit_breaker:
	      enabled: true
	      failure_threshold: 5
	      timeout: 30s
*/
package s3
