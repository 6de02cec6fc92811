// Rgwctl runs filesystem operations against an object store through the
// bridge: list, stat, read, write, create directories, rename and remove.
//
// Every invocation mounts one session from the configuration, runs one
// command and unmounts:
//
//	rgwctl --config /etc/rgwbridge/config.yaml ls -l /warehouse
//	rgwctl -D fs.ceph.rgw.userid=testid -D fs.ceph.rgw.access.key=AK \
//	    -D fs.ceph.rgw.secret.key=SK --backend s3 put report.csv rgw://warehouse/report.csv
//	rgwctl --bucket warehouse mkdir -p 2024/q1
//	rgwctl rm -r /warehouse/tmp
//
// Configuration is read from the defaults, then the --config file, then -D
// properties, then RGWBRIDGE_* environment variables, then the remaining
// flags. "rgwctl config" prints the result without mounting, and
// "rgwctl config FILE" saves it.
package main
