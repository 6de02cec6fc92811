/*
Package adapter wires a configuration into a mounted bridge session.

New validates the configuration, builds the logger and selects the native
library named by backend.type:

	memory   in-process library, for tests and local experiments
	s3       S3 API (AWS or an RGW S3 endpoint), optional CargoShip uploads
	librgw   Ceph librgw through cgo, needs -tags librgw

Start creates the bridge (initializing the library's runtime once per
process), mounts the configured identity and starts the metrics server.
Stop unmounts and shuts everything down.

# Paths

The path helpers (Stat, List, ReadFile, WriteFile, Mkdir, Rename, Remove)
walk one Lookup per component from the mount root and release every
intermediate handle. Three path forms are accepted:

	/bucket/dir/file           absolute, first component is the bucket
	rgw://bucket/dir/file      absolute, bucket in the authority
	dir/file                   relative to mount.bucket when set

".." is rejected.

# Example

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/rgwbridge/config.yaml"); err != nil {
		return err
	}
	a, err := adapter.New(cfg)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop(ctx)

	for entry, err := range a.List("/warehouse") {
		if err != nil {
			return err
		}
		fmt.Println(entry.Name, entry.Attributes.Size)
	}
*/
package adapter
