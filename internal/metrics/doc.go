/*
Package metrics exports bridge operation metrics to Prometheus.

A Collector is passed to the bridge as its Recorder. Each call reports the
operation name, its duration, bytes moved and the returned error, which
feeds these series (prefixed with the configured namespace):

	operations_total{operation,status}        status is "success" or "error"
	operation_duration_seconds{operation}     histogram
	bytes_total{operation}                    read and write payload bytes
	errors_total{operation,code}              bridge error code, e.g. NATIVE_ERROR
	native_errors_total{operation,errno}      negative errno from the native call

Native libraries with their own counters, such as the S3 library, are
exported through RegisterGaugeFunc.

Start serves the registry over HTTP:

	/metrics            Prometheus exposition (path configurable)
	/health             liveness probe
	/debug/operations   JSON per-operation summary with min/max/avg latency

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9102,
		Namespace: "rgwbridge",
	})
	if err != nil {
		return err
	}
	b, err := bridge.New(lib, bridge.WithRecorder(collector))
*/
package metrics
