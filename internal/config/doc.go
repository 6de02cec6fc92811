/*
Package config loads and validates the bridge configuration.

Sources are applied in increasing precedence: compiled-in defaults
(NewDefault), a YAML file (LoadFromFile), fs.ceph.rgw.* properties
(ApplyProperties) and RGWBRIDGE_* environment variables (LoadFromEnv).
Validate runs go-playground/validator struct tags and then the cross-field
rules, returning a CONFIG_VALIDATION error whose "field" param names the
offending key.

# Example

	global:
	  log_level: INFO
	  log_format: text
	  log_file: /var/log/rgwbridge.log
	mount:
	  user_id: testid
	  access_key: AKIAEXAMPLE
	  secret_key: secret
	  bucket: warehouse
	bridge:
	  time_unit: milliseconds
	  ownership:
	    policy: root
	  io_buffer_size: 16MB
	backend:
	  type: librgw
	  librgw:
	    args: ["--name", "client.rgw"]
	monitoring:
	  metrics:
	    enabled: true
	    port: 9102

# Environment

	RGWBRIDGE_LOG_LEVEL, RGWBRIDGE_LOG_FILE, RGWBRIDGE_LOG_FORMAT
	RGWBRIDGE_USER_ID, RGWBRIDGE_ACCESS_KEY, RGWBRIDGE_SECRET_KEY, RGWBRIDGE_BUCKET
	RGWBRIDGE_TIME_UNIT, RGWBRIDGE_OWNERSHIP, RGWBRIDGE_IO_BUFFER_SIZE
	RGWBRIDGE_BACKEND, RGWBRIDGE_LIBRGW_ARGS
	RGWBRIDGE_S3_REGION, RGWBRIDGE_S3_ENDPOINT, RGWBRIDGE_S3_FORCE_PATH_STYLE,
	RGWBRIDGE_S3_STORAGE_CLASS, RGWBRIDGE_S3_CARGOSHIP
	RGWBRIDGE_METRICS_ENABLED, RGWBRIDGE_METRICS_PORT, RGWBRIDGE_METRICS_NAMESPACE

Saved files are written with mode 0600 because they may carry credentials.
*/
package config
