package s3

import (
	"context"
	stderrors "errors"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"golang.org/x/sys/unix"

	"github.com/objectfs/rgwbridge/pkg/errors"
	"github.com/objectfs/rgwbridge/pkg/native"
)

func isErrorType[T error](err error) bool {
	var target T
	return stderrors.As(err, &target)
}

func apiCode(err error) string {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// transient reports whether a request failure is worth retrying.
func transient(err error) bool {
	switch apiCode(err) {
	case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout",
		"RequestTimeTooSkewed", "InternalError", "ServiceUnavailable":
		return true
	}
	var respErr *awshttp.ResponseError
	if stderrors.As(err, &respErr) && respErr.HTTPStatusCode() >= 500 {
		return true
	}
	return false
}

// classify marks transient failures retryable for pkg/retry.
func classify(operation string, err error) error {
	if err == nil || !transient(err) {
		return err
	}
	return errors.NewError(errors.ErrCodeBackendTransient, operation+" failed").
		WithComponent("s3").
		WithOperation(operation).
		WithCause(err)
}

// statusOf maps a backend failure to a native status.
func statusOf(err error) native.Status {
	switch {
	case err == nil:
		return native.OK
	case isErrorType[*s3types.NoSuchKey](err),
		isErrorType[*s3types.NoSuchBucket](err),
		isErrorType[*s3types.NotFound](err):
		return native.ENOENT
	case isErrorType[*s3types.BucketAlreadyExists](err),
		isErrorType[*s3types.BucketAlreadyOwnedByYou](err):
		return native.EEXIST
	case stderrors.Is(err, context.DeadlineExceeded):
		return native.Errno(unix.ETIMEDOUT)
	}

	switch apiCode(err) {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return native.ENOENT
	case "AccessDenied", "Forbidden":
		return native.EACCES
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return native.EPERM
	case "BucketNotEmpty":
		return native.ENOTEMPTY
	case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
		return native.EEXIST
	case "InvalidBucketName", "KeyTooLongError":
		return native.EINVAL
	}

	var respErr *awshttp.ResponseError
	if stderrors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case 403:
			return native.EACCES
		case 404:
			return native.ENOENT
		}
	}
	return native.EIO
}
