package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("creates error with all defaults", func(t *testing.T) {
		err := NewError(ErrCodeInvalidConfig, "configuration is invalid")
		if err == nil {
			t.Fatal("NewError returned nil")
		}
		if err.Code != ErrCodeInvalidConfig {
			t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidConfig)
		}
		if err.Category != CategoryConfiguration {
			t.Errorf("Category = %v, want %v", err.Category, CategoryConfiguration)
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
		if err.Errno != 0 {
			t.Errorf("Errno = %d, want 0", err.Errno)
		}
	})

	t.Run("only transient backend errors are retryable", func(t *testing.T) {
		if !NewError(ErrCodeBackendTransient, "slow down").Retryable {
			t.Error("BackendTransient should be retryable by default")
		}
		if NewError(ErrCodeNativeError, "nope").Retryable {
			t.Error("NativeError should not be retryable by default")
		}
	})
}

func TestGetCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code ErrorCode
		want ErrorCategory
	}{
		{ErrCodeInvalidConfig, CategoryConfiguration},
		{ErrCodeConfigLoad, CategoryConfiguration},
		{ErrCodeInitializationFailed, CategoryLifecycle},
		{ErrCodeInvalidState, CategoryLifecycle},
		{ErrCodeNativeError, CategoryNative},
		{ErrCodeShortWriteStall, CategoryIO},
		{ErrCodeInvalidArgument, CategoryIO},
		{ErrCodeBackendTransient, CategoryBackend},
		{ErrCodeInternalError, CategoryInternal},
	}

	for _, tt := range tests {
		if got := GetCategory(tt.code); got != tt.want {
			t.Errorf("GetCategory(%v) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestNativeErrorFormatting(t *testing.T) {
	t.Parallel()

	err := NewNativeError("rgw_read", -int32(syscall.ENOENT)).
		WithComponent("bridge").
		WithParam("fh", "0x2a").
		WithParam("pos", 128)

	msg := err.Error()
	if !strings.HasPrefix(msg, "[bridge:rgw_read] NATIVE_ERROR: ") {
		t.Errorf("unexpected prefix: %q", msg)
	}
	if !strings.Contains(msg, syscall.ENOENT.Error()+";fh=0x2a;pos=128") {
		t.Errorf("diagnostic missing from %q", msg)
	}
	if !strings.HasSuffix(msg, "(errcode -2)") {
		t.Errorf("errcode missing from %q", msg)
	}

	if v, ok := err.Param("pos"); !ok || v != "128" {
		t.Errorf("Param(pos) = %q, %v", v, ok)
	}
	if _, ok := err.Param("missing"); ok {
		t.Error("Param(missing) should not be found")
	}
}

func TestErrorIs(t *testing.T) {
	t.Parallel()

	notFound := NewNativeError("rgw_lookup", -int32(syscall.ENOENT))
	wrapped := fmt.Errorf("walking path: %w", notFound)

	if !errors.Is(wrapped, syscall.ENOENT) {
		t.Error("wrapped native error should match ENOENT")
	}
	if errors.Is(wrapped, syscall.EEXIST) {
		t.Error("wrapped native error should not match EEXIST")
	}
	if !errors.Is(wrapped, NewError(ErrCodeNativeError, "")) {
		t.Error("errors.Is should match by code")
	}
	if errors.Is(NewError(ErrCodeInvalidState, "x"), syscall.ENOENT) {
		t.Error("error without errno should not match any errno")
	}

	if !IsNotExist(wrapped) || IsExist(wrapped) || IsNotEmpty(wrapped) {
		t.Error("helper predicates disagree with ENOENT")
	}
	if !IsExist(NewNativeError("rgw_mkdir", -17)) {
		t.Error("-17 should be EEXIST")
	}
	if !IsNotEmpty(NewNativeError("rgw_unlink", -39)) {
		t.Error("-39 should be ENOTEMPTY")
	}
}

func TestErrnoOfAndHasCode(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("ctx: %w", NewNativeError("rgw_write", -5))
	code, ok := ErrnoOf(err)
	if !ok || code != -5 {
		t.Errorf("ErrnoOf = %d, %v; want -5, true", code, ok)
	}
	if _, ok := ErrnoOf(errors.New("plain")); ok {
		t.Error("plain error has no errno")
	}
	if !HasCode(err, ErrCodeNativeError) {
		t.Error("HasCode should find NATIVE_ERROR")
	}
	if HasCode(err, ErrCodeShortWriteStall) {
		t.Error("HasCode matched the wrong code")
	}
}

func TestUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: refused")
	err := NewError(ErrCodeBackendTransient, "list failed").WithCause(cause)
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
}

func TestStatusText(t *testing.T) {
	t.Parallel()

	if got := StatusText(0); got != "success" {
		t.Errorf("StatusText(0) = %q", got)
	}
	if got := StatusText(-int32(syscall.EACCES)); got != syscall.EACCES.Error() {
		t.Errorf("StatusText(-EACCES) = %q", got)
	}
	if got := StatusText(7); !strings.Contains(got, "7") {
		t.Errorf("StatusText(7) = %q", got)
	}
}

func TestStringAndJSON(t *testing.T) {
	t.Parallel()

	err := NewNativeError("rgw_mkdir", -17).WithComponent("bridge").WithParam("name", "dir")

	s := err.String()
	for _, want := range []string{"Code=NATIVE_ERROR", "Errno=-17", "Operation=rgw_mkdir", "name=dir"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() missing %q: %s", want, s)
		}
	}

	var decoded map[string]any
	if jerr := json.Unmarshal([]byte(err.JSON()), &decoded); jerr != nil {
		t.Fatalf("JSON() produced invalid JSON: %v", jerr)
	}
	if decoded["code"] != "NATIVE_ERROR" {
		t.Errorf("code = %v", decoded["code"])
	}
	if decoded["errno"] != float64(-17) {
		t.Errorf("errno = %v", decoded["errno"])
	}
}
