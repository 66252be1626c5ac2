package cache

import (
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to errors returned by this package.
const (
	TextCodeUnavailable = "CACHE_UNAVAILABLE"
	TextCodeUnsupported = "UNSUPPORTED_OPERATION"
	TextCodeInvalidKey  = "INVALID_KEY"
	TextCodeInvalidTTL  = "INVALID_TTL"
	TextCodeCodec       = "CODEC_FAILURE"
)

func unavailableError(op, key string, source error) error {
	meta := map[string]any{"op": op, "key": key}
	if source == nil {
		return goerrors.New("cache backend unavailable", goerrors.CategoryExternal).
			WithTextCode(TextCodeUnavailable).
			WithMetadata(meta)
	}
	return goerrors.Wrap(source, goerrors.CategoryExternal, "cache backend unavailable").
		WithTextCode(TextCodeUnavailable).
		WithMetadata(meta)
}

func unsupportedError(op, backend string) error {
	return goerrors.New(
		fmt.Sprintf("%s is not supported by the %s backend", op, backend),
		goerrors.CategoryOperation,
	).WithTextCode(TextCodeUnsupported).
		WithMetadata(map[string]any{"op": op, "backend": backend})
}

func invalidKeyError(component, value, reason string) error {
	return goerrors.New("invalid cache key: "+reason, goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidKey).
		WithMetadata(map[string]any{"component": component, "value": value})
}

func invalidTTLError(key string, ttl time.Duration) error {
	return goerrors.New("cache ttl must be positive", goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidTTL).
		WithMetadata(map[string]any{"key": key, "ttl": ttl.String()})
}

// NewCodecError wraps a failure to encode or decode the value stored under key.
func NewCodecError(key string, source error) error {
	return goerrors.Wrap(source, goerrors.CategoryInternal, "cache value could not be encoded").
		WithTextCode(TextCodeCodec).
		WithMetadata(map[string]any{"key": key})
}

// IsUnavailable reports whether err signals a backend that could not serve a write.
func IsUnavailable(err error) bool { return hasTextCode(err, TextCodeUnavailable) }

// IsUnsupported reports whether err signals an operation the backend cannot perform.
func IsUnsupported(err error) bool { return hasTextCode(err, TextCodeUnsupported) }

// IsInvalidKey reports whether err was caused by a malformed key component.
func IsInvalidKey(err error) bool { return hasTextCode(err, TextCodeInvalidKey) }

// IsInvalidTTL reports whether err was caused by a non-positive ttl.
func IsInvalidTTL(err error) bool { return hasTextCode(err, TextCodeInvalidTTL) }

// IsCodecFailure reports whether err was raised while encoding a value.
func IsCodecFailure(err error) bool { return hasTextCode(err, TextCodeCodec) }

func hasTextCode(err error, code string) bool {
	var target *goerrors.Error
	if !goerrors.As(err, &target) {
		return false
	}
	return target.TextCode == code
}
