package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Matching(t *testing.T) {
	err := Validationf("size %d is out of range", 42)

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "size 42 is out of range", err.Error())
	assert.False(t, errors.Is(err, ErrorUnsupportedContentType))
}

func TestValidationError_CarriesSentinel(t *testing.T) {
	err := &ValidationError{Reason: "unsupported content type \"video/mp4\"", Err: ErrorUnsupportedContentType}

	assert.True(t, errors.Is(err, ErrorUnsupportedContentType))

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestValidationError_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("create upload: %w", Validationf("bad input"))

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "bad input", ve.Reason)
}

func TestUpstreamError_Error(t *testing.T) {
	withCode := &UpstreamError{Code: "NoSuchUpload", Message: "the upload is gone"}
	assert.Equal(t, "object store: NoSuchUpload: the upload is gone", withCode.Error())

	noCode := &UpstreamError{Message: "connection refused"}
	assert.Equal(t, "object store: connection refused", noCode.Error())
}

func TestUpstreamError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := &UpstreamError{Message: "request failed", Err: cause}
	assert.True(t, errors.Is(err, cause))
}
