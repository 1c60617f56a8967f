package awserr

import (
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "InvalidS3ObjectException", Message: "unable to get object", Fault: smithy.FaultClient}

	assert.Equal(t, "InvalidS3ObjectException", Code(apiErr))
	assert.Equal(t, "InvalidS3ObjectException", Code(Wrap("rekognition", "DetectLabels", apiErr)))
	assert.Equal(t, "", Code(errors.New("plain")))
	assert.True(t, IsClientFault(apiErr))
	assert.False(t, IsClientFault(errors.New("plain")))
}

func TestIsThrottle(t *testing.T) {
	assert.True(t, IsThrottle(&smithy.GenericAPIError{Code: "ThrottlingException"}))
	assert.False(t, IsThrottle(&smithy.GenericAPIError{Code: "AccessDeniedException"}))
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("lex", "RecognizeText", nil))

	base := &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "no bot"}
	err := Wrap("lex", "RecognizeText", base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lex RecognizeText failed (ResourceNotFoundException)")
	assert.ErrorIs(t, err, base)

	assert.Equal(t, "s3 HeadObject failed: boom", Wrap("s3", "HeadObject", errors.New("boom")).Error())
}
