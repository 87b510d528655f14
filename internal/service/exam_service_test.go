package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKeyFromURL(t *testing.T) {
	key, err := objectKeyFromURL("https://portal-uploads.s3.eu-central-1.amazonaws.com/submissions/9f1c/42/ab3f.pdf")
	require.NoError(t, err)
	assert.Equal(t, "submissions/9f1c/42/ab3f.pdf", key)
}

func TestObjectKeyFromURLRejectsBareHost(t *testing.T) {
	_, err := objectKeyFromURL("https://portal-uploads.s3.eu-central-1.amazonaws.com/")
	require.Error(t, err)

	_, err = objectKeyFromURL("https://portal-uploads.s3.eu-central-1.amazonaws.com")
	require.Error(t, err)
}
