package main

import (
	"testing"

	"github.com/bitrise-io/go-resumable/config"
	"github.com/bitrise-io/go-resumable/resumable/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	// Given
	envs := mapEnv{
		"S3UPLOAD_BUCKET":         "artifacts",
		"S3UPLOAD_ENDPOINT":       "http://localhost:9000",
		"S3UPLOAD_USE_PATH_STYLE": "yes",
		"AWS_ACCESS_KEY_ID":       "key-id",
		"AWS_SECRET_ACCESS_KEY":   "secret",
	}

	// When
	s, err := loadSettings(envs)

	// Then
	require.NoError(t, err)
	assert.Equal(t, network.S3Params{
		Bucket:          "artifacts",
		Region:          defaultRegion,
		AccessKeyID:     "key-id",
		SecretAccessKey: "secret",
		Endpoint:        "http://localhost:9000",
		UsePathStyle:    true,
	}, s.s3Params())
	assert.Equal(t, "*****", s.SecretAccessKey.String())
}

func TestLoadSettings_MissingBucket(t *testing.T) {
	_, err := loadSettings(mapEnv{"S3UPLOAD_REGION": "eu-west-1"})

	assert.ErrorIs(t, err, config.ErrRequired)
}
