package archive

import (
	"testing"

	appcfg "github.com/querymind/core/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeObjectKey(t *testing.T) {
	assert.Equal(t, "a/b/c.json", normalizeObjectKey("/a//b\\c.json"))
	assert.Equal(t, "x", normalizeObjectKey("  /x "))
	assert.Equal(t, "", normalizeObjectKey("  "))
}

func TestJoinURLPath(t *testing.T) {
	assert.Equal(t, "/bucket/a/b", joinURLPath("", "bucket", "a/b"))
	assert.Equal(t, "/base/bucket", joinURLPath("/base/", "bucket"))
	assert.Equal(t, "/", joinURLPath("", ""))
}

func TestBuildTargetPathStyle(t *testing.T) {
	u, err := newS3Uploader(appcfg.S3Options{
		Endpoint:        "https://minio.internal:9000",
		Bucket:          "ledger",
		Region:          "us-east-1",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)

	requestURL, canonicalURI, host, err := u.buildTarget("2026-01/events.json")
	require.NoError(t, err)
	assert.Equal(t, "https://minio.internal:9000/ledger/2026-01/events.json", requestURL)
	assert.Equal(t, "/ledger/2026-01/events.json", canonicalURI)
	assert.Equal(t, "minio.internal:9000", host)
}

func TestBuildTargetVirtualHost(t *testing.T) {
	u, err := newS3Uploader(appcfg.S3Options{
		Bucket:          "ledger",
		Region:          "eu-west-1",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)

	requestURL, canonicalURI, host, err := u.buildTarget("events.json")
	require.NoError(t, err)
	assert.Equal(t, "https://ledger.s3.eu-west-1.amazonaws.com/events.json", requestURL)
	assert.Equal(t, "/events.json", canonicalURI)
	assert.Equal(t, "ledger.s3.eu-west-1.amazonaws.com", host)
}

func TestNewS3UploaderValidation(t *testing.T) {
	_, err := newS3Uploader(appcfg.S3Options{Bucket: "b"})
	assert.Error(t, err)
}
