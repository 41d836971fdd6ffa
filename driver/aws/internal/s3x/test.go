package s3x

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/subaru-pfs/seqno/internal/testx"
)

// MinIOEndpointEnv is the environment variable that holds the endpoint of the
// MinIO server used by S3 tests.
const MinIOEndpointEnv = "SEQNO_TEST_MINIO_ENDPOINT"

// NewTestClient returns a new S3 client for use in a test.
//
// The test is skipped unless [MinIOEndpointEnv] is set.
func NewTestClient(t testing.TB) *s3.Client {
	t.Helper()

	endpoint := testx.Getenv(MinIOEndpointEnv, "")
	if endpoint == "" {
		t.Skipf("skipping S3 test, set %s to enable", MinIOEndpointEnv)
	}

	accessKey := testx.Getenv("SEQNO_TEST_MINIO_ACCESS_KEY", "minio")
	secretKey := testx.Getenv("SEQNO_TEST_MINIO_SECRET_KEY", "password")

	cfg, err := config.LoadDefaultConfig(
		context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
		config.WithRetryer(
			func() aws.Retryer {
				return aws.NopRetryer{}
			},
		),
	)
	if err != nil {
		t.Fatal(err)
	}

	return s3.NewFromConfig(
		cfg,
		func(opts *s3.Options) {
			opts.BaseEndpoint = aws.String(endpoint)
			opts.UsePathStyle = true
		},
	)
}
