package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"
)

// API is the subset of the S3 client used by the library.
type API interface {
	ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, in *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// ClientFactory builds a client authenticated with a mount's keys.
type ClientFactory func(ctx context.Context, cfg *Config, accessKey, secretKey string) (API, error)

// NewClient is the default ClientFactory. It builds an SDK client with
// static credentials so every mount speaks as its own identity.
func NewClient(ctx context.Context, cfg *Config, accessKey, secretKey string) (API, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(cfg.MaxRetries),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// newTransporter returns a CargoShip transporter for bucket when the client
// is a real SDK client and the optimization is enabled.
func newTransporter(api API, cfg *Config, bucket string) *cargoships3.Transporter {
	client, ok := api.(*s3.Client)
	if !ok || !cfg.EnableCargoShipOptimization {
		return nil
	}
	return cargoships3.NewTransporter(client, awsconfig.S3Config{
		Bucket:             bucket,
		StorageClass:       cargoStorageClass(cfg.StorageClass),
		MultipartThreshold: 32 * 1024 * 1024,
		MultipartChunkSize: 16 * 1024 * 1024,
		Concurrency:        cfg.Concurrency,
	})
}

func storageClass(tier string) s3types.StorageClass {
	switch tier {
	case TierStandardIA:
		return s3types.StorageClassStandardIa
	case TierOneZoneIA:
		return s3types.StorageClassOnezoneIa
	case TierGlacier:
		return s3types.StorageClassGlacier
	case TierDeepArchive:
		return s3types.StorageClassDeepArchive
	case TierIntelligent:
		return s3types.StorageClassIntelligentTiering
	default:
		return s3types.StorageClassStandard
	}
}

func cargoStorageClass(tier string) awsconfig.StorageClass {
	switch tier {
	case TierStandardIA:
		return awsconfig.StorageClassStandardIA
	case TierOneZoneIA:
		return awsconfig.StorageClassOneZoneIA
	case TierGlacier:
		return awsconfig.StorageClassGlacier
	case TierDeepArchive:
		return awsconfig.StorageClassDeepArchive
	case TierIntelligent:
		return awsconfig.StorageClassIntelligentTiering
	default:
		return awsconfig.StorageClassStandard
	}
}
