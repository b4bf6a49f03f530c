package provider

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aoitools/s2prep/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	// Layout of the Copernicus Dataspace eodata bucket
	EodataBucket      = "eodata"
	EodataEndpoint    = "https://eodata.dataspace.copernicus.eu"
	EodataKeyTemplate = "Sentinel-2/MSI/{PRODUCT_LEVEL}/{YEAR}/{MONTH}/{DAY}/{SCENE}.SAFE"
)

// S3ImageProvider implements ImageProvider for S3 Sentinel2 buckets
type S3ImageProvider struct {
	bucket          string
	keyTemplate     string
	region          string
	endpoint        string
	accessKeyID     string
	secretAccessKey string
	requesterPays   bool
}

// Name implements ImageProvider
func (ip *S3ImageProvider) Name() string {
	return "S3 (" + ip.bucket + ")"
}

// NewS3ImageProvider creates a new ImageProvider from an S3 bucket
// keyTemplate can contain several {IDENTIFIER} that will be replaced according to the information found in the scene name (see common.FormatBrackets)
// endpoint is left empty for AWS, set for S3-compatible object stores
func NewS3ImageProvider(bucket, keyTemplate, region, endpoint, accessKeyID, secretAccessKey string, requesterPays bool) *S3ImageProvider {
	return &S3ImageProvider{
		bucket:          bucket,
		keyTemplate:     keyTemplate,
		region:          region,
		endpoint:        endpoint,
		accessKeyID:     accessKeyID,
		secretAccessKey: secretAccessKey,
		requesterPays:   requesterPays,
	}
}

// NewEodataImageProvider creates a new ImageProvider from the Copernicus Dataspace eodata bucket
func NewEodataImageProvider(accessKeyID, secretAccessKey string) *S3ImageProvider {
	return NewS3ImageProvider(EodataBucket, EodataKeyTemplate, "default", EodataEndpoint, accessKeyID, secretAccessKey, false)
}

// prefix returns the object prefix of the scene in the bucket
// scene.Data.S3Path has priority over the key template
func (ip *S3ImageProvider) prefix(scene common.Scene) (string, error) {
	if p := scene.Data.S3Path; p != "" {
		p = strings.Trim(p, "/")
		p = strings.TrimPrefix(p, ip.bucket+"/")
		return p, nil
	}
	info, err := common.Info(scene.SourceID)
	if err != nil {
		return "", err
	}
	return common.FormatBrackets(ip.keyTemplate, info), nil
}

// Download implements ImageProvider
func (ip *S3ImageProvider) Download(ctx context.Context, scene common.Scene, localDir string) error {
	sceneName := scene.SourceID
	if !common.IsSentinel2(sceneName) {
		return fmt.Errorf("S3ImageProvider: not a Sentinel2 product: %s", sceneName)
	}

	prefix, err := ip.prefix(scene)
	if err != nil {
		return fmt.Errorf("S3ImageProvider: %w", err)
	}
	prefix = strings.TrimRight(prefix, "/") + "/"

	opts := []func(*config.LoadOptions) error{}
	if ip.region != "" {
		opts = append(opts, config.WithRegion(ip.region))
	}
	if ip.accessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ip.accessKeyID, ip.secretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("S3ImageProvider config.LoadDefaultConfig: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ip.endpoint != "" {
			o.BaseEndpoint = aws.String(ip.endpoint)
			o.UsePathStyle = true
		}
	})

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = 10 * 1024 * 1024 // 10MB per part
	})

	var payer types.RequestPayer
	if ip.requesterPays {
		payer = types.RequestPayerRequester
	}

	paginator := s3.NewListObjectsV2Paginator(client,
		&s3.ListObjectsV2Input{
			Bucket:       aws.String(ip.bucket),
			Prefix:       aws.String(prefix),
			RequestPayer: payer,
		},
		func(o *s3.ListObjectsV2PaginatorOptions) {
			o.Limit = 1000
		},
	)

	// create product directory
	productDir := path.Join(localDir, path.Base(strings.TrimRight(prefix, "/")))
	if err := os.MkdirAll(productDir, 0766); err != nil {
		return fmt.Errorf("S3ImageProvider os.MkdirAll: %w", err)
	}

	nbFiles := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("S3ImageProvider paginator.NextPage: %w", err)
		}

		for _, object := range page.Contents {
			objectKey := aws.ToString(object.Key)
			relPath := strings.TrimPrefix(objectKey, prefix)
			if relPath == "" || strings.HasSuffix(relPath, "/") {
				continue
			}
			localFilePath := path.Join(productDir, relPath)
			if err := os.MkdirAll(filepath.Dir(localFilePath), 0766); err != nil {
				return fmt.Errorf("S3ImageProvider os.MkdirAll: %w", err)
			}

			if err := ip.downloadObjectToFile(ctx, downloader, objectKey, payer, localFilePath); err != nil {
				return fmt.Errorf("S3ImageProvider.%w", err)
			}
			nbFiles++
		}
	}
	if nbFiles == 0 {
		return ErrProductNotFound{ip.bucket + "/" + prefix}
	}

	return nil
}

func (ip *S3ImageProvider) downloadObjectToFile(ctx context.Context, downloader *manager.Downloader, objectKey string, payer types.RequestPayer, localPath string) error {
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("downloadObjectToFile: failed to create file %s: %w", localPath, err)
	}
	defer file.Close()

	_, err = downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket:       aws.String(ip.bucket),
		Key:          aws.String(objectKey),
		RequestPayer: payer,
	})
	if err != nil {
		return fmt.Errorf("downloadObjectToFile: failed to download object %s:%s: %w",
			ip.bucket, objectKey, err)
	}

	return nil
}
