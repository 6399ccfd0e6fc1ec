package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"myvc/internal/config"
	"myvc/internal/vc"
)

// versionMetadataKey is the S3 user metadata key carrying a metadata item's version.
const versionMetadataKey = "myvc-version"

const s3Timeout = 2 * time.Minute

// S3Vault stores content and metadata as objects in an S3 bucket:
//
//	<prefix>/content/<checksum>
//	<prefix>/metadata/<projectID>/<name>.json   (version in object metadata)
type S3Vault struct {
	name       string
	bucket     string
	prefix     string
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewS3Vault builds a vault from the s3_* fields of cfg. S3Endpoint selects
// an S3-compatible service and enables path-style addressing.
func NewS3Vault(ctx context.Context, cfg config.VaultConfig) (*S3Vault, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Vault{
		name:       cfg.Name,
		bucket:     cfg.S3Bucket,
		prefix:     cfg.S3Prefix,
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}, nil
}

func (v *S3Vault) Name() string { return v.name }

func (v *S3Vault) contentKey(checksum string) string {
	return path.Join(v.prefix, "content", checksum)
}

func (v *S3Vault) metadataKey(projectID, name string) string {
	return path.Join(v.prefix, "metadata", projectID, name+".json")
}

// PutContent uploads content unless an object with the checksum exists.
func (v *S3Vault) PutContent(checksum string, r io.Reader, size int64) error {
	if err := validName(checksum); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s3Timeout)
	defer cancel()

	key := v.contentKey(checksum)
	if _, err := v.head(ctx, key); err == nil {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	return v.put(ctx, key, r, size, nil)
}

func (v *S3Vault) GetContent(checksum string, w io.Writer) error {
	if err := validName(checksum); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s3Timeout)
	defer cancel()
	return v.get(ctx, v.contentKey(checksum), w)
}

func (v *S3Vault) PutMetadata(projectID, name string, r io.Reader, size int64, version int64) error {
	if err := validName(projectID); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s3Timeout)
	defer cancel()
	return v.put(ctx, v.metadataKey(projectID, name), r, size, map[string]string{
		versionMetadataKey: strconv.FormatInt(version, 10),
	})
}

func (v *S3Vault) GetMetadata(projectID, name string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), s3Timeout)
	defer cancel()
	return v.get(ctx, v.metadataKey(projectID, name), w)
}

// GetMetadataVersion reads the version from the object's user metadata, or
// returns 0 when the object does not exist.
func (v *S3Vault) GetMetadataVersion(projectID, name string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s3Timeout)
	defer cancel()

	out, err := v.head(ctx, v.metadataKey(projectID, name))
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	raw, ok := out.Metadata[versionMetadataKey]
	if !ok {
		return 0, nil
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)}); err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

func (v *S3Vault) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	out, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		var nsk *types.NoSuchKey
		if errors.As(err, &nf) || errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("s3 head %s: %w", key, err)
	}
	return out, nil
}

func (v *S3Vault) put(ctx context.Context, key string, r io.Reader, size int64, meta map[string]string) error {
	counted := &countingReader{r: r}
	_, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(v.bucket),
		Key:      aws.String(key),
		Body:     counted,
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", key, err)
	}
	if counted.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counted.n)
	}
	return nil
}

func (v *S3Vault) get(ctx context.Context, key string, w io.Writer) error {
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := v.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	}); err != nil {
		var nsk *types.NoSuchKey
		var nf *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &nf) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("s3 download %s: %w", key, err)
	}
	if _, err := io.Copy(w, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ vc.Vault = (*S3Vault)(nil)
