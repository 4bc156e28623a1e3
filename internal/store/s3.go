// internal/store/s3.go
package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"docpipe/internal/config"
	"docpipe/internal/metrics"
	"docpipe/internal/staging"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// ArtifactContentType 은 업로드되는 산출물의 Content-Type.
const ArtifactContentType = "text/markdown; charset=utf-8"

// API 는 이 패키지가 사용하는 S3 호출만 모은 인터페이스.
// *s3.Client 가 그대로 만족하며, 테스트에서는 fake 로 대체한다.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client 는 오브젝트 저장소 접근을 담당하는 구성 요소이다.
//   - Fetch: 오브젝트를 staging 경로로 다운로드
//   - Store: staging 경로의 산출물을 지정한 키로 업로드
//
// 두 연산 모두 1회만 시도한다. 재시도는 추론 호출에만 존재한다.
type Client struct {
	api     API
	layout  staging.Layout
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New 는 주입된 S3 API 로 Client 를 만든다.
func New(api API, layout staging.Layout, m *metrics.Metrics, log zerolog.Logger) *Client {
	if m == nil {
		m = metrics.New()
	}
	return &Client{
		api:     api,
		layout:  layout,
		metrics: m,
		log:     log,
	}
}

// NewS3Client 는 AWS 지역(region)과 endpoint 등 기본 옵션을 로드한다.
//
// SDK retry 는 1회(=재시도 없음)로 고정한다.
// 저장소 접근 실패는 재시도 없이 곧바로 run 실패로 올라가야 하고,
// 재전송 여부는 upstream 큐의 redelivery 정책이 결정한다.
func NewS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	var opts []func(*awsCfgLib.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsCfgLib.WithRegion(cfg.AWSRegion))
	}

	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 1
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return client, nil
}

// Layout 은 이 Client 가 사용하는 staging 매핑.
func (c *Client) Layout() staging.Layout {
	return c.layout
}

// Fetch
// -----
// bucket/key 오브젝트 전체를 <staging-root>/<key> 로 다운로드하고 그 경로를 반환한다.
//   - 상위 디렉토리는 없으면 만든다 (idempotent)
//   - staging.WriteAtomic 으로 받으므로 실패 시 반쪽짜리 파일이 남지 않는다
func (c *Client) Fetch(ctx context.Context, bucket, key string) (string, error) {
	localPath, err := c.layout.LocalPath(key)
	if err != nil {
		return "", &Error{Kind: staging.ErrInvalidKey, Op: "fetch", Bucket: bucket, Key: key, Err: err}
	}

	if err := c.layout.EnsureDir(localPath); err != nil {
		return "", fmt.Errorf("create staging dir for %s: %w", localPath, err)
	}

	start := time.Now()

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		c.metrics.Inc(&c.metrics.S3GetErrorsTotal)
		return "", &Error{Kind: classifyGet(err), Op: "fetch", Bucket: bucket, Key: key, Err: err}
	}
	defer out.Body.Close()

	n, err := staging.WriteAtomic(localPath, out.Body)
	if err != nil {
		c.metrics.Inc(&c.metrics.S3GetErrorsTotal)
		return "", &Error{Kind: ErrStoreUnavailable, Op: "fetch", Bucket: bucket, Key: key, Err: err}
	}

	c.log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Str("path", localPath).
		Int64("bytes", n).
		Dur("elapsed", time.Since(start)).
		Msg("object fetched")

	return localPath, nil
}

// Store
// -----
// localPath 의 산출물을 bucket/key 로 업로드한다.
// key 는 호출자가 소스 키에서 파생한 값(staging.ArtifactKey)이다.
// localPath 는 staging root 하위여야 한다.
func (c *Client) Store(ctx context.Context, localPath, bucket, key string) error {
	if err := c.layout.Contains(localPath); err != nil {
		return fmt.Errorf("store %s: %w", localPath, err)
	}
	if key == "" {
		return fmt.Errorf("store %s: %w: empty key", localPath, staging.ErrInvalidKey)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open artifact %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact %s: %w", localPath, err)
	}

	start := time.Now()

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(ArtifactContentType),
	})
	if err != nil {
		c.metrics.Inc(&c.metrics.S3PutErrorsTotal)
		return &Error{Kind: ErrStoreUnavailable, Op: "store", Bucket: bucket, Key: key, Err: err}
	}

	c.log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int64("bytes", info.Size()).
		Dur("elapsed", time.Since(start)).
		Msg("artifact stored")

	return nil
}
