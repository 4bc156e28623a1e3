package deadletter

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"docpipe/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const (
	contentType = "application/gzip"

	defaultAttempts = 3
	uploadTimeout   = 5 * time.Second
	initialBackoff  = 200 * time.Millisecond
	maxBackoff      = 2 * time.Second
)

// PutAPI 는 리포트 업로드에 쓰는 S3 호출. *s3.Client 가 만족한다.
type PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Reporter 는 실패 레코드를 bucket 의 prefix 아래에 업로드한다.
type Reporter struct {
	api        PutAPI
	bucket     string
	prefix     string
	instanceID string
	attempts   int

	metrics *metrics.Metrics
	log     zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewReporter 는 Reporter 를 만든다. prefix 가 비어 있으면 nil 을 반환하며,
// nil Reporter 의 Report 는 아무것도 하지 않는다.
func NewReporter(api PutAPI, bucket, prefix, instanceID string, m *metrics.Metrics, log zerolog.Logger) *Reporter {
	if prefix == "" {
		return nil
	}
	if m == nil {
		m = metrics.New()
	}
	return &Reporter{
		api:        api,
		bucket:     bucket,
		prefix:     prefix,
		instanceID: instanceID,
		attempts:   defaultAttempts,
		metrics:    m,
		log:        log,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Report 는 rec 를 gzip JSONL 로 인코딩해 업로드하고, 업로드된 키를 반환한다.
func (r *Reporter) Report(ctx context.Context, rec Record) (string, error) {
	if r == nil {
		return "", nil
	}

	now := r.now()
	if rec.FailedAt.IsZero() {
		rec.FailedAt = now.UTC()
	}
	if rec.Instance == "" {
		rec.Instance = r.instanceID
	}

	body, err := EncodeJSONLGZ([]Record{rec})
	if err != nil {
		r.metrics.Inc(&r.metrics.FailureReportErrorsTotal)
		return "", fmt.Errorf("encode failure report: %w", err)
	}

	key := BuildKey(r.prefix, now, NewFilename(now, r.instanceID))

	if err := r.uploadWithRetry(ctx, key, body); err != nil {
		r.metrics.Inc(&r.metrics.FailureReportErrorsTotal)
		return "", fmt.Errorf("upload failure report s3://%s/%s: %w", r.bucket, key, err)
	}

	r.metrics.Inc(&r.metrics.FailureReportsTotal)
	r.log.Info().
		Str("run_id", rec.RunID).
		Str("report_key", key).
		Msg("failure report uploaded")

	return key, nil
}

// uploadWithRetry
// -----------------------
// gzip 바이트를 S3 로 업로드한다.
//   - 각 시도는 5초 timeout
//   - 200ms 부터 2배씩, 최대 2초 backoff
//   - shutdown-safe: ctx.Done() 시 즉시 중단
//
// body 는 매 시도마다 reader 를 새로 만들어야 하므로 bytes.NewReader 사용.
func (r *Reporter) uploadWithRetry(ctx context.Context, key string, body []byte) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= r.attempts; attempt++ {

		// shutdown 체크
		if err := ctx.Err(); err != nil {
			return err
		}

		err := r.putObject(ctx, key, body)
		if err == nil {
			return nil
		}
		lastErr = err
		r.metrics.Inc(&r.metrics.S3PutErrorsTotal)

		r.log.Warn().
			Err(err).
			Str("report_key", key).
			Int("attempt", attempt).
			Msg("failure report upload failed")

		if attempt == r.attempts {
			break
		}
		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return lastErr
}

func (r *Reporter) putObject(ctx context.Context, key string, body []byte) error {
	ctx2, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err := r.api.PutObject(ctx2, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
