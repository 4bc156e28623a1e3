// Package inference 는 Bedrock InvokeModel 호출을 감싸는 resilient invoker 이다.
//
// throttling 계열 실패만 지수 backoff 로 재시도하고, 나머지는 즉시 실패시킨다.
// 성공한 응답 텍스트는 문서 경로에서 파생한 .md 경로에 기록된다.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"docpipe/internal/metrics"
	"docpipe/internal/model"
	"docpipe/internal/staging"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = time.Second

	contentTypeJSON = "application/json"
)

// Policy 는 재시도 정책.
// i 번째 시도(0부터)가 throttling 으로 실패하면 BaseDelay * 2^i 만큼 쉰다.
// 기본값 기준 최악의 경우 누적 대기 1+2+4+8+16 = 31s.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultPolicy 는 5회 / 1s.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

// Delay 는 attempt 번째(0부터) 실패 후의 backoff.
// time.Duration 범위를 넘으면 최댓값으로 고정한다.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if attempt >= 63 || d>>uint(attempt) != p.BaseDelay || d < 0 {
		return time.Duration(math.MaxInt64)
	}
	return d
}

// Sleeper 는 backoff 대기. ctx 가 끝나면 ctx.Err() 로 즉시 돌아와야 한다.
// 테스트에서는 실제로 자지 않고 지연값만 기록하는 구현을 주입한다.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext 는 shutdown-safe 한 기본 Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Invoker 는 InvokeModel 호출 + 재시도 + 산출물 기록을 담당한다.
// 상태를 갖지 않으므로 여러 run 에서 동시에 써도 안전하다.
type Invoker struct {
	api     API
	policy  Policy
	sleep   Sleeper
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// Option 은 Invoker 생성 옵션.
type Option func(*Invoker)

// WithPolicy 는 재시도 정책을 바꾼다. 0 이하 값은 기본값을 유지한다.
func WithPolicy(p Policy) Option {
	return func(iv *Invoker) {
		if p.MaxRetries > 0 {
			iv.policy.MaxRetries = p.MaxRetries
		}
		if p.BaseDelay > 0 {
			iv.policy.BaseDelay = p.BaseDelay
		}
	}
}

// WithSleeper 는 backoff 대기 함수를 바꾼다.
func WithSleeper(s Sleeper) Option {
	return func(iv *Invoker) {
		if s != nil {
			iv.sleep = s
		}
	}
}

// WithMetrics 는 카운터를 공유할 Metrics 를 지정한다.
func WithMetrics(m *metrics.Metrics) Option {
	return func(iv *Invoker) {
		if m != nil {
			iv.metrics = m
		}
	}
}

// WithLogger 는 로거를 지정한다.
func WithLogger(l zerolog.Logger) Option {
	return func(iv *Invoker) {
		iv.log = l
	}
}

func NewInvoker(api API, opts ...Option) *Invoker {
	iv := &Invoker{
		api:     api,
		policy:  DefaultPolicy(),
		sleep:   SleepContext,
		metrics: metrics.New(),
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(iv)
	}
	return iv
}

// Policy 는 적용 중인 재시도 정책.
func (iv *Invoker) Policy() Policy {
	return iv.policy
}

// Invoke
// -----------------------
// req 를 모델에 보내고, 응답 content[0].text 를 documentPath 옆의
// .md 파일(staging.WriteArtifact)에 기록한 뒤 그 경로를 반환한다.
//
//   - throttling 계열 → BaseDelay*2^i 대기 후 재시도
//   - 그 외 에러 / 비정상 응답 → 즉시 ErrPermanent
//   - MaxRetries 번 모두 throttling → ErrRetriesExhausted
//     (마지막 시도 후에도 한 번 더 대기한 뒤 반환한다)
//
// 실패한 경우 산출물 파일은 생기지 않는다.
func (iv *Invoker) Invoke(ctx context.Context, req model.InferenceRequest, documentPath string) (string, error) {
	body, err := encodeRequest(req)
	if err != nil {
		return "", &Error{Kind: ErrPermanent, Err: fmt.Errorf("encode request: %w", err)}
	}

	var lastErr error

	for attempt := 0; attempt < iv.policy.MaxRetries; attempt++ {

		// shutdown 체크
		if err := ctx.Err(); err != nil {
			return "", &Error{Kind: ErrPermanent, Attempts: attempt, Err: err}
		}

		iv.metrics.Inc(&iv.metrics.InferenceAttemptsTotal)

		text, err := iv.attempt(ctx, req.ModelID, body)
		if err == nil {
			return iv.writeArtifact(documentPath, text)
		}

		code := ErrorCode(err)
		if Classify(err) == Permanent {
			iv.log.Error().
				Err(err).
				Str("model_id", req.ModelID).
				Str("code", code).
				Int("attempt", attempt+1).
				Msg("inference failed")
			return "", &Error{Kind: ErrPermanent, Attempts: attempt + 1, Code: code, Err: err}
		}

		lastErr = err
		delay := iv.policy.Delay(attempt)

		iv.metrics.Inc(&iv.metrics.InferenceThrottledTotal)
		iv.metrics.Add(&iv.metrics.InferenceBackoffMillisTotal, delay.Milliseconds())

		iv.log.Warn().
			Str("model_id", req.ModelID).
			Str("code", code).
			Int("attempt", attempt+1).
			Int("max_retries", iv.policy.MaxRetries).
			Dur("backoff", delay).
			Msg("inference throttled, backing off")

		if err := iv.sleep(ctx, delay); err != nil {
			return "", &Error{Kind: ErrPermanent, Attempts: attempt + 1, Code: code, Err: err}
		}
	}

	return "", &Error{
		Kind:     ErrRetriesExhausted,
		Attempts: iv.policy.MaxRetries,
		Code:     ErrorCode(lastErr),
		Err:      errors.Join(ErrTransient, lastErr),
	}
}

// attempt 는 InvokeModel 1회 호출 + 응답 파싱.
func (iv *Invoker) attempt(ctx context.Context, modelID string, body []byte) (string, error) {
	out, err := iv.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String(contentTypeJSON),
		Accept:      aws.String(contentTypeJSON),
	})
	if err != nil {
		return "", err
	}

	text, stopReason, err := decodeText(out.Body)
	if err != nil {
		return "", err
	}

	iv.log.Debug().
		Str("model_id", modelID).
		Str("stop_reason", stopReason).
		Int("text_bytes", len(text)).
		Msg("inference succeeded")

	return text, nil
}

// writeArtifact 는 text 를 documentPath 옆의 run 고유 .md 파일로 원자적으로 기록한다.
func (iv *Invoker) writeArtifact(documentPath, text string) (string, error) {
	dst, _, err := staging.WriteArtifact(documentPath, strings.NewReader(text))
	if err != nil {
		return "", fmt.Errorf("write artifact for %s: %w", documentPath, err)
	}
	return dst, nil
}
