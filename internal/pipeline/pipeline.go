// Package pipeline 은 트리거 이벤트 1건을 처음부터 끝까지 처리한다.
//
//	parse → fetch → read → assemble → invoke(재시도) → store
//
// 재시도는 invoker 안에만 있다. 나머지 단계의 실패는 곧바로 run 실패다.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"docpipe/internal/deadletter"
	"docpipe/internal/inference"
	"docpipe/internal/metrics"
	"docpipe/internal/model"
	"docpipe/internal/staging"
	"docpipe/internal/trigger"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const reportTimeout = 15 * time.Second

// ObjectStore 는 소스 오브젝트 다운로드 / 산출물 업로드. *store.Client 가 만족한다.
type ObjectStore interface {
	Fetch(ctx context.Context, bucket, key string) (string, error)
	Store(ctx context.Context, localPath, bucket, key string) error
}

// Assembler 는 문서 본문으로 추론 요청을 만든다. *prompt.Assembler 가 만족한다.
type Assembler interface {
	Assemble(documentText string) model.InferenceRequest
}

// Invoker 는 추론 호출 후 로컬 산출물 경로를 반환한다. *inference.Invoker 가 만족한다.
type Invoker interface {
	Invoke(ctx context.Context, req model.InferenceRequest, documentPath string) (string, error)
}

// FailureReporter 는 실패한 run 을 기록한다. *deadletter.Reporter 가 만족한다.
type FailureReporter interface {
	Report(ctx context.Context, rec deadletter.Record) (string, error)
}

// Pipeline 은 run 간에 공유되는 읽기 전용 구성 요소만 가진다.
// 서로 다른 키에 대한 run 은 동시에 실행해도 된다.
type Pipeline struct {
	store          ObjectStore
	assembler      Assembler
	invoker        Invoker
	artifactBucket string
	failurePrefix  string

	reporter FailureReporter
	metrics  *metrics.Metrics
	log      zerolog.Logger
	newRunID func() string
}

type Option func(*Pipeline)

func WithReporter(r FailureReporter) Option {
	return func(p *Pipeline) { p.reporter = r }
}

// WithFailurePrefix 는 실패 리포트가 올라가는 artifact bucket 내 prefix.
// 이 prefix 아래 오브젝트의 알림은 run 하지 않는다.
func WithFailurePrefix(prefix string) Option {
	return func(p *Pipeline) { p.failurePrefix = strings.Trim(prefix, "/") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithRunID 는 run id 생성기를 바꾼다 (테스트용).
func WithRunID(f func() string) Option {
	return func(p *Pipeline) {
		if f != nil {
			p.newRunID = f
		}
	}
}

func New(st ObjectStore, asm Assembler, inv Invoker, artifactBucket string, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:          st,
		assembler:      asm,
		invoker:        inv,
		artifactBucket: artifactBucket,
		metrics:        metrics.New(),
		log:            zerolog.Nop(),
		newRunID:       uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Metrics 는 파이프라인이 갱신하는 카운터.
func (p *Pipeline) Metrics() *metrics.Metrics {
	return p.metrics
}

// Run
// ------------------------------------------------------------
// payload(트리거 이벤트) 1건을 처리하고 업로드된 산출물 위치를 반환한다.
//
//   - 성공: 산출물 정확히 1개가 artifact bucket 에 업로드된다.
//   - 실패: 처음 만난 에러를 *StageError 로 감싸 반환하고, 산출물은 업로드되지 않는다.
//   - s3:TestEvent 는 trigger.ErrTestEvent 로 즉시 반환된다 (run 으로 세지 않음).
//
// run 의 staging 파일(문서, 로컬 산출물)은 성공/실패와 관계없이 정리된다.
func (p *Pipeline) Run(ctx context.Context, payload []byte) (model.OutputArtifact, error) {
	n, err := trigger.Parse(payload)
	if errors.Is(err, trigger.ErrTestEvent) {
		p.log.Info().Msg("ignoring s3 test event")
		return model.OutputArtifact{}, err
	}

	runID := p.newRunID()
	log := p.log.With().Str("run_id", runID).Logger()
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		log = log.With().Str("aws_request_id", lc.AwsRequestID).Logger()
	}

	p.metrics.Inc(&p.metrics.RunsStartedTotal)

	if err != nil {
		err = &StageError{Stage: StageParse, Err: err}
		p.fail(ctx, runID, n, err, log)
		return model.OutputArtifact{}, err
	}

	return p.run(ctx, runID, n, log)
}

// RunNotification 은 이미 파싱된 알림으로 run 을 실행한다.
func (p *Pipeline) RunNotification(ctx context.Context, n model.StorageNotification) (model.OutputArtifact, error) {
	runID := p.newRunID()
	log := p.log.With().Str("run_id", runID).Logger()

	p.metrics.Inc(&p.metrics.RunsStartedTotal)

	return p.run(ctx, runID, n, log)
}

func (p *Pipeline) run(ctx context.Context, runID string, n model.StorageNotification, log zerolog.Logger) (model.OutputArtifact, error) {
	log = log.With().Str("bucket", n.Bucket).Str("key", n.Key).Logger()
	log.Info().Msg("run started")

	start := time.Now()

	art, err := p.process(ctx, n, log)
	if err != nil {
		p.fail(ctx, runID, n, err, log)
		return model.OutputArtifact{}, err
	}

	p.metrics.Inc(&p.metrics.RunsSucceededTotal)
	log.Info().
		Str("artifact_bucket", art.Bucket).
		Str("artifact_key", art.Key).
		Dur("elapsed", time.Since(start)).
		Msg("run succeeded")

	return art, nil
}

func (p *Pipeline) process(ctx context.Context, n model.StorageNotification, log zerolog.Logger) (model.OutputArtifact, error) {
	// 자기 트리거 루프 차단: 산출물 bucket 의 .md 와 실패 리포트는 다시 처리하지 않는다
	if p.ownsObject(n) {
		return model.OutputArtifact{}, &StageError{Stage: StageParse, Err: fmt.Errorf("%w: s3://%s/%s", ErrSourceIsArtifact, n.Bucket, n.Key)}
	}

	// ------------------------------------------------------------
	// 1) fetch: <staging-root>/<key>
	// ------------------------------------------------------------
	docPath, err := p.store.Fetch(ctx, n.Bucket, n.Key)
	if err != nil {
		return model.OutputArtifact{}, &StageError{Stage: StageFetch, Err: err}
	}
	defer removeStaged(docPath, log)

	// ------------------------------------------------------------
	// 2) read + assemble
	// ------------------------------------------------------------
	doc, err := os.ReadFile(docPath)
	if err != nil {
		return model.OutputArtifact{}, &StageError{Stage: StageRead, Err: fmt.Errorf("read document %s: %w", docPath, err)}
	}
	req := p.assembler.Assemble(string(doc))

	// ------------------------------------------------------------
	// 3) invoke (재시도는 invoker 내부)
	// ------------------------------------------------------------
	artifactPath, err := p.invoker.Invoke(ctx, req, docPath)
	if err != nil {
		return model.OutputArtifact{}, &StageError{Stage: StageInvoke, Err: err}
	}
	defer removeStaged(artifactPath, log)

	// ------------------------------------------------------------
	// 4) store: 키 = 소스 키의 확장자만 .md 로 바꾼 값
	// ------------------------------------------------------------
	key := staging.ArtifactKey(n.Key)
	if err := p.store.Store(ctx, artifactPath, p.artifactBucket, key); err != nil {
		return model.OutputArtifact{}, &StageError{Stage: StageStore, Err: err}
	}

	return model.OutputArtifact{Bucket: p.artifactBucket, Key: key}, nil
}

// ownsObject 는 n 이 이 파이프라인이 artifact bucket 에 쓴 오브젝트인지 본다.
func (p *Pipeline) ownsObject(n model.StorageNotification) bool {
	if n.Bucket != p.artifactBucket {
		return false
	}
	if staging.ArtifactKey(n.Key) == n.Key {
		return true
	}
	return p.failurePrefix != "" && strings.HasPrefix(n.Key, p.failurePrefix+"/")
}

// fail 은 실패 메트릭 / 로그 / 실패 리포트를 처리한다.
// 리포트 실패는 로그만 남기고 run 에러를 바꾸지 않는다.
func (p *Pipeline) fail(ctx context.Context, runID string, n model.StorageNotification, err error, log zerolog.Logger) {
	kind := ErrorKind(err)

	p.metrics.Inc(&p.metrics.RunsFailedTotal)
	p.metrics.Inc(p.kindCounter(kind))

	rec := deadletter.Record{
		RunID:  runID,
		Bucket: n.Bucket,
		Key:    n.Key,
		Kind:   kind,
		Error:  err.Error(),
	}

	var se *StageError
	if errors.As(err, &se) {
		rec.Stage = string(se.Stage)
	}
	var ie *inference.Error
	if errors.As(err, &ie) {
		rec.Code = ie.Code
		rec.Attempts = ie.Attempts
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		rec.RequestID = lc.AwsRequestID
	}

	log.Error().
		Err(err).
		Str("stage", rec.Stage).
		Str("kind", kind).
		Msg("run failed")

	// 자기 오브젝트 거부는 리포트하지 않는다. 리포트 업로드가 다시 알림을 만든다.
	if p.reporter == nil || errors.Is(err, ErrSourceIsArtifact) {
		return
	}

	// run ctx 가 이미 취소/만료됐어도 리포트는 남긴다.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	if _, rerr := p.reporter.Report(rctx, rec); rerr != nil {
		log.Warn().Err(rerr).Msg("failure report not recorded")
	}
}

func (p *Pipeline) kindCounter(kind string) *int64 {
	m := p.metrics
	switch kind {
	case KindEventRejected:
		return &m.EventRejectedTotal
	case KindObjectNotFound:
		return &m.ObjectNotFoundTotal
	case KindStoreUnavailable:
		return &m.StoreUnavailableTotal
	case KindInferencePermanent:
		return &m.InferencePermanentTotal
	case KindRetriesExhausted:
		return &m.InferenceExhaustedTotal
	default:
		return &m.OtherFailuresTotal
	}
}

func removeStaged(path string, log zerolog.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("staging cleanup failed")
	}
}
