package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"docpipe/internal/config"
	"docpipe/internal/logger"
	"docpipe/internal/metrics"
	"docpipe/internal/model"
	"docpipe/internal/pipeline"
	"docpipe/internal/trigger"

	"github.com/aws/aws-lambda-go/lambda"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Lambda 엔트리포인트.
//
// SQS (S3 ObjectCreated 알림) → 이 함수. 호출 1회 = run 1회.
// 에러를 그대로 반환하면 SQS redelivery / DLQ 정책이 적용된다.
func main() {

	// ====================================================================
	// Config
	// ====================================================================
	// 필수 env 누락은 cold start 에서 바로 실패시킨다.
	// 어떤 오브젝트도 건드리기 전이다.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Init(cfg)
	m := metrics.New()

	// ====================================================================
	// Pipeline (S3 / Bedrock client, 템플릿은 cold start 에 한 번만 로드)
	// ====================================================================
	p, err := pipeline.Build(context.Background(), cfg, m, log)
	if err != nil {
		log.Fatal().Err(err).Msg("pipeline init failed")
	}

	lambda.Start(newHandler(p, log))
}

// newHandler 는 raw payload 를 그대로 파이프라인에 넘긴다.
// s3:TestEvent 는 처리할 것이 없으므로 성공으로 응답한다.
func newHandler(p pipelineRunner, log zerolog.Logger) func(ctx context.Context, payload json.RawMessage) (model.OutputArtifact, error) {
	return func(ctx context.Context, payload json.RawMessage) (model.OutputArtifact, error) {
		art, err := p.Run(ctx, payload)
		if errors.Is(err, trigger.ErrTestEvent) {
			return model.OutputArtifact{}, nil
		}
		if err != nil {
			return model.OutputArtifact{}, err
		}
		log.Debug().Str("artifact_key", art.Key).Msg("invocation complete")
		return art, nil
	}
}

type pipelineRunner interface {
	Run(ctx context.Context, payload []byte) (model.OutputArtifact, error)
}
