package pipeline

import (
	"context"
	"fmt"

	"docpipe/internal/config"
	"docpipe/internal/deadletter"
	"docpipe/internal/inference"
	"docpipe/internal/metrics"
	"docpipe/internal/prompt"
	"docpipe/internal/staging"
	"docpipe/internal/store"

	"github.com/rs/zerolog"
)

// Build 는 설정으로 실제 AWS 클라이언트를 만들고 Pipeline 을 조립한다.
// 템플릿 로드 / AWS 설정 로드 실패는 어떤 오브젝트도 건드리기 전에 반환된다.
func Build(ctx context.Context, cfg config.Config, m *metrics.Metrics, log zerolog.Logger) (*Pipeline, error) {
	asm, err := prompt.Load(cfg.TemplateDir, cfg.ModelID, cfg.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	s3Client, err := store.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	bedrock, err := inference.NewBedrockClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	st := store.New(s3Client, staging.New(cfg.StagingRoot), m, log.With().Str("component", "store").Logger())

	inv := inference.NewInvoker(bedrock,
		inference.WithPolicy(inference.Policy{
			MaxRetries: cfg.InferenceMaxRetries,
			BaseDelay:  cfg.InferenceBaseDelay,
		}),
		inference.WithMetrics(m),
		inference.WithLogger(log.With().Str("component", "inference").Logger()),
	)

	opts := []Option{WithMetrics(m), WithLogger(log), WithFailurePrefix(cfg.FailurePrefix)}

	if rep := deadletter.NewReporter(s3Client, cfg.ArtifactBucket, cfg.FailurePrefix, cfg.InstanceID, m,
		log.With().Str("component", "deadletter").Logger()); rep != nil {
		opts = append(opts, WithReporter(rep))
	}

	log.Info().
		Str("model_id", cfg.ModelID).
		Str("inference_region", cfg.InferenceRegion).
		Str("artifact_bucket", cfg.ArtifactBucket).
		Str("staging_root", cfg.StagingRoot).
		Int("max_retries", cfg.InferenceMaxRetries).
		Dur("base_delay", cfg.InferenceBaseDelay).
		Bool("failure_reports", cfg.FailurePrefix != "").
		Msg("pipeline configured")

	return New(st, asm, inv, cfg.ArtifactBucket, opts...), nil
}
