package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docpipe/internal/config"
	"docpipe/internal/inference"
	"docpipe/internal/logger"
	"docpipe/internal/metrics"
	"docpipe/internal/model"
	"docpipe/internal/pipeline"
	"docpipe/internal/server"
	"docpipe/internal/trigger"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

const (
	exitRunFailed        = 1
	exitConfig           = 2
	exitRetriesExhausted = 3
)

// setup 은 config → logger → pipeline 순으로 초기화한다.
// 설정 오류는 exitConfig 로 끝난다.
func setup(ctx context.Context) (config.Config, zerolog.Logger, *pipeline.Pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), nil, cli.Exit(err.Error(), exitConfig)
	}

	log := logger.Init(cfg)

	p, err := pipeline.Build(ctx, cfg, metrics.New(), log)
	if err != nil {
		if errors.Is(err, config.ErrConfiguration) {
			return cfg, log, nil, cli.Exit(err.Error(), exitConfig)
		}
		return cfg, log, nil, cli.Exit(err.Error(), exitRunFailed)
	}

	return cfg, log, p, nil
}

// ====================================================================
// run
// ====================================================================

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Process a single document and upload its markdown artifact",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "bucket",
				Usage: "Source bucket (with --key)",
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "Source object key (with --bucket)",
			},
			&cli.StringFlag{
				Name:  "payload",
				Usage: "Trigger payload JSON file, \"-\" for stdin (instead of --bucket/--key)",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	bucket, key, payloadPath := c.String("bucket"), c.String("key"), c.String("payload")

	if payloadPath == "" && (bucket == "" || key == "") {
		return cli.Exit("either --payload or both --bucket and --key are required", exitRunFailed)
	}
	if payloadPath != "" && (bucket != "" || key != "") {
		return cli.Exit("--payload cannot be combined with --bucket/--key", exitRunFailed)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, log, p, err := setup(ctx)
	if err != nil {
		return err
	}

	var art model.OutputArtifact
	if payloadPath != "" {
		payload, rerr := readPayload(payloadPath, c.App.Reader)
		if rerr != nil {
			return cli.Exit(rerr.Error(), exitRunFailed)
		}
		art, err = p.Run(ctx, payload)
	} else {
		art, err = p.RunNotification(ctx, model.StorageNotification{Bucket: bucket, Key: key})
	}

	log.Debug().Str("metrics", p.Metrics().String()).Msg("run finished")

	switch {
	case errors.Is(err, trigger.ErrTestEvent):
		return nil
	case errors.Is(err, inference.ErrRetriesExhausted):
		return cli.Exit(err.Error(), exitRetriesExhausted)
	case err != nil:
		return cli.Exit(err.Error(), exitRunFailed)
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(art)
}

func readPayload(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return b, nil
}

// ====================================================================
// serve
// ====================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve POST /invoke (trigger payload), /metrics and /health over HTTP",
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, log, p, err := setup(c.Context)
	if err != nil {
		return err
	}

	h := server.NewHandler(p, p.Metrics(), log.With().Str("component", "http").Logger(), cfg.MaxBodySize, cfg.MaxConcurrentRuns)

	// ====================================================================
	// HTTP 서버 설정
	// ====================================================================
	//
	// /invoke 는 run 이 끝날 때까지 응답하지 않는다.
	// WriteTimeout 은 추론 read timeout + 최대 backoff 합보다 길어야 한다.
	// ====================================================================
	policy := inference.Policy{MaxRetries: cfg.InferenceMaxRetries, BaseDelay: cfg.InferenceBaseDelay}
	var backoff time.Duration
	for i := 0; i < policy.MaxRetries; i++ {
		backoff += policy.Delay(i)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      h.Routes(),
		ReadTimeout:  8 * time.Second,
		WriteTimeout: cfg.InferenceReadTimeout + backoff + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// ====================================================================
	// Graceful Shutdown
	// ====================================================================
	//
	// SIGTERM 수신 시 새 요청을 받지 않고, 진행 중인 run 이 끝나기를
	// 최대 30초 기다린다. 그 이후 끊긴 run 은 업스트림에서 재전송된다.
	// ====================================================================
	idle := make(chan struct{})
	go func() {
		defer close(idle)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("docpipe server listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return cli.Exit(fmt.Sprintf("http server terminated: %v", err), exitRunFailed)
	}

	<-idle
	log.Info().Str("metrics", p.Metrics().String()).Msg("shutdown complete")
	return nil
}

// ====================================================================
// version
// ====================================================================

type versionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			return json.NewEncoder(c.App.Writer).Encode(versionResponse{Version: version, Commit: commit})
		},
	}
}
