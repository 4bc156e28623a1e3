package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func lookup(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func requiredEnv() map[string]string {
	return map[string]string{
		"INFERENCE_REGION": "us-east-1",
		"MAX_TOKENS":       "4096",
		"MODEL_ID":         "anthropic.claude-3-sonnet-20240229-v1:0",
		"ARTIFACT_BUCKET":  "docs-out",
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(lookup(requiredEnv()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", cfg.MaxTokens)
	}
	if cfg.InferenceMaxRetries != 5 {
		t.Errorf("InferenceMaxRetries = %d, want 5", cfg.InferenceMaxRetries)
	}
	if cfg.InferenceBaseDelay != time.Second {
		t.Errorf("InferenceBaseDelay = %v, want 1s", cfg.InferenceBaseDelay)
	}
	if cfg.InferenceReadTimeout != 1000*time.Second {
		t.Errorf("InferenceReadTimeout = %v, want 1000s", cfg.InferenceReadTimeout)
	}
	if cfg.StagingRoot != "/tmp" {
		t.Errorf("StagingRoot = %q, want /tmp", cfg.StagingRoot)
	}
	if cfg.FailurePrefix != "" {
		t.Errorf("FailurePrefix = %q, want empty", cfg.FailurePrefix)
	}
	if cfg.MaxConcurrentRuns != 4 {
		t.Errorf("MaxConcurrentRuns = %d, want 4", cfg.MaxConcurrentRuns)
	}
	if cfg.InstanceID == "" {
		t.Error("InstanceID should fall back to a non-empty value")
	}
}

func TestLoad_MissingRequiredReportsAll(t *testing.T) {
	_, err := load(lookup(map[string]string{"MODEL_ID": "m"}))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	for _, key := range []string{"INFERENCE_REGION", "MAX_TOKENS", "ARTIFACT_BUCKET"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should mention %s: %v", key, err)
		}
	}
	if strings.Contains(err.Error(), "MODEL_ID") {
		t.Errorf("error should not mention MODEL_ID: %v", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"non-numeric max tokens", "MAX_TOKENS", "lots"},
		{"zero max tokens", "MAX_TOKENS", "0"},
		{"bad duration", "INFERENCE_BASE_DELAY", "soon"},
		{"zero retries", "INFERENCE_MAX_RETRIES", "0"},
		{"too many retries", "INFERENCE_MAX_RETRIES", "64"},
		{"zero base delay", "INFERENCE_BASE_DELAY", "0s"},
		{"negative base delay", "INFERENCE_BASE_DELAY", "-1s"},
		{"huge base delay", "INFERENCE_BASE_DELAY", "100000h"},
		{"bad bool", "LOG_PRETTY", "sometimes"},
		{"zero concurrency", "MAX_CONCURRENT_RUNS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := requiredEnv()
			env[tt.key] = tt.val

			_, err := load(lookup(env))
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error should mention %s: %v", tt.key, err)
			}
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	env := requiredEnv()
	env["STAGING_ROOT"] = "/var/stage"
	env["FAILURE_PREFIX"] = "/failures/"
	env["INFERENCE_BASE_DELAY"] = "250ms"
	env["S3_USE_PATH_STYLE"] = "true"
	env["INSTANCE_ID"] = "worker-1"

	cfg, err := load(lookup(env))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StagingRoot != "/var/stage" {
		t.Errorf("StagingRoot = %q", cfg.StagingRoot)
	}
	if cfg.FailurePrefix != "failures" {
		t.Errorf("FailurePrefix = %q, want failures", cfg.FailurePrefix)
	}
	if cfg.InferenceBaseDelay != 250*time.Millisecond {
		t.Errorf("InferenceBaseDelay = %v", cfg.InferenceBaseDelay)
	}
	if !cfg.S3UsePathStyle {
		t.Error("S3UsePathStyle should be true")
	}
	if cfg.InstanceID != "worker-1" {
		t.Errorf("InstanceID = %q", cfg.InstanceID)
	}
}
