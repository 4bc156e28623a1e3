// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrConfiguration 은 필수 설정 누락/형식 오류를 나타낸다.
// 어떤 오브젝트도 건드리기 전에 프로세스 시작 단계에서 반환된다.
var ErrConfiguration = errors.New("configuration error")

// 재시도 정책 상한. 기본값(5회 / 1s)에서 최악 대기 31s,
// 상한에서도 BaseDelay * 2^(MaxRetries-1) 이 time.Duration 범위 안에 있다.
const (
	MaxInferenceRetries   = 16
	MaxInferenceBaseDelay = time.Hour
)

// Config
//
// 파이프라인 실행에 필요한 모든 환경 변수 값을 보관하는 구조체.
// 모든 값은 프로세스 시작 시점에 Load() 에 의해 초기화되며,
// 이후에는 변경되지 않는 불변(read-only) 설정들이다.
type Config struct {

	// ---------------------------
	// 추론(Bedrock) 설정 — 필수
	// ---------------------------

	InferenceRegion string // Bedrock runtime 리전 (예: us-east-1)
	MaxTokens       int    // 최대 출력 토큰 수
	ModelID         string // 모델 식별자

	// ---------------------------
	// 산출물 저장소 — 필수
	// ---------------------------

	ArtifactBucket string // 생성된 .md 산출물을 업로드할 버킷

	// ---------------------------
	// 추론 재시도 정책
	// ---------------------------
	// SDK retry 는 항상 끄고, 재시도 판단은 오직 invoker 의
	// 애플리케이션 레벨 루프에서만 한다 (throttling 계열만 재시도).

	InferenceReadTimeout time.Duration // 시도당 read timeout
	InferenceMaxRetries  int           // 최대 시도 횟수
	InferenceBaseDelay   time.Duration // backoff 기본 지연 (2^i 배)

	// ---------------------------
	// 로컬 작업 공간
	// ---------------------------

	StagingRoot string // 다운로드/산출물 임시 경로 root (예: /tmp)
	TemplateDir string // system.template / message.template 위치

	// ---------------------------
	// S3 클라이언트
	// ---------------------------

	AWSRegion      string // S3 리전 (비어 있으면 SDK default chain)
	S3Endpoint     string // S3 호환 스토리지용 custom endpoint
	S3UsePathStyle bool

	// 실패 리포트 prefix. 비어 있으면 실패 리포트 비활성화.
	FailurePrefix string

	// ---------------------------
	// 서버 / 식별자 / 로그
	// ---------------------------

	HTTPAddr          string
	MaxBodySize       int64
	MaxConcurrentRuns int // HTTP 로 동시에 실행할 수 있는 run 수 (초과 시 503)

	ServiceName string
	InstanceID  string
	LogLevel    string
	LogPretty   bool
}

// Load
//
// 환경 변수 기반으로 Config 값을 초기화한다.
// 필수 env 가 비어있거나 형식이 잘못되면 ErrConfiguration 을 감싼 에러를 반환한다.
// 누락된 항목은 한 번에 모두 보고한다 (배포 시 하나씩 고치는 왕복 방지).
func Load() (Config, error) {
	return load(os.Getenv)
}

// load 는 테스트에서 env lookup 을 주입하기 위한 내부 구현이다.
func load(getenv func(string) string) (Config, error) {
	e := &env{getenv: getenv}

	cfg := Config{
		InferenceRegion: e.must("INFERENCE_REGION"),
		MaxTokens:       e.mustInt("MAX_TOKENS"),
		ModelID:         e.must("MODEL_ID"),
		ArtifactBucket:  e.must("ARTIFACT_BUCKET"),

		InferenceReadTimeout: e.optDur("INFERENCE_READ_TIMEOUT", 1000*time.Second),
		InferenceMaxRetries:  e.optInt("INFERENCE_MAX_RETRIES", 5),
		InferenceBaseDelay:   e.optDur("INFERENCE_BASE_DELAY", time.Second),

		StagingRoot: e.opt("STAGING_ROOT", "/tmp"),
		TemplateDir: e.opt("TEMPLATE_DIR", "./template"),

		AWSRegion:      e.opt("AWS_REGION", ""),
		S3Endpoint:     e.opt("S3_ENDPOINT", ""),
		S3UsePathStyle: e.optBool("S3_USE_PATH_STYLE", false),

		FailurePrefix: strings.Trim(e.opt("FAILURE_PREFIX", ""), "/"),

		HTTPAddr:    e.opt("HTTP_ADDR", ":8080"),
		MaxBodySize: e.optInt64("MAX_BODY_SIZE", 1<<20),

		MaxConcurrentRuns: e.optInt("MAX_CONCURRENT_RUNS", 4),

		ServiceName: e.opt("SERVICE_NAME", "docpipe"),
		InstanceID:  e.opt("INSTANCE_ID", ""),
		LogLevel:    e.opt("LOG_LEVEL", "info"),
		LogPretty:   e.optBool("LOG_PRETTY", false),
	}

	if cfg.MaxTokens <= 0 && e.getenv("MAX_TOKENS") != "" {
		e.fail("MAX_TOKENS must be positive, got %d", cfg.MaxTokens)
	}
	if cfg.InferenceMaxRetries < 1 || cfg.InferenceMaxRetries > MaxInferenceRetries {
		e.fail("INFERENCE_MAX_RETRIES must be in [1, %d], got %d", MaxInferenceRetries, cfg.InferenceMaxRetries)
	}
	if cfg.InferenceBaseDelay <= 0 || cfg.InferenceBaseDelay > MaxInferenceBaseDelay {
		e.fail("INFERENCE_BASE_DELAY must be in (0, %s], got %s", MaxInferenceBaseDelay, cfg.InferenceBaseDelay)
	}
	if cfg.MaxConcurrentRuns <= 0 {
		e.fail("MAX_CONCURRENT_RUNS must be positive, got %d", cfg.MaxConcurrentRuns)
	}
	if cfg.StagingRoot == "" {
		e.fail("STAGING_ROOT must not be empty")
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = fallbackInstanceID()
	}

	if len(e.errs) > 0 {
		return Config{}, fmt.Errorf("%w:\n  - %s", ErrConfiguration, strings.Join(e.errs, "\n  - "))
	}
	return cfg, nil
}

// env
//
// must / mustInt 는 필수 값, 나머지는 기본값이 있는 선택 값.
// 실패를 즉시 종료하지 않고 errs 에 모아서 Load 가 한 번에 반환한다.
type env struct {
	getenv func(string) string
	errs   []string
}

func (e *env) fail(format string, args ...any) {
	e.errs = append(e.errs, fmt.Sprintf(format, args...))
}

func (e *env) must(key string) string {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		e.fail("missing required env: %s", key)
	}
	return v
}

func (e *env) mustInt(key string) int {
	v := e.must(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail("invalid int env %s=%q: %v", key, v, err)
	}
	return n
}

func (e *env) opt(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) optInt(key string, def int) int {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail("invalid int env %s=%q: %v", key, v, err)
		return def
	}
	return n
}

func (e *env) optInt64(key string, def int64) int64 {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail("invalid int64 env %s=%q: %v", key, v, err)
		return def
	}
	return n
}

func (e *env) optDur(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail("invalid duration env %s=%q: %v", key, v, err)
		return def
	}
	return d
}

func (e *env) optBool(key string, def bool) bool {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail("invalid bool env %s=%q: %v", key, v, err)
		return def
	}
	return b
}

// fallbackInstanceID
//
// 이 파이프라인 인스턴스를 식별하는 고유 값.
//   - 기본: hostname (Lambda/ECS 에서는 실행 환경마다 고유)
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
