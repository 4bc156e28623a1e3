package pipeline

import (
	"errors"
	"fmt"

	"docpipe/internal/inference"
	"docpipe/internal/staging"
	"docpipe/internal/store"
	"docpipe/internal/trigger"
)

// ErrSourceIsArtifact 는 소스가 이 파이프라인이 쓴 오브젝트인 경우
// (artifact bucket 안의 .md 산출물, 또는 실패 리포트 prefix 아래 오브젝트).
// 처리하면 새 오브젝트가 다시 알림을 만들어 루프가 되므로 fetch 전에 거부한다.
var ErrSourceIsArtifact = errors.New("source object is its own artifact")

// Stage 는 run 의 단계 이름. 로그와 실패 리포트에 그대로 쓰인다.
type Stage string

const (
	StageParse  Stage = "parse"
	StageFetch  Stage = "fetch"
	StageRead   Stage = "read"
	StageInvoke Stage = "invoke"
	StageStore  Stage = "store"
)

// StageError 는 run 을 멈춘 첫 번째 에러와 그 단계.
// 원래 에러의 분류(errors.Is)는 그대로 유지된다.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// 실패 분류 이름 (로그 / 실패 리포트의 kind).
const (
	KindEventRejected      = "event_rejected"
	KindObjectNotFound     = "object_not_found"
	KindStoreUnavailable   = "store_unavailable"
	KindInferencePermanent = "inference_permanent"
	KindRetriesExhausted   = "retries_exhausted"
	KindOther              = "other"
)

// ErrorKind 는 err 를 실패 분류 이름으로 바꾼다.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, trigger.ErrMalformedEvent), errors.Is(err, trigger.ErrUnsupportedBatch),
		errors.Is(err, ErrSourceIsArtifact), errors.Is(err, staging.ErrInvalidKey):
		return KindEventRejected
	case errors.Is(err, store.ErrObjectNotFound):
		return KindObjectNotFound
	case errors.Is(err, store.ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, inference.ErrRetriesExhausted):
		return KindRetriesExhausted
	case errors.Is(err, inference.ErrPermanent):
		return KindInferencePermanent
	default:
		return KindOther
	}
}
