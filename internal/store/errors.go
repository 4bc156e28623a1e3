package store

import (
	"errors"
	"fmt"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// 저장소 접근 실패 분류. errors.Is 로 판별한다.
// 이 레이어는 재시도하지 않는다 — 실패는 그대로 run 실패로 전파된다.
var (
	ErrObjectNotFound   = errors.New("object not found")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Error 는 분류된 저장소 에러. 원본 SDK 에러는 Err 로 보존된다.
type Error struct {
	Kind   error  // ErrObjectNotFound | ErrStoreUnavailable | staging.ErrInvalidKey
	Op     string // "fetch" | "store"
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s s3://%s/%s: %v: %v", e.Op, e.Bucket, e.Key, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return errors.Is(e.Kind, target) }

// classifyGet 은 GetObject 실패를 not-found / unavailable 로 나눈다.
func classifyGet(err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return ErrObjectNotFound
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return ErrObjectNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return ErrObjectNotFound
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return ErrObjectNotFound
	}

	return ErrStoreUnavailable
}
