package inference

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// 추론 실패 분류. errors.Is 로 판별한다.
var (
	// ErrTransient 는 같은 요청을 나중에 다시 보내면 풀릴 수 있는 실패 (throttling).
	// Invoke 밖으로는 ErrRetriesExhausted 의 원인으로만 나온다.
	ErrTransient = errors.New("transient inference error")

	// ErrPermanent 는 재시도해도 풀리지 않는 실패. 즉시 반환된다.
	ErrPermanent = errors.New("permanent inference error")

	// ErrRetriesExhausted 는 transient 실패가 retry budget 을 넘긴 경우.
	// 지속적인 과부하를 진짜 영구 장애와 구분하기 위해 별도 kind 로 둔다.
	ErrRetriesExhausted = errors.New("inference retries exhausted")

	// ErrMalformedResponse 는 응답에 content[0].text 가 없는 경우.
	// 항상 ErrPermanent 로 감싸서 반환된다.
	ErrMalformedResponse = errors.New("malformed inference response")
)

// transientCodes 는 재시도 대상 API 에러 코드 (rate-limit / throttling 계열).
var transientCodes = map[string]struct{}{
	"ThrottlingException":      {},
	"TooManyRequestsException": {},
	"RequestLimitExceeded":     {},
}

// Class 는 단일 시도 실패의 분류 결과.
type Class int

const (
	Permanent Class = iota
	Transient
)

func (c Class) String() string {
	if c == Transient {
		return "transient"
	}
	return "permanent"
}

// Classify 는 endpoint 에러를 transient / permanent 로 나눈다.
//
// transient 는 API 에러 코드가 throttling 계열일 때뿐이다.
// 코드가 없는 에러(타임아웃, 연결 실패, 비정상 응답)는 모두 permanent.
func Classify(err error) Class {
	if _, ok := transientCodes[ErrorCode(err)]; ok {
		return Transient
	}
	return Permanent
}

// ErrorCode 는 err 체인에서 API 에러 코드를 꺼낸다. 없으면 "".
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// Error 는 Invoke 가 반환하는 분류된 에러.
type Error struct {
	Kind     error  // ErrPermanent | ErrRetriesExhausted
	Attempts int    // 실제 수행한 시도 횟수
	Code     string // 마지막 실패의 API 에러 코드 (없으면 "")
	Err      error  // 마지막 실패 원인
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%v after %d attempt(s) (%s): %v", e.Kind, e.Attempts, e.Code, e.Err)
	}
	return fmt.Sprintf("%v after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return errors.Is(e.Kind, target) }
