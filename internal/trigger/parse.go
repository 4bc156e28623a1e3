// Package trigger 는 큐로 전달된 S3 생성 알림에서 처리 대상 오브젝트를 꺼낸다.
//
// payload 구조 (SQS → S3 notification):
//
//	{"Records":[{"body":"{\"Records\":[{\"s3\":{\"bucket\":{\"name\":..},\"object\":{\"key\":..}}}]}"}]}
//
// 바깥 레코드의 body 는 JSON 문자열이며, 그 안에 다시 S3 레코드 목록이 있다.
package trigger

import (
	"errors"
	"fmt"
	"net/url"

	"docpipe/internal/model"

	"github.com/aws/aws-lambda-go/events"
	json "github.com/goccy/go-json"
)

var (
	// ErrMalformedEvent 는 JSON 파싱 실패 / 레코드 없음 / 필수 필드 누락.
	ErrMalformedEvent = errors.New("malformed trigger event")

	// ErrUnsupportedBatch 는 레코드가 2개 이상인 배치.
	// 앞의 것만 처리하고 나머지를 버리는 대신 명시적으로 거부한다.
	ErrUnsupportedBatch = errors.New("unsupported multi-record batch")

	// ErrTestEvent 는 버킷 알림 설정 시 S3 가 보내는 s3:TestEvent.
	// 처리할 오브젝트가 없으므로 호출자는 no-op 으로 취급한다.
	ErrTestEvent = errors.New("s3 test event")
)

const testEventName = "s3:TestEvent"

// s3Body 는 SQS 메시지 body. S3 레코드 목록이거나 test event 이다.
type s3Body struct {
	events.S3Event
	Event string `json:"Event"`
}

// Parse 는 payload 에서 StorageNotification 1개를 꺼낸다.
func Parse(payload []byte) (model.StorageNotification, error) {
	var outer events.SQSEvent
	if err := json.Unmarshal(payload, &outer); err != nil {
		return model.StorageNotification{}, fmt.Errorf("%w: decode envelope: %v", ErrMalformedEvent, err)
	}
	if err := checkCount("envelope", len(outer.Records)); err != nil {
		return model.StorageNotification{}, err
	}

	return ParseBody(outer.Records[0].Body)
}

// ParseBody 는 SQS 메시지 body(S3 notification JSON)를 해석한다.
// Lambda 핸들러가 이미 SQSEvent 로 받은 경우 이쪽을 바로 쓴다.
func ParseBody(body string) (model.StorageNotification, error) {
	if body == "" {
		return model.StorageNotification{}, fmt.Errorf("%w: empty record body", ErrMalformedEvent)
	}

	var inner s3Body
	if err := json.Unmarshal([]byte(body), &inner); err != nil {
		return model.StorageNotification{}, fmt.Errorf("%w: decode record body: %v", ErrMalformedEvent, err)
	}
	if inner.Event == testEventName {
		return model.StorageNotification{}, ErrTestEvent
	}
	if err := checkCount("storage notification", len(inner.Records)); err != nil {
		return model.StorageNotification{}, err
	}

	rec := inner.Records[0].S3
	if rec.Bucket.Name == "" {
		return model.StorageNotification{}, fmt.Errorf("%w: missing s3.bucket.name", ErrMalformedEvent)
	}
	if rec.Object.Key == "" {
		return model.StorageNotification{}, fmt.Errorf("%w: missing s3.object.key", ErrMalformedEvent)
	}

	// S3 알림의 key 는 URL 인코딩되어 온다 (공백은 '+').
	key, err := url.QueryUnescape(rec.Object.Key)
	if err != nil {
		return model.StorageNotification{}, fmt.Errorf("%w: decode object key %q: %v", ErrMalformedEvent, rec.Object.Key, err)
	}

	return model.StorageNotification{Bucket: rec.Bucket.Name, Key: key}, nil
}

func checkCount(what string, n int) error {
	switch {
	case n == 0:
		return fmt.Errorf("%w: %s has no records", ErrMalformedEvent, what)
	case n > 1:
		return fmt.Errorf("%w: %s has %d records", ErrUnsupportedBatch, what, n)
	}
	return nil
}
