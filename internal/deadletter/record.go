// Package deadletter 는 실패한 run 을 S3 에 gzip JSONL 리포트로 남긴다.
//
// 업스트림 큐의 DLQ 는 원본 메시지만 보관하므로, 어느 단계에서 왜
// 실패했는지는 여기서 따로 기록한다. 리포트는 best-effort 이며
// 리포트 실패가 run 의 실패 원인을 가리지 않는다.
package deadletter

import "time"

// Record
// ------------------------------------------------------------
// 실패한 run 1건. JSONL 한 줄로 직렬화된다.
type Record struct {
	RunID     string    `json:"run_id"`
	Bucket    string    `json:"bucket,omitempty"`
	Key       string    `json:"key,omitempty"`
	Stage     string    `json:"stage"`           // parse | fetch | read | invoke | store
	Kind      string    `json:"kind"`            // 에러 분류 (not_found, retries_exhausted, ...)
	Code      string    `json:"code,omitempty"`  // 추론 API 에러 코드
	Attempts  int       `json:"attempts,omitempty"`
	Error     string    `json:"error"`
	Instance  string    `json:"instance"`
	FailedAt  time.Time `json:"failed_at"`
	RequestID string    `json:"request_id,omitempty"` // Lambda aws_request_id
}
