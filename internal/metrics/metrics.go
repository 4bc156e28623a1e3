package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics 는 파이프라인 상태를 나타내는 카운터 모음이다.
// 모든 필드는 atomic 으로만 접근한다.
type Metrics struct {
	// ======================
	// Run 레벨 지표
	// ======================

	// RunsStartedTotal
	// - Run() 진입 횟수 (트리거 이벤트 수).
	RunsStartedTotal int64

	// RunsSucceededTotal
	// - 산출물이 업로드까지 끝난 run 수.
	// - 이 값 == 업로드된 산출물 수 (run 당 정확히 1개).
	RunsSucceededTotal int64

	// RunsFailedTotal
	// - 어떤 단계에서든 실패로 끝난 run 수.
	// - 아래 *FailuresTotal 들의 합과 같다 (분류 불가 실패는 OtherFailuresTotal).
	RunsFailedTotal int64

	// ======================
	// 실패 분류
	// ======================

	EventRejectedTotal      int64 // 트리거 payload 파싱 실패 / 배치 거부
	ObjectNotFoundTotal     int64 // 소스 오브젝트 없음
	StoreUnavailableTotal   int64 // S3 get/put 실패
	InferencePermanentTotal int64 // 재시도 불가 추론 에러 (비정상 응답 포함)
	InferenceExhaustedTotal int64 // throttling 이 retry budget 을 넘김
	OtherFailuresTotal      int64 // 로컬 I/O 등

	// ======================
	// HTTP 트리거 지표
	// ======================

	HTTPRequestsTotal                     int64 // /invoke 요청 수
	HTTPRequestsRejectedBodyTooLargeTotal int64 // MaxBodySize 초과
	HTTPRequestsRejectedBusyTotal         int64 // 동시 run 슬롯이 모두 사용 중 (503)

	// ======================
	// 추론 호출 지표
	// ======================

	// InferenceAttemptsTotal
	// - InvokeModel 호출 "시도" 횟수. 재시도 포함.
	InferenceAttemptsTotal int64

	// InferenceThrottledTotal
	// - throttling 계열 응답 횟수. 각 응답마다 backoff sleep 이 1회 발생한다.
	// - 지속적으로 증가하면 모델 quota 상향 또는 동시성 축소가 필요하다는 신호.
	InferenceThrottledTotal int64

	// InferenceBackoffMillisTotal
	// - backoff 로 대기한 누적 시간(ms).
	InferenceBackoffMillisTotal int64

	// ======================
	// S3 / 실패 리포트
	// ======================

	S3GetErrorsTotal int64
	S3PutErrorsTotal int64

	FailureReportsTotal      int64 // 업로드된 실패 리포트 수
	FailureReportErrorsTotal int64 // 실패 리포트 업로드 실패 (best-effort)
}

func New() *Metrics {
	return &Metrics{}
}

// Inc 는 m 의 counter 필드를 1 증가시킨다.
//
//	m.Inc(&m.RunsStartedTotal)
func (m *Metrics) Inc(counter *int64) {
	atomic.AddInt64(counter, 1)
}

// Add 는 m 의 counter 필드에 n 을 더한다.
func (m *Metrics) Add(counter *int64, n int64) {
	atomic.AddInt64(counter, n)
}

// Load 는 counter 값을 atomic 하게 읽는다.
func Load(counter *int64) int64 {
	return atomic.LoadInt64(counter)
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(1024)

	fmt.Fprintf(&sb, "runs_started_total=%d\n", atomic.LoadInt64(&m.RunsStartedTotal))
	fmt.Fprintf(&sb, "runs_succeeded_total=%d\n", atomic.LoadInt64(&m.RunsSucceededTotal))
	fmt.Fprintf(&sb, "runs_failed_total=%d\n", atomic.LoadInt64(&m.RunsFailedTotal))

	fmt.Fprintf(&sb, "event_rejected_total=%d\n", atomic.LoadInt64(&m.EventRejectedTotal))
	fmt.Fprintf(&sb, "object_not_found_total=%d\n", atomic.LoadInt64(&m.ObjectNotFoundTotal))
	fmt.Fprintf(&sb, "store_unavailable_total=%d\n", atomic.LoadInt64(&m.StoreUnavailableTotal))
	fmt.Fprintf(&sb, "inference_permanent_total=%d\n", atomic.LoadInt64(&m.InferencePermanentTotal))
	fmt.Fprintf(&sb, "inference_exhausted_total=%d\n", atomic.LoadInt64(&m.InferenceExhaustedTotal))
	fmt.Fprintf(&sb, "other_failures_total=%d\n", atomic.LoadInt64(&m.OtherFailuresTotal))

	fmt.Fprintf(&sb, "http_requests_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_body_too_large_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedBodyTooLargeTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_busy_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedBusyTotal))

	fmt.Fprintf(&sb, "inference_attempts_total=%d\n", atomic.LoadInt64(&m.InferenceAttemptsTotal))
	fmt.Fprintf(&sb, "inference_throttled_total=%d\n", atomic.LoadInt64(&m.InferenceThrottledTotal))
	fmt.Fprintf(&sb, "inference_backoff_ms_total=%d\n", atomic.LoadInt64(&m.InferenceBackoffMillisTotal))

	fmt.Fprintf(&sb, "s3_get_errors_total=%d\n", atomic.LoadInt64(&m.S3GetErrorsTotal))
	fmt.Fprintf(&sb, "s3_put_errors_total=%d\n", atomic.LoadInt64(&m.S3PutErrorsTotal))

	fmt.Fprintf(&sb, "failure_reports_total=%d\n", atomic.LoadInt64(&m.FailureReportsTotal))
	fmt.Fprintf(&sb, "failure_report_errors_total=%d\n", atomic.LoadInt64(&m.FailureReportErrorsTotal))

	return sb.String()
}
