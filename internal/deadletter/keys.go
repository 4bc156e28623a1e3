package deadletter

import (
	"fmt"
	"sync/atomic"
	"time"
)

// keys.go
// ------------------------------------------------------------
// 실패 리포트 오브젝트 키 규칙.
//
//	<prefix>/dt=<YYYY-MM-DD>/hr=<HH>/<unix>_<instance>_<counter>.jsonl.gz
//
// 예:
//
//	failures/dt=2024-05-01/hr=13/1714568400_docpipe-1_000042.jsonl.gz
//
// 파티션은 UTC 기준. 파일명을 정렬하면 곧 시간 순 정렬이다.
// 확장자가 .jsonl.gz 이므로 산출물 키(.md)와 겹치지 않는다.
var globalCounter uint64

// NextCounter
// ------------------------------------------------------------
// 원자적 증가 값으로 여러 goroutine 에서 충돌 없이 순차 번호를 만든다.
// 1,000,000 에서 0 으로 돌아간다. timestamp·instance 조합과 함께 쓰므로
// wrap-around 되어도 파일명 충돌은 사실상 없다.
func NextCounter() uint64 {
	return atomic.AddUint64(&globalCounter, 1) % 1_000_000
}

// NewFilename 은 <unix>_<instance>_<counter>.jsonl.gz 형태의 파일명을 만든다.
func NewFilename(now time.Time, instanceID string) string {
	return fmt.Sprintf("%d_%s_%06d.jsonl.gz", now.Unix(), instanceID, NextCounter())
}

// Partition 은 now 의 UTC 날짜/시간 파티션 ("YYYY-MM-DD", "HH").
func Partition(now time.Time) (dt, hr string) {
	u := now.UTC()
	return u.Format("2006-01-02"), u.Format("15")
}

// BuildKey
// ------------------------------------------------------------
// <prefix>/dt=<YYYY-MM-DD>/hr=<HH>/<filename>
// Athena / Glue 파티션 스캔 비용을 줄이기 위한 표준 구조.
func BuildKey(prefix string, now time.Time, filename string) string {
	dt, hr := Partition(now)
	return fmt.Sprintf("%s/dt=%s/hr=%s/%s", prefix, dt, hr, filename)
}
