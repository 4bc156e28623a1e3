package pool

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ---------------------------------------------------------------
// Pool 구성 목적
//
// HTTP 트리거 요청 body 읽기, 실패 리포트 gzip 인코딩 등
// 요청마다 반복되는 버퍼 할당을 재사용한다.
// ---------------------------------------------------------------

var (
	// BodyPool:
	//   - 트리거 payload(POST body)를 임시 저장하는 버퍼
	//   - 초기 용량 4KB (S3 알림 1건은 대부분 여기에 수용됨)
	//   - 너무 큰 버퍼는 caller(maxCap 조건)에서 재사용하지 않음
	BodyPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 4*1024))
		},
	}

	// BufferPool:
	//   - gzip 인코딩 결과를 담는 임시 버퍼
	//   - 실패 리포트는 레코드 몇 개 수준이라 초기 용량 16KB
	BufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 16*1024))
		},
	}

	// GzipPool:
	//   - gzip.Writer 재사용 (매번 new 하면 비용 매우 큼)
	//   - BestSpeed: 리포트는 작고, 실패 경로를 오래 붙잡지 않는 것이 우선
	GzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

// Pool에 되돌려줄 최대 gzip 버퍼 용량
// 이보다 큰 버퍼는 Pool에 넣지 않고 GC에게 위임한다.
const MaxBufferCap = 1 * 1024 * 1024 // 1MB

// PutBody:
//   - BodyPool에 buf를 반환할지 결정.
//   - maxCap(보통 MaxBodySize*2)보다 크면 버려서 GC로.
func PutBody(buf *bytes.Buffer, maxCap int64) {
	if int64(buf.Cap()) <= maxCap {
		buf.Reset()
		BodyPool.Put(buf)
	}
}

// PutBuffer:
//   - gzip 결과 버퍼 반환
//   - 1MB 이하이면 풀에 재사용
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		BufferPool.Put(buf)
	}
}
