package deadletter

import (
	"bytes"

	"docpipe/internal/pool"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// EncodeJSONLGZ 는 레코드들을 JSONL 로 줄 단위 인코딩한 뒤 gzip 압축해 반환한다.
//
// 반환값은 호출자 소유의 새 slice 이다.
// pool 버퍼를 그대로 반환하면 재사용 시 데이터가 깨진다.
func EncodeJSONLGZ(records []Record) ([]byte, error) {

	// ------------------------------------------------------------
	// 1) 결과 버퍼 / gzip.Writer 를 pool 에서 가져온다.
	// ------------------------------------------------------------
	buf := pool.BufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	gz := pool.GzipPool.Get().(*gzip.Writer)
	gz.Reset(buf)

	// ------------------------------------------------------------
	// 2) 레코드마다 한 줄씩 gz writer 로 바로 인코딩
	// ------------------------------------------------------------
	enc := json.NewEncoder(gz)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			_ = gz.Close()
			pool.GzipPool.Put(gz)
			pool.PutBuffer(buf)
			return nil, err
		}
	}

	// ------------------------------------------------------------
	// 3) gzip footer flush & close
	// ------------------------------------------------------------
	if err := gz.Close(); err != nil {
		pool.GzipPool.Put(gz)
		pool.PutBuffer(buf)
		return nil, err
	}
	pool.GzipPool.Put(gz)

	// ------------------------------------------------------------
	// 4) caller 소유 slice 로 복사 후 버퍼 반환
	// ------------------------------------------------------------
	raw := buf.Bytes()
	data := make([]byte, len(raw))
	copy(data, raw)

	pool.PutBuffer(buf)

	return data, nil
}
