package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"docpipe/internal/inference"
	"docpipe/internal/metrics"
	"docpipe/internal/model"
	"docpipe/internal/pipeline"
	"docpipe/internal/pool"
	"docpipe/internal/staging"
	"docpipe/internal/store"
	"docpipe/internal/trigger"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Runner 는 트리거 payload 1건을 처리한다. *pipeline.Pipeline 이 만족한다.
type Runner interface {
	Run(ctx context.Context, payload []byte) (model.OutputArtifact, error)
}

type Handler struct {
	runner      Runner
	metrics     *metrics.Metrics
	log         zerolog.Logger
	maxBodySize int64

	// 동시 run 슬롯. 가득 차면 503 으로 거절한다.
	slots chan struct{}
}

func NewHandler(r Runner, m *metrics.Metrics, log zerolog.Logger, maxBodySize int64, maxConcurrent int) *Handler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Handler{
		runner:      r,
		metrics:     m,
		log:         log,
		maxBodySize: maxBodySize,
		slots:       make(chan struct{}, maxConcurrent),
	}
}

// Routes 는 /invoke, /metrics, /health 를 등록한 mux 를 반환한다.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/invoke", h.HandleInvoke)
	mux.HandleFunc("/metrics", h.HandleMetrics)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	return mux
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Stage string `json:"stage,omitempty"`
}

// HandleInvoke
//
// 트리거 payload(SQS envelope JSON)를 POST body 로 받아 run 1회를 동기 실행한다.
//
//   - 200: 업로드된 산출물 위치 {"bucket","key"}
//   - 204: s3:TestEvent (처리할 오브젝트 없음)
//   - 4xx/5xx: StatusFor 참고, body 는 {"error","kind","stage"}
//
// run 은 요청 context 에 묶인다. 클라이언트가 끊으면 backoff 대기도 중단된다.
func (h *Handler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// --------------------------------------------------------------------
	// 요청 Body 최대 크기 강제 제한
	// --------------------------------------------------------------------
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	defer r.Body.Close()

	buf := pool.BodyPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer pool.PutBody(buf, h.maxBodySize*2)

	if _, err := io.Copy(buf, r.Body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.Inc(&h.metrics.HTTPRequestsRejectedBodyTooLargeTotal)
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		// 클라이언트 연결 끊김 등 body 읽기 실패
		h.log.Debug().Err(err).Msg("read request body")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.metrics.Inc(&h.metrics.HTTPRequestsTotal)

	// --------------------------------------------------------------------
	// 동시 실행 슬롯 확보. 가득 찬 경우 → 즉시 503 (backpressure)
	// --------------------------------------------------------------------
	select {
	case h.slots <- struct{}{}:
		defer func() { <-h.slots }()
	default:
		h.metrics.Inc(&h.metrics.HTTPRequestsRejectedBusyTotal)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	art, err := h.runner.Run(r.Context(), buf.Bytes())
	if errors.Is(err, trigger.ErrTestEvent) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		resp := errorResponse{Error: err.Error(), Kind: pipeline.ErrorKind(err)}
		var se *pipeline.StageError
		if errors.As(err, &se) {
			resp.Stage = string(se.Stage)
		}
		writeJSON(w, StatusFor(err), resp, h.log)
		return
	}

	writeJSON(w, http.StatusOK, art, h.log)
}

// HandleMetrics
//
// 파이프라인 카운터를 text 로 출력한다.
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.metrics.String())
}

// StatusFor 는 run 에러를 HTTP status 로 바꾼다.
//
//	malformed / batch / loop / invalid key → 400
//	object not found        → 404
//	retries exhausted       → 429 (호출자가 나중에 다시 시도할 수 있음)
//	permanent / store       → 502
//	그 외                    → 500
func StatusFor(err error) int {
	switch {
	case errors.Is(err, trigger.ErrMalformedEvent), errors.Is(err, trigger.ErrUnsupportedBatch),
		errors.Is(err, pipeline.ErrSourceIsArtifact), errors.Is(err, staging.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, inference.ErrRetriesExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, inference.ErrPermanent), errors.Is(err, store.ErrStoreUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}
