// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"docpipe/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// 애플리케이션 시작 시 한 번만 호출되는 로거 초기화 함수입니다.
// 생성한 Logger 를 반환하므로 각 컴포넌트에는 이 값을 직접 주입합니다.
// (전역 로거는 SDK / 표준 log 처럼 주입이 불가능한 곳을 위한 fallback 용도)
//
// [주요 기능]
//
//  1. 로그 포맷 자동 전환:
//     - 개발 환경 (LOG_PRETTY=true): 색상 텍스트 출력
//     - 운영 환경 (LOG_PRETTY=false): JSON 포맷 (CloudWatch Logs Insights 검색용)
//
//  2. 공통 필드 자동 추가:
//     - 모든 로그에 "service", "instance" 정보가 붙습니다.
//
// 사용 예:
//
//	log := logger.Init(cfg)
//	log.Info().Msg("pipeline ready")
func Init(cfg config.Config) zerolog.Logger {
	return InitWriter(cfg, os.Stdout)
}

// InitWriter 는 출력 대상을 지정할 수 있는 Init 이다.
func InitWriter(cfg config.Config, out io.Writer) zerolog.Logger {

	// -------------------------------------------------------------------
	// 1) 로그 레벨 결정
	// -------------------------------------------------------------------
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil && l != zerolog.NoLevel {
		level = l
	}

	zerolog.SetGlobalLevel(level)

	// -------------------------------------------------------------------
	// 2) 출력 방식 결정 (사람 vs 기계)
	// -------------------------------------------------------------------
	var w io.Writer = out
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	// -------------------------------------------------------------------
	// 3) 기본 Logger 생성 (공통 태그 부착)
	// -------------------------------------------------------------------
	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	// -------------------------------------------------------------------
	// 4) 전역 Logger 교체 + 표준 log 연결
	// -------------------------------------------------------------------
	zlog.Logger = logger

	stdlog.SetFlags(0)
	stdlog.SetOutput(logger)

	return logger
}
