// Package main 은 docpipe 로컬 / 컨테이너 실행용 CLI 이다.
//
//	docpipe run --bucket docs --key a/report.txt
//	docpipe run --payload event.json
//	docpipe serve
//	docpipe version
//
// 설정은 환경 변수에서 읽으며, --env-file(.env)이 있으면 먼저 로드한다.
// 이미 설정된 환경 변수는 덮어쓰지 않는다.
//
// run 종료 코드:
//   - 0: 성공
//   - 1: run 실패
//   - 2: 설정 오류
//   - 3: 추론 retry budget 소진 (나중에 다시 실행하면 성공할 수 있음)
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

// ldflags 로 주입된다.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Exit(exitRunFailed)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "docpipe",
		Usage:          "Transform stored documents into markdown artifacts via Bedrock",
		Version:        fmt.Sprintf("%s (commit: %s)", version, commit),
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before reading configuration (ignored if missing)",
				Value: ".env",
			},
		},
		Before: loadEnvFile,
		Commands: []*cli.Command{
			runCommand(),
			serveCommand(),
			versionCommand(),
		},
	}
}

// loadEnvFile 은 --env-file 을 읽는다. 파일이 없으면 조용히 넘어간다.
func loadEnvFile(c *cli.Context) error {
	path := c.String("env-file")
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return cli.Exit(fmt.Sprintf("load %s: %v", path, err), exitConfig)
	}
	return nil
}

// exitErrHandler 는 cli.Exit() 의 종료 코드를 그대로 유지한다.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() 는 "exit status N" 이므로 출력하지 않는다.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitRunFailed)
}
