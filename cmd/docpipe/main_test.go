package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v2"
)

// testApp 은 os.Exit 하지 않도록 ExitErrHandler 를 바꾼 App.
func testApp(out *bytes.Buffer) *cli.App {
	app := newApp()
	app.Writer = out
	app.ErrWriter = out
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	if err != nil {
		return exitRunFailed
	}
	return 0
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	if err := testApp(&out).Run([]string{"docpipe", "--env-file", "", "version"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	var v versionResponse
	if err := json.Unmarshal(out.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if v.Version != version || v.Commit != commit {
		t.Errorf("version = %+v", v)
	}
}

func TestRun_FlagValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"nothing", []string{"run"}, "either --payload"},
		{"bucket only", []string{"run", "--bucket", "docs"}, "either --payload"},
		{"payload and key", []string{"run", "--payload", "e.json", "--bucket", "b", "--key", "k"}, "cannot be combined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			args := append([]string{"docpipe", "--env-file", ""}, tt.args...)

			err := testApp(&out).Run(args)
			if code := exitCode(err); code != exitRunFailed {
				t.Errorf("exit code = %d, want %d", code, exitRunFailed)
			}
			if err == nil || !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("err = %v, want %q", err, tt.msg)
			}
		})
	}
}

func TestRun_MissingConfigExitsWithConfigCode(t *testing.T) {
	for _, k := range []string{"INFERENCE_REGION", "MAX_TOKENS", "MODEL_ID", "ARTIFACT_BUCKET"} {
		t.Setenv(k, "")
	}

	var out bytes.Buffer
	err := testApp(&out).Run([]string{"docpipe", "--env-file", "", "run", "--bucket", "b", "--key", "k"})
	if code := exitCode(err); code != exitConfig {
		t.Errorf("exit code = %d, want %d (err %v)", code, exitConfig, err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DOCPIPE_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCPIPE_TEST_VALUE", "")
	os.Unsetenv("DOCPIPE_TEST_VALUE")

	var out bytes.Buffer
	if err := testApp(&out).Run([]string{"docpipe", "--env-file", path, "version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := os.Getenv("DOCPIPE_TEST_VALUE"); got != "from-file" {
		t.Errorf("DOCPIPE_TEST_VALUE = %q", got)
	}
}

func TestLoadEnvFile_MissingFileIgnored(t *testing.T) {
	var out bytes.Buffer
	missing := filepath.Join(t.TempDir(), "nope.env")
	if err := testApp(&out).Run([]string{"docpipe", "--env-file", missing, "version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestReadPayload(t *testing.T) {
	p := filepath.Join(t.TempDir(), "event.json")
	if err := os.WriteFile(p, []byte(`{"Records":[]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	b, err := readPayload(p, nil)
	if err != nil || string(b) != `{"Records":[]}` {
		t.Errorf("file payload = %q, %v", b, err)
	}

	b, err = readPayload("-", strings.NewReader("stdin-body"))
	if err != nil || string(b) != "stdin-body" {
		t.Errorf("stdin payload = %q, %v", b, err)
	}

	if _, err := readPayload(filepath.Join(t.TempDir(), "missing.json"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}
