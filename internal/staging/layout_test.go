package staging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLayout_RoundTrip(t *testing.T) {
	l := New("/tmp")

	keys := []string{
		"report.txt",
		"a/report.txt",
		"deep/nested/dir/file.pdf.txt",
		"with space/x y.txt",
	}

	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			p, err := l.LocalPath(key)
			if err != nil {
				t.Fatalf("LocalPath: %v", err)
			}
			if want := filepath.Join("/tmp", filepath.FromSlash(key)); p != want {
				t.Errorf("LocalPath = %q, want %q", p, want)
			}

			got, err := l.Key(p)
			if err != nil {
				t.Fatalf("Key: %v", err)
			}
			if got != key {
				t.Errorf("Key(LocalPath(%q)) = %q", key, got)
			}
		})
	}
}

func TestLayout_UnusualKeysRoundTrip(t *testing.T) {
	root := t.TempDir()
	l := New(root)

	keys := []string{
		"a//report.txt",
		"./a.txt",
		"a/./b.txt",
		"../x",
		"a/../../x",
		"/etc/passwd",
		"dir/",
		"100%.txt",
		"a/%2E%2E/b",
		"%00",
	}

	seen := make(map[string]string)
	for _, key := range keys {
		p, err := l.LocalPath(key)
		if err != nil {
			t.Fatalf("LocalPath(%q): %v", key, err)
		}
		if err := l.Contains(p); err != nil {
			t.Errorf("LocalPath(%q) = %q escapes root: %v", key, p, err)
		}
		if other, dup := seen[p]; dup {
			t.Errorf("keys %q and %q share staging path %q", other, key, p)
		}
		seen[p] = key

		got, err := l.Key(p)
		if err != nil {
			t.Fatalf("Key(%q): %v", p, err)
		}
		if got != key {
			t.Errorf("Key(LocalPath(%q)) = %q", key, got)
		}
	}

	// "a//report.txt" 와 "a/report.txt" 는 다른 오브젝트다.
	p1, _ := l.LocalPath("a//report.txt")
	p2, _ := l.LocalPath("a/report.txt")
	if p1 == p2 {
		t.Errorf("distinct keys share path %q", p1)
	}
}

func TestLayout_RejectsInvalid(t *testing.T) {
	l := New("/tmp/stage")

	if _, err := l.LocalPath(""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("LocalPath(\"\") err = %v, want ErrInvalidKey", err)
	}

	for _, p := range []string{"/tmp/stage", "/tmp/other/file.md", "/etc/passwd"} {
		if _, err := l.Key(p); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Key(%q) err = %v, want ErrInvalidKey", p, err)
		}
		if err := l.Contains(p); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Contains(%q) err = %v, want ErrInvalidKey", p, err)
		}
	}
}

func TestArtifactKey(t *testing.T) {
	tests := map[string]string{
		"a/report.txt":     "a/report.md",
		"report.txt":       "report.md",
		"a/report":         "a/report.md",
		"a.dir/report":     "a.dir/report.md",
		"a/archive.tar.gz": "a/archive.tar.md",
		"a/.env":           "a/.env.md",
		"a/report.md":      "a/report.md",
	}
	for in, want := range tests {
		if got := ArtifactKey(in); got != want {
			t.Errorf("ArtifactKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteArtifact_UniquePerRun(t *testing.T) {
	l := New(t.TempDir())

	// 확장자만 다른 두 문서는 같은 디렉토리에 서로 다른 산출물을 가진다.
	var paths []string
	for _, key := range []string{"a/r.txt", "a/r.pdf"} {
		doc, err := l.LocalPath(key)
		if err != nil {
			t.Fatal(err)
		}
		if err := l.EnsureDir(doc); err != nil {
			t.Fatal(err)
		}

		p, n, err := WriteArtifact(doc, strings.NewReader(key))
		if err != nil {
			t.Fatalf("WriteArtifact(%q): %v", key, err)
		}
		if n != int64(len(key)) {
			t.Errorf("bytes = %d, want %d", n, len(key))
		}
		if filepath.Dir(p) != filepath.Dir(doc) || filepath.Ext(p) != ArtifactExt {
			t.Errorf("artifact path = %q (doc %q)", p, doc)
		}
		if !strings.HasPrefix(filepath.Base(p), "r.") {
			t.Errorf("artifact name = %q, want r.*.md", filepath.Base(p))
		}
		paths = append(paths, p)
	}

	if paths[0] == paths[1] {
		t.Fatalf("artifacts share path %q", paths[0])
	}

	// 한쪽을 지워도 다른 쪽은 그대로다.
	if err := os.Remove(paths[0]); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(paths[1])
	if err != nil || string(got) != "a/r.pdf" {
		t.Errorf("second artifact = %q, err = %v", got, err)
	}

	// 산출물 경로는 어떤 키의 staging 경로와도 겹치지 않는다 (Key 로 되돌릴 수 없음).
	if _, err := l.Key(paths[1]); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Key(artifact) err = %v, want ErrInvalidKey", err)
	}
}

func TestEnsureDir_Idempotent(t *testing.T) {
	l := New(t.TempDir())

	p, err := l.LocalPath("x/y/z.txt")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := l.EnsureDir(p); err != nil {
			t.Fatalf("EnsureDir #%d: %v", i, err)
		}
	}
	if info, err := os.Stat(filepath.Dir(p)); err != nil || !info.IsDir() {
		t.Fatalf("dir not created: %v", err)
	}
}
