// Package staging 는 오브젝트 키와 로컬 staging 경로 사이의 매핑을 담당한다.
//
// 불변식:
//
//	Key(LocalPath(k)) == k   (비어 있지 않은 모든 키)
//
// S3 키는 "a//b", "./a", "../x" 처럼 파일시스템에서 의미가 달라지는 형태도
// 허용한다. 그런 segment 는 인코딩해서 항상 Root 하위의 고유한 경로가 되게 한다.
//
//	'%'  → "%25"
//	""   → "%00"
//	"."  → "%2E"
//	".." → "%2E%2E"
package staging

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactExt 는 산출물 키에 붙는 확장자.
const ArtifactExt = ".md"

// artifactTag 는 로컬 산출물 파일 이름에만 쓰인다.
// 인코딩된 키에서 '%' 뒤에는 항상 hex 두 자리가 오므로 키 경로와 겹치지 않는다.
const artifactTag = "%~"

// ErrInvalidKey 는 비어 있는 키, 또는 staging root 밖의 경로.
var ErrInvalidKey = errors.New("invalid object key")

// Layout 은 staging root 하나에 대한 키 <-> 경로 매핑.
type Layout struct {
	root string
}

// New 는 root 를 정규화(Clean)해서 Layout 을 만든다.
func New(root string) Layout {
	return Layout{root: filepath.Clean(root)}
}

// Root 는 정규화된 staging root.
func (l Layout) Root() string {
	return l.root
}

// LocalPath 는 오브젝트 키를 <root>/<key> 로컬 경로로 변환한다.
func (l Layout) LocalPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = encodeSegment(seg)
	}
	return filepath.Join(l.root, filepath.Join(segs...)), nil
}

// Key 는 LocalPath 의 역변환이다.
func (l Layout) Key(localPath string) (string, error) {
	rel, err := l.rel(localPath)
	if err != nil {
		return "", err
	}

	segs := strings.Split(filepath.ToSlash(rel), "/")
	for i, seg := range segs {
		dec, err := decodeSegment(seg)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidKey, localPath, err)
		}
		segs[i] = dec
	}
	return strings.Join(segs, "/"), nil
}

// Contains 는 localPath 가 root 하위인지 확인한다.
func (l Layout) Contains(localPath string) error {
	_, err := l.rel(localPath)
	return err
}

func (l Layout) rel(localPath string) (string, error) {
	rel, err := filepath.Rel(l.root, filepath.Clean(localPath))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidKey, localPath, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is outside %s", ErrInvalidKey, localPath, l.root)
	}
	return rel, nil
}

func encodeSegment(seg string) string {
	switch seg {
	case "":
		return "%00"
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	return strings.ReplaceAll(seg, "%", "%25")
}

func decodeSegment(seg string) (string, error) {
	if seg == "%00" {
		return "", nil
	}
	return url.PathUnescape(seg)
}

// EnsureDir 는 localPath 의 상위 디렉토리를 만든다 (이미 있으면 no-op).
// 키마다 다른 디렉토리 경로를 쓰므로 서로 다른 키에 대해 동시 호출해도 안전하다.
func (l Layout) EnsureDir(localPath string) error {
	return os.MkdirAll(filepath.Dir(localPath), 0o755)
}

// WriteArtifact 는 documentPath 옆에 run 마다 고유한 .md 파일을 만들고 r 을 기록한다.
//
//	<dir>/report.txt → <dir>/report.%~<random>.md
//
// 확장자만 다른 키("a/r.txt", "a/r.pdf")의 run 이 동시에 돌아도 서로의
// 산출물을 덮어쓰거나 지우지 않는다. 실패하면 파일은 남지 않는다.
func WriteArtifact(documentPath string, r io.Reader) (string, int64, error) {
	stem := replaceExt(filepath.Base(documentPath), filepath.Separator)

	f, err := os.CreateTemp(filepath.Dir(documentPath), stem+"."+artifactTag+"*"+ArtifactExt)
	if err != nil {
		return "", 0, err
	}
	dst := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return "", 0, err
	}

	n, err := WriteAtomic(dst, r)
	if err != nil {
		_ = os.Remove(dst)
		return "", 0, err
	}
	return dst, n, nil
}

// ArtifactKey 는 소스 키의 확장자를 .md 로 바꾼 키.
//
//	"a/report.txt" → "a/report.md"
//	"a/report"     → "a/report.md"
//	"a/.env"       → "a/.env.md"
func ArtifactKey(key string) string {
	return replaceExt(key, '/') + ArtifactExt
}

// replaceExt 는 마지막 path 요소의 확장자를 제거한다.
// 선행 '.' 만 있는 이름(dotfile)은 확장자로 취급하지 않는다.
func replaceExt(p string, sep byte) string {
	base := p
	if i := strings.LastIndexByte(p, sep); i >= 0 {
		base = p[i+1:]
	}
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 || strings.Trim(base[:dot], ".") == "" {
		return p
	}
	return p[:len(p)-len(base)+dot]
}

// WriteAtomic 은 r 을 dst 와 같은 디렉토리의 임시 파일에 쓴 뒤 rename 한다.
// 실패하면 dst 에는 아무것도 보이지 않는다.
func WriteAtomic(dst string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}
