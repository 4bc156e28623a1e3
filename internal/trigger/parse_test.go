package trigger

import (
	"errors"
	"testing"

	json "github.com/goccy/go-json"
)

// envelope 는 S3 레코드 JSON 을 SQS body 문자열로 감싼다.
func envelope(t *testing.T, bodies ...string) []byte {
	t.Helper()

	recs := make([]map[string]string, 0, len(bodies))
	for _, b := range bodies {
		recs = append(recs, map[string]string{"messageId": "m", "body": b})
	}
	out, err := json.Marshal(map[string]any{"Records": recs})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func s3Record(bucket, key string) string {
	return `{"eventSource":"aws:s3","eventName":"ObjectCreated:Put","s3":{"bucket":{"name":"` + bucket + `"},"object":{"key":"` + key + `","size":5}}}`
}

func s3Records(recs ...string) string {
	body := `{"Records":[`
	for i, r := range recs {
		if i > 0 {
			body += ","
		}
		body += r
	}
	return body + `]}`
}

func TestParse(t *testing.T) {
	n, err := Parse(envelope(t, s3Records(s3Record("docs", "a/report.txt"))))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n.Bucket != "docs" || n.Key != "a/report.txt" {
		t.Errorf("got %+v", n)
	}
}

func TestParse_URLDecodesKey(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"a/my+report.txt", "a/my report.txt"},
		{"a/%ED%95%9C%EA%B8%80.txt", "a/한글.txt"},
		{"a/x%2By.txt", "a/x+y.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			n, err := Parse(envelope(t, s3Records(s3Record("docs", tt.raw))))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if n.Key != tt.want {
				t.Errorf("key = %q, want %q", n.Key, tt.want)
			}
		})
	}
}

func TestParse_RejectsBatches(t *testing.T) {
	one := s3Records(s3Record("docs", "a.txt"))

	tests := []struct {
		name    string
		payload []byte
	}{
		{"two envelope records", envelope(t, one, one)},
		{"two storage records", envelope(t, s3Records(s3Record("docs", "a.txt"), s3Record("docs", "b.txt")))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.payload); !errors.Is(err, ErrUnsupportedBatch) {
				t.Errorf("err = %v, want ErrUnsupportedBatch", err)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte("nope")},
		{"no records", []byte(`{"Records":[]}`)},
		{"missing records", []byte(`{}`)},
		{"empty body", envelope(t, "")},
		{"body not json", envelope(t, "{{")},
		{"no storage records", envelope(t, `{"Records":[]}`)},
		{"missing bucket", envelope(t, s3Records(s3Record("", "a.txt")))},
		{"missing key", envelope(t, s3Records(s3Record("docs", "")))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.payload)
			if !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("err = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

func TestParse_TestEvent(t *testing.T) {
	body := `{"Service":"Amazon S3","Event":"s3:TestEvent","Time":"2024-01-01T00:00:00.000Z","Bucket":"docs"}`
	if _, err := Parse(envelope(t, body)); !errors.Is(err, ErrTestEvent) {
		t.Errorf("err = %v, want ErrTestEvent", err)
	}
}
