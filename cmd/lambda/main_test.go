package main

import (
	"context"
	"errors"
	"testing"

	"docpipe/internal/model"
	"docpipe/internal/store"
	"docpipe/internal/trigger"

	"github.com/rs/zerolog"
)

type stubRunner struct {
	art model.OutputArtifact
	err error
	got []byte
}

func (s *stubRunner) Run(_ context.Context, payload []byte) (model.OutputArtifact, error) {
	s.got = payload
	return s.art, s.err
}

func TestHandler_TestEventIsNoop(t *testing.T) {
	h := newHandler(&stubRunner{err: trigger.ErrTestEvent}, zerolog.Nop())

	art, err := h(t.Context(), []byte(`{}`))
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if art != (model.OutputArtifact{}) {
		t.Errorf("artifact = %+v", art)
	}
}

func TestHandler_PropagatesErrors(t *testing.T) {
	runErr := &store.Error{Kind: store.ErrObjectNotFound, Op: "fetch", Err: errors.New("404")}
	h := newHandler(&stubRunner{err: runErr}, zerolog.Nop())

	if _, err := h(t.Context(), []byte(`{}`)); !errors.Is(err, store.ErrObjectNotFound) {
		t.Errorf("err = %v, want ErrObjectNotFound", err)
	}
}

func TestHandler_PassesPayload(t *testing.T) {
	r := &stubRunner{art: model.OutputArtifact{Bucket: "out", Key: "a.md"}}
	h := newHandler(r, zerolog.Nop())

	art, err := h(t.Context(), []byte(`{"Records":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(r.got) != `{"Records":[]}` || art.Key != "a.md" {
		t.Errorf("got payload %q, artifact %+v", r.got, art)
	}
}
