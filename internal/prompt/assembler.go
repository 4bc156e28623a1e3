// Package prompt 는 고정 instruction 템플릿과 문서 본문을 합쳐
// 추론 요청(model.InferenceRequest)을 만든다.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"

	"docpipe/internal/model"
)

const (
	// SystemTemplateFile 은 system instruction 템플릿 파일 이름.
	SystemTemplateFile = "system.template"
	// MessageTemplateFile 은 user 메시지 템플릿 파일 이름.
	MessageTemplateFile = "message.template"

	// DocumentVar 는 message 템플릿 안에서 문서 본문이 들어갈 이름 (${document}).
	DocumentVar = "document"

	roleUser = "user"
)

// Assembler 는 템플릿을 한 번 읽어 두고 run 마다 요청을 만든다.
// 읽기 전용이므로 여러 run 에서 동시에 써도 안전하다.
type Assembler struct {
	system    string
	message   string
	modelID   string
	maxTokens int
}

// New 는 이미 로드된 템플릿 문자열로 Assembler 를 만든다.
func New(system, message, modelID string, maxTokens int) *Assembler {
	return &Assembler{
		system:    system,
		message:   message,
		modelID:   modelID,
		maxTokens: maxTokens,
	}
}

// Load 는 dir 아래의 system.template / message.template 를 읽는다.
func Load(dir, modelID string, maxTokens int) (*Assembler, error) {
	system, err := os.ReadFile(filepath.Join(dir, SystemTemplateFile))
	if err != nil {
		return nil, fmt.Errorf("read system template: %w", err)
	}
	message, err := os.ReadFile(filepath.Join(dir, MessageTemplateFile))
	if err != nil {
		return nil, fmt.Errorf("read message template: %w", err)
	}
	return New(string(system), string(message), modelID, maxTokens), nil
}

// System 은 로드된 system instruction.
func (a *Assembler) System() string {
	return a.system
}

// Assemble 은 문서 본문을 message 템플릿의 ${document} 자리에 넣고
// user 메시지 1개짜리 요청을 만든다.
func (a *Assembler) Assemble(documentText string) model.InferenceRequest {
	content := SafeSubstitute(a.message, map[string]string{DocumentVar: documentText})

	return model.InferenceRequest{
		ModelID:   a.modelID,
		MaxTokens: a.maxTokens,
		System:    a.system,
		Messages: []model.Message{
			{Role: roleUser, Content: content},
		},
	}
}
