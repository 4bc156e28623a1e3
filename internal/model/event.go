// internal/model/event.go
package model

// StorageNotification
// ------------------------------------------------------------
// 트리거 이벤트에서 꺼낸 "새로 생성된 오브젝트" 하나.
// 파이프라인의 입력 단위이며 run 1회당 정확히 1개를 처리한다.
type StorageNotification struct {
	Bucket string `json:"bucket"` // 소스 버킷 이름
	Key    string `json:"key"`    // URL decode 된 오브젝트 키
}

// Message
// ------------------------------------------------------------
// 추론 요청의 role 태그가 붙은 메시지 1개.
type Message struct {
	Role    string `json:"role"`    // 현재는 항상 "user"
	Content string `json:"content"` // 템플릿 치환이 끝난 본문
}

// InferenceRequest
// ------------------------------------------------------------
// Prompt Assembler → Invoker 로 전달되는 요청.
// run 마다 새로 만들어지며 생성 후에는 변경하지 않는다.
type InferenceRequest struct {
	ModelID   string
	MaxTokens int
	System    string
	Messages  []Message
}

// OutputArtifact
// ------------------------------------------------------------
// 성공한 run 의 결과. 업로드된 산출물의 위치.
type OutputArtifact struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}
