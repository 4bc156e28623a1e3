package inference

import (
	"context"
	"fmt"

	"docpipe/internal/config"
	"docpipe/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	json "github.com/goccy/go-json"
)

// AnthropicVersion 은 Bedrock messages API 요청에 고정으로 들어가는 버전.
const AnthropicVersion = "bedrock-2023-05-31"

// API 는 Invoker 가 사용하는 Bedrock runtime 호출.
// *bedrockruntime.Client 가 그대로 만족한다.
type API interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// NewBedrockClient 는 추론 리전으로 Bedrock runtime client 를 만든다.
//
//   - SDK retry 는 끈다 (NopRetryer). 재시도 판단은 Invoker 가 단독으로 한다.
//     두 레이어가 겹치면 시도 횟수와 backoff 가 예측 불가능해진다.
//   - HTTP client timeout = 시도당 read timeout.
func NewBedrockClient(ctx context.Context, cfg config.Config) (*bedrockruntime.Client, error) {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, awsCfgLib.WithRegion(cfg.InferenceRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	httpClient := awshttp.NewBuildableClient().WithTimeout(cfg.InferenceReadTimeout)

	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		o.Retryer = aws.NopRetryer{}
		o.HTTPClient = httpClient
	})

	return client, nil
}

// messagesRequest 는 InvokeModel body (Anthropic messages 형식).
type messagesRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system"`
	Messages         []model.Message `json:"messages"`
}

// messagesResponse 는 InvokeModel 응답 body 중 필요한 부분.
type messagesResponse struct {
	Content []struct {
		Type string  `json:"type"`
		Text *string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func encodeRequest(req model.InferenceRequest) ([]byte, error) {
	return json.Marshal(messagesRequest{
		AnthropicVersion: AnthropicVersion,
		MaxTokens:        req.MaxTokens,
		System:           req.System,
		Messages:         req.Messages,
	})
}

// decodeText 는 content[0].text 를 꺼낸다. 없으면 ErrMalformedResponse.
func decodeText(body []byte) (string, string, error) {
	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(resp.Content) == 0 || resp.Content[0].Text == nil {
		return "", "", fmt.Errorf("%w: missing content[0].text", ErrMalformedResponse)
	}
	return *resp.Content[0].Text, resp.StopReason, nil
}
