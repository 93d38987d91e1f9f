package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIStructuredExtractor implements StructuredExtractor against a
// chat-completions endpoint, asking the model to return a single JSON
// object per chunk and stamping source_document onto the result so the
// aggregator can preserve provenance through its merge.
type OpenAIStructuredExtractor struct {
	client *openai.Client
	model  string
}

// NewOpenAIStructuredExtractor builds a client against baseURL (OpenAI's
// API or a compatible gateway) using model for every call.
func NewOpenAIStructuredExtractor(apiKey, baseURL, model string) *OpenAIStructuredExtractor {
	client := openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL))
	return &OpenAIStructuredExtractor{client: &client, model: model}
}

const structuredSystemPrompt = `You extract structured data from tender documents. ` +
	`Given a chunk of document text, return a single JSON object capturing the ` +
	`fields present (dates, amounts, line items, parties, requirements). ` +
	`Return valid JSON only, no prose.`

func (e *OpenAIStructuredExtractor) ExtractStructured(ctx context.Context, chunk string, sourceName string) ([]byte, error) {
	completion, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(structuredSystemPrompt),
			openai.UserMessage(fmt.Sprintf("Source document: %s\n\n%s", sourceName, chunk)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, classifyOpenAIErr(err)
	}
	if len(completion.Choices) == 0 {
		return nil, &LLMError{Err: errors.New("no completion choices returned")}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &payload); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("model did not return valid JSON: %w", err)}
	}
	payload["source_document"] = sourceName

	out, err := json.Marshal(payload)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return out, nil
}

func classifyOpenAIErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return &RateLimitError{Err: err}
		}
		if apiErr.StatusCode >= 500 {
			return &LLMError{Err: err}
		}
	}
	return &LLMError{Err: err}
}
