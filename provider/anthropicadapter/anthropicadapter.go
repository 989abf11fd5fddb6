// Package anthropicadapter implements provider.Provider on top of the
// Anthropic Claude Messages API: a narrow MessagesClient interface over
// *anthropic.MessageService so tests can substitute a stub, request/response
// translation functions kept free of SDK-specific state, and rate-limit
// detection mapped into the engine's typed ProviderError.
package anthropicadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/raaf-ai/raaf-go/apperr"
	"github.com/raaf-ai/raaf-go/item"
	"github.com/raaf-ai/raaf-go/provider"
)

// MessagesClient captures the subset of the Anthropic SDK used by this
// adapter, satisfied by *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter.
type Options struct {
	// DefaultModel is used when a Request's Model is empty.
	DefaultModel string
	// MaxTokens is the completion cap sent on every request.
	MaxTokens int
}

// Client adapts provider.Provider to the Anthropic Messages API.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
}

// New builds a Client over an existing MessagesClient.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropicadapter: client is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, defaultModel: opts.DefaultModel, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP client,
// authenticating with apiKey via option.WithAPIKey.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropicadapter: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// SupportsFunctionCalling always returns true; Claude Messages supports tool
// use on every model this adapter targets.
func (c *Client) SupportsFunctionCalling() bool { return true }

// ResponsesCompletion translates req into a Messages.New call and maps the
// reply back into the engine's wire-item Response shape.
func (c *Client) ResponsesCompletion(ctx context.Context, req provider.Request) (provider.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return provider.Response{}, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return provider.Response{}, translateError(err)
	}
	return translateResponse(msg), nil
}

func (c *Client) prepareRequest(req provider.Request) (*sdk.MessageNewParams, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	if modelID == "" {
		return nil, errors.New("anthropicadapter: model identifier is required")
	}

	msgs, err := encodeMessages(req.Input)
	if err != nil {
		return nil, err
	}

	maxTokens := c.maxTokens
	if v, ok := req.ModelParams["max_tokens"].(int); ok && v > 0 {
		maxTokens = v
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if tools := encodeTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	if t, ok := req.ModelParams["temperature"].(float64); ok {
		params.Temperature = sdk.Float(t)
	}
	return &params, nil
}

// encodeMessages renders the engine's items protocol as
// Anthropic message blocks: a message item becomes a user/assistant text
// block, a function_call becomes a tool_use block, and a
// function_call_output becomes a tool_result block attached to the next
// user turn.
func encodeMessages(items []item.WireItem) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(items))
	for _, w := range items {
		switch w.Type {
		case item.WireTypeMessage, item.WireTypeOutputText:
			text := w.Text()
			if text == "" {
				continue
			}
			switch w.Role {
			case "assistant":
				out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(text)))
			default:
				out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(text)))
			}
		case item.WireTypeFunctionCall:
			var input any
			if len(w.Arguments) > 0 {
				if err := json.Unmarshal(w.Arguments, &input); err != nil {
					return nil, fmt.Errorf("anthropicadapter: decode function_call arguments: %w", err)
				}
			}
			out = append(out, sdk.NewAssistantMessage(sdk.NewToolUseBlock(w.CallID, input, w.Name)))
		case item.WireTypeFunctionCallOutput:
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(w.CallID, w.Output, false)))
		}
	}
	if len(out) == 0 {
		return nil, errors.New("anthropicadapter: at least one message is required")
	}
	return out, nil
}

func encodeTools(defs []provider.ToolDef) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		schema := sdk.ToolInputSchemaParam{ExtraFields: d.Function.Parameters}
		u := sdk.ToolUnionParamOfTool(schema, d.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(d.Function.Description)
		}
		out = append(out, u)
	}
	return out
}

func translateResponse(msg *sdk.Message) provider.Response {
	var out []item.WireItem
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text == "" {
				continue
			}
			content, _ := json.Marshal(block.Text)
			out = append(out, item.WireItem{Type: item.WireTypeMessage, ID: msg.ID, Role: "assistant", Content: content})
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			out = append(out, item.WireItem{
				Type: item.WireTypeFunctionCall, ID: msg.ID, CallID: item.NormalizeCallID(block.ID),
				Name: block.Name, Arguments: args,
			})
		}
	}
	return provider.Response{
		ID:     msg.ID,
		Output: out,
		Model:  string(msg.Model),
		Usage: provider.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

func translateError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		kind := apperr.ProviderErrorKindUnknown
		retryable := false
		switch apiErr.StatusCode {
		case 401, 403:
			kind = apperr.ProviderErrorKindAuth
		case 429:
			kind, retryable = apperr.ProviderErrorKindRateLimited, true
		case 400, 404, 422:
			kind = apperr.ProviderErrorKindInvalidRequest
		case 500, 502, 503, 504:
			kind, retryable = apperr.ProviderErrorKindUnavailable, true
		}
		return &apperr.ProviderError{
			Provider: "anthropic", Operation: "messages.new", HTTP: apiErr.StatusCode,
			Kind: kind, Message: apiErr.Error(), Retryable: retryable, Cause: err,
		}
	}
	return &apperr.ProviderError{Provider: "anthropic", Operation: "messages.new", Kind: apperr.ProviderErrorKindUnknown, Cause: err}
}
