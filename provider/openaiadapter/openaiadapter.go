// Package openaiadapter implements provider.Provider on top of the OpenAI
// Responses API via github.com/openai/openai-go. It keeps the same shape
// as the sibling anthropicadapter (a narrow client-subset interface,
// functional New/NewFromAPIKey constructors, encode/translate helper
// pairs) but targets the Responses endpoint rather than Chat Completions,
// since its input/output items already match the
// message/function_call/function_call_output wire protocol this engine
// uses end to end.
package openaiadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/raaf-ai/raaf-go/apperr"
	"github.com/raaf-ai/raaf-go/item"
	"github.com/raaf-ai/raaf-go/provider"
)

// ResponsesClient captures the subset of the openai-go client used by this
// adapter, satisfied by client.Responses.
type ResponsesClient interface {
	New(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error)
}

// Options configures the adapter.
type Options struct {
	DefaultModel string
}

// Client adapts provider.Provider to the OpenAI Responses API.
type Client struct {
	resp         ResponsesClient
	defaultModel string
}

// New builds a Client over an existing ResponsesClient.
func New(resp ResponsesClient, opts Options) (*Client, error) {
	if resp == nil {
		return nil, errors.New("openaiadapter: client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("openaiadapter: default model is required")
	}
	return &Client{resp: resp, defaultModel: modelID}, nil
}

// NewFromAPIKey constructs a Client using the default openai-go HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openaiadapter: api key is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Responses, Options{DefaultModel: defaultModel})
}

// SupportsFunctionCalling always returns true for the Responses API.
func (c *Client) SupportsFunctionCalling() bool { return true }

// ResponsesCompletion issues one Responses.New call and maps the reply back
// into the engine's wire-item Response shape.
func (c *Client) ResponsesCompletion(ctx context.Context, req provider.Request) (provider.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return provider.Response{}, err
	}
	resp, err := c.resp.New(ctx, *params)
	if err != nil {
		return provider.Response{}, translateError(err)
	}
	return translateResponse(resp), nil
}

func (c *Client) prepareRequest(req provider.Request) (*responses.ResponseNewParams, error) {
	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = c.defaultModel
	}
	if modelID == "" {
		return nil, errors.New("openaiadapter: model identifier is required")
	}
	if len(req.Input) == 0 {
		return nil, errors.New("openaiadapter: at least one input item is required")
	}

	input, err := encodeInput(req.Input)
	if err != nil {
		return nil, err
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(modelID),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	}
	if req.SystemPrompt != "" {
		params.Instructions = openai.String(req.SystemPrompt)
	}
	if req.PreviousResponseID != "" {
		params.PreviousResponseID = openai.String(req.PreviousResponseID)
	}
	if tools := encodeTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	if t, ok := req.ModelParams["temperature"].(float64); ok {
		params.Temperature = openai.Float(t)
	}
	return &params, nil
}

// encodeInput renders the engine's wire items directly as Responses API
// input items; the two protocols share the same message/function_call/
// function_call_output vocabulary by construction.
func encodeInput(items []item.WireItem) (responses.ResponseInputParam, error) {
	out := make(responses.ResponseInputParam, 0, len(items))
	for _, w := range items {
		switch w.Type {
		case item.WireTypeMessage, item.WireTypeOutputText:
			text := w.Text()
			if text == "" {
				continue
			}
			role := responses.EasyInputMessageRoleUser
			if w.Role == "assistant" {
				role = responses.EasyInputMessageRoleAssistant
			}
			out = append(out, responses.ResponseInputItemUnionParam{
				OfMessage: &responses.EasyInputMessageParam{
					Role:    role,
					Content: responses.EasyInputMessageContentUnionParam{OfString: openai.String(text)},
				},
			})
		case item.WireTypeFunctionCall:
			out = append(out, responses.ResponseInputItemUnionParam{
				OfFunctionCall: &responses.ResponseFunctionToolCallParam{
					CallID:    w.CallID,
					Name:      w.Name,
					Arguments: string(w.Arguments),
				},
			})
		case item.WireTypeFunctionCallOutput:
			out = append(out, responses.ResponseInputItemUnionParam{
				OfFunctionCallOutput: &responses.ResponseInputItemFunctionCallOutputParam{
					CallID: w.CallID,
					Output: w.Output,
				},
			})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("openaiadapter: no encodable input items")
	}
	return out, nil
}

func encodeTools(defs []provider.ToolDef) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        d.Name,
				Description: openai.String(d.Function.Description),
				Parameters:  d.Function.Parameters,
			},
		})
	}
	return out
}

func translateResponse(resp *responses.Response) provider.Response {
	var out []item.WireItem
	for _, o := range resp.Output {
		switch o.Type {
		case "message":
			var text strings.Builder
			for _, c := range o.Content {
				if c.Type == "output_text" {
					text.WriteString(c.Text)
				}
			}
			if text.Len() == 0 {
				continue
			}
			content, _ := json.Marshal(text.String())
			out = append(out, item.WireItem{Type: item.WireTypeMessage, ID: o.ID, Role: "assistant", Content: content})
		case "function_call":
			out = append(out, item.WireItem{
				Type: item.WireTypeFunctionCall, ID: o.ID, CallID: item.NormalizeCallID(o.CallID),
				Name: o.Name, Arguments: json.RawMessage(o.Arguments),
			})
		}
	}
	return provider.Response{
		ID:     resp.ID,
		Output: out,
		Model:  string(resp.Model),
		Usage: provider.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}
}

func translateError(err error) error {
	var apiErr *openai.Error
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
			Provider: "openai", Operation: "responses.new", HTTP: apiErr.StatusCode,
			Kind: kind, Message: apiErr.Message, Retryable: retryable, Cause: err,
		}
	}
	return &apperr.ProviderError{Provider: "openai", Operation: "responses.new", Kind: apperr.ProviderErrorKindUnknown, Cause: err}
}
