package openaiadapter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaf-ai/raaf-go/apperr"
	"github.com/raaf-ai/raaf-go/item"
	"github.com/raaf-ai/raaf-go/provider"
	"github.com/raaf-ai/raaf-go/provider/openaiadapter"
)

type stubResponses struct {
	err error
}

func (s *stubResponses) New(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error) {
	return nil, s.err
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := openaiadapter.New(nil, openaiadapter.Options{DefaultModel: "gpt-5"})
	assert.Error(t, err)
}

func TestNew_RequiresDefaultModel(t *testing.T) {
	_, err := openaiadapter.New(&stubResponses{}, openaiadapter.Options{})
	assert.Error(t, err)
}

func TestNewFromAPIKey_RequiresKey(t *testing.T) {
	_, err := openaiadapter.NewFromAPIKey("", "gpt-5")
	assert.Error(t, err)
}

func TestClient_SupportsFunctionCalling(t *testing.T) {
	c, err := openaiadapter.New(&stubResponses{}, openaiadapter.Options{DefaultModel: "gpt-5"})
	require.NoError(t, err)
	assert.True(t, c.SupportsFunctionCalling())
}

func TestClient_ResponsesCompletion_RequiresInput(t *testing.T) {
	c, err := openaiadapter.New(&stubResponses{}, openaiadapter.Options{DefaultModel: "gpt-5"})
	require.NoError(t, err)
	_, err = c.ResponsesCompletion(context.Background(), provider.Request{Model: "gpt-5"})
	assert.Error(t, err)
}

func TestClient_ResponsesCompletion_TranslatesGenericError(t *testing.T) {
	boom := errors.New("connection refused")
	c, err := openaiadapter.New(&stubResponses{err: boom}, openaiadapter.Options{DefaultModel: "gpt-5"})
	require.NoError(t, err)

	_, err = c.ResponsesCompletion(context.Background(), provider.Request{
		Model: "gpt-5",
		Input: []item.WireItem{{Type: item.WireTypeMessage, Role: "user", Content: []byte(`"hello"`)}},
	})
	require.Error(t, err)
	pe, ok := apperr.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "openai", pe.Provider)
	assert.Equal(t, apperr.ProviderErrorKindUnknown, pe.Kind)
	assert.ErrorIs(t, pe, boom)
}
