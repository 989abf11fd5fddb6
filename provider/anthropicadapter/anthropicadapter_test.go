package anthropicadapter_test

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaf-ai/raaf-go/apperr"
	"github.com/raaf-ai/raaf-go/item"
	"github.com/raaf-ai/raaf-go/provider"
	"github.com/raaf-ai/raaf-go/provider/anthropicadapter"
)

type stubMessages struct {
	err error
}

func (s *stubMessages) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	return nil, s.err
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := anthropicadapter.New(nil, anthropicadapter.Options{})
	assert.Error(t, err)
}

func TestNewFromAPIKey_RequiresKey(t *testing.T) {
	_, err := anthropicadapter.NewFromAPIKey("", "claude-3")
	assert.Error(t, err)
}

func TestClient_SupportsFunctionCalling(t *testing.T) {
	c, err := anthropicadapter.New(&stubMessages{}, anthropicadapter.Options{DefaultModel: "claude-3"})
	require.NoError(t, err)
	assert.True(t, c.SupportsFunctionCalling())
}

func TestClient_ResponsesCompletion_RequiresModel(t *testing.T) {
	c, err := anthropicadapter.New(&stubMessages{}, anthropicadapter.Options{})
	require.NoError(t, err)
	_, err = c.ResponsesCompletion(context.Background(), provider.Request{})
	assert.Error(t, err)
}

func TestClient_ResponsesCompletion_TranslatesGenericError(t *testing.T) {
	boom := errors.New("connection refused")
	c, err := anthropicadapter.New(&stubMessages{err: boom}, anthropicadapter.Options{DefaultModel: "claude-3"})
	require.NoError(t, err)

	_, err = c.ResponsesCompletion(context.Background(), provider.Request{
		Model: "claude-3",
		Input: []item.WireItem{{Type: item.WireTypeMessage, Role: "user", Content: []byte(`"hello"`)}},
	})
	require.Error(t, err)
	pe, ok := apperr.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "anthropic", pe.Provider)
	assert.Equal(t, apperr.ProviderErrorKindUnknown, pe.Kind)
	assert.ErrorIs(t, pe, boom)
}
