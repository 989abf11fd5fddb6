// Package grpcadapter implements provider.Provider by proxying
// responses_completion over gRPC to an out-of-process model server, the
// thinnest of this module's three concrete adapters: unlike anthropicadapter
// and openaiadapter, which translate against a vendor SDK's own typed
// request/response structs, this one has no generated service stub to
// translate against. It follows the same narrow-interface-over-a-client
// shape as the other two adapters, but encodes the canonical wire items as a
// google.golang.org/protobuf/types/known/structpb.Struct and invokes the
// remote method directly through grpc.ClientConnInterface, so any server
// that accepts a Struct-shaped request/reply pair on the method name below
// can stand in for a model provider without this module owning its .proto.
package grpcadapter

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/raaf-ai/raaf-go/apperr"
	"github.com/raaf-ai/raaf-go/provider"
)

// Method is the full gRPC method name this adapter invokes for every
// completion call.
const Method = "/raaf.provider.v1.Provider/ResponsesCompletion"

// Invoker captures the subset of grpc.ClientConnInterface used by this
// adapter, satisfied by *grpc.ClientConn.
type Invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// Options configures the adapter.
type Options struct {
	// DefaultModel is used when a Request's Model is empty.
	DefaultModel string
}

// Client adapts provider.Provider to a gRPC-hosted model server.
type Client struct {
	conn         Invoker
	defaultModel string
}

// New builds a Client over an existing Invoker (typically *grpc.ClientConn).
func New(conn Invoker, opts Options) (*Client, error) {
	if conn == nil {
		return nil, errors.New("grpcadapter: conn is required")
	}
	return &Client{conn: conn, defaultModel: opts.DefaultModel}, nil
}

// NewFromTarget dials target with insecure transport credentials and builds
// a Client over the resulting connection. Callers that need TLS or other
// grpc.DialOption values should dial themselves and call New directly.
func NewFromTarget(target string, opts Options) (*Client, error) {
	if target == "" {
		return nil, errors.New("grpcadapter: target is required")
	}
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, &apperr.ProviderError{Provider: "grpc", Operation: "dial", Kind: apperr.ProviderErrorKindUnknown, Cause: err}
	}
	return New(conn, opts)
}

// SupportsFunctionCalling always returns true; the wire protocol this
// adapter speaks carries tool definitions on every request regardless of
// what the remote server ultimately does with them.
func (c *Client) SupportsFunctionCalling() bool { return true }

// ResponsesCompletion marshals req into a structpb.Struct, invokes Method,
// and decodes the reply Struct back into the engine's Response shape.
func (c *Client) ResponsesCompletion(ctx context.Context, req provider.Request) (provider.Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	if modelID == "" {
		return provider.Response{}, errors.New("grpcadapter: model identifier is required")
	}
	req.Model = modelID

	args, err := encodeRequest(req)
	if err != nil {
		return provider.Response{}, err
	}

	reply := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, Method, args, reply); err != nil {
		return provider.Response{}, translateError(err)
	}

	resp, err := decodeResponse(reply)
	if err != nil {
		return provider.Response{}, err
	}
	return resp, nil
}

// encodeRequest renders a provider.Request as a structpb.Struct by
// round-tripping through encoding/json: Request's fields are already
// JSON-tagged item.WireItem/ToolDef shapes, so this reuses that codec
// instead of hand-walking the struct into protobuf Value nodes.
func encodeRequest(req provider.Request) (*structpb.Struct, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(asMap)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func decodeResponse(s *structpb.Struct) (provider.Response, error) {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return provider.Response{}, err
	}
	var resp provider.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return provider.Response{}, err
	}
	return resp, nil
}

func translateError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &apperr.ProviderError{Provider: "grpc", Operation: "ResponsesCompletion", Kind: apperr.ProviderErrorKindUnknown, Cause: err}
	}
	kind := apperr.ProviderErrorKindUnknown
	retryable := false
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		kind = apperr.ProviderErrorKindAuth
	case codes.ResourceExhausted:
		kind, retryable = apperr.ProviderErrorKindRateLimited, true
	case codes.InvalidArgument, codes.NotFound:
		kind = apperr.ProviderErrorKindInvalidRequest
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		kind, retryable = apperr.ProviderErrorKindUnavailable, true
	}
	return &apperr.ProviderError{
		Provider: "grpc", Operation: "ResponsesCompletion", Code: st.Code().String(),
		Kind: kind, Message: st.Message(), Retryable: retryable, Cause: err,
	}
}
