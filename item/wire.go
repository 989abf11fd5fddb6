package item

import "encoding/json"

// Wire item type discriminators.
const (
	WireTypeMessage             = "message"
	WireTypeOutputText          = "output_text"
	WireTypeFunctionCall        = "function_call"
	WireTypeFunctionCallOutput  = "function_call_output"
	WireTypeFileSearch          = "file_search"
	WireTypeWebSearch           = "web_search"
	WireTypeComputerUse         = "computer_use"
	WireTypeLocalShell          = "local_shell"
)

// WireItem is the canonical on-wire shape for both request input items and
// response output items. Not every field is populated for every Type.
type WireItem struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	CallID  string          `json:"call_id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Role    string          `json:"role,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	// Arguments carries a function_call's JSON-encoded argument payload.
	Arguments json.RawMessage `json:"arguments,omitempty"`
	// Output carries a function_call_output's stringified result.
	Output string `json:"output,omitempty"`
}

// contentBlock is one element of a message's content array
// ({type:"output_text"|"text", text}).
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToWire renders an Item as the request-side WireItem the provider expects.
func ToWire(it Item) (WireItem, error) {
	switch v := it.(type) {
	case Message:
		content, err := json.Marshal(v.Content)
		if err != nil {
			return WireItem{}, err
		}
		return WireItem{Type: WireTypeMessage, ID: v.ID, Role: string(v.Role), Content: content}, nil
	case ToolCall:
		args := v.ArgumentsJSON
		if args == nil {
			args = json.RawMessage("{}")
		}
		return WireItem{
			Type: WireTypeFunctionCall, ID: v.ID, CallID: NormalizeCallID(v.CallID),
			Name: v.Name, Arguments: args,
		}, nil
	case HandoffCall:
		args := v.ArgumentsJSON
		if args == nil {
			args = json.RawMessage("{}")
		}
		return WireItem{
			Type: WireTypeFunctionCall, ID: v.ID, CallID: NormalizeCallID(v.CallID),
			Name: v.Name, Arguments: args,
		}, nil
	case ToolCallOutput:
		return WireItem{
			Type: WireTypeFunctionCallOutput, CallID: NormalizeCallID(v.CallID), Output: v.Output,
		}, nil
	default:
		return WireItem{}, nil
	}
}

// Text extracts the plain-text payload of a message WireItem's Content,
// accepting either a bare JSON string or an array of
// {type:"output_text"|"text", text} blocks.
func (w WireItem) Text() string {
	if len(w.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(w.Content, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(w.Content, &blocks); err == nil {
		out := ""
		for _, b := range blocks {
			out += b.Text
		}
		return out
	}
	return ""
}
