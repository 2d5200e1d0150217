package agent

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/genai"
)

// Tool is a function a model can call.
type Tool interface {
	Declaration() *genai.FunctionDeclaration
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Toolbox dispatches function calls to tools by name.
type Toolbox map[string]Tool

// NewToolbox returns the toolbox of tools.
func NewToolbox[T Tool](tools ...T) Toolbox {
	box := make(Toolbox, len(tools))
	for _, t := range tools {
		box[t.Declaration().Name] = t
	}
	return box
}

// Declarations lists the declarations of the tools, for a model config.
func (box Toolbox) Declarations() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(box))
	for _, t := range box {
		decls = append(decls, t.Declaration())
	}
	return decls
}

// Call runs a function call. Failures are reported to the model in the
// "error" field of the response, never to the caller.
func (box Toolbox) Call(ctx context.Context, call *genai.FunctionCall) *genai.FunctionResponse {
	resp := &genai.FunctionResponse{ID: call.ID, Name: call.Name, Response: map[string]any{}}
	t, ok := box[call.Name]
	if !ok {
		resp.Response["error"] = fmt.Sprintf("unknown function %s", call.Name)
		return resp
	}
	out, err := t.Call(ctx, call.Args)
	if err != nil {
		log.Printf("tool %s failed: %v", call.Name, err)
		resp.Response["error"] = err.Error()
		return resp
	}
	log.Printf("tool %s(%v): %d bytes", call.Name, call.Args, len(out))
	resp.Response["output"] = out
	return resp
}

// stringArg returns the string argument name of a function call.
func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", fmt.Errorf("missing argument %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q is a %T, want a string", name, v)
	}
	return s, nil
}
