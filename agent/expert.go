package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const model = "gemini-2.5-pro"

// maxToolRounds bounds the function calls a single question can trigger.
const maxToolRounds = 8

// Expert is a chat with a model specialised by its system instruction and
// tools. An expert is itself a Tool, so that a facilitator can consult it.
type Expert struct {
	Name        string
	Description string
	Instruction string
	Tools       Toolbox

	chat *genai.Chat
}

// Config returns the model configuration of the expert.
func (e *Expert) Config() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: e.Instruction}}},
	}
	if len(e.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: e.Tools.Declarations()}}
	}
	return cfg
}

// Start opens the chat of the expert.
func (e *Expert) Start(ctx context.Context, client *genai.Client) error {
	chat, err := client.Chats.Create(ctx, model, e.Config(), nil)
	if err != nil {
		return fmt.Errorf("cannot start %s: %w", e.Name, err)
	}
	e.chat = chat
	return nil
}

// Ask sends parts to the expert and answers its function calls until it
// replies with text.
func (e *Expert) Ask(ctx context.Context, parts ...*genai.Part) (string, error) {
	if e.chat == nil {
		return "", fmt.Errorf("%s is not started", e.Name)
	}
	for range maxToolRounds {
		resp, err := e.chat.Send(ctx, parts...)
		if err != nil {
			return "", err
		}
		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			if text := strings.TrimSpace(resp.Text()); text != "" {
				return text, nil
			}
			return "", fmt.Errorf("no response from %s", e.Name)
		}
		if e.Tools == nil {
			return "", fmt.Errorf("%s has no tools to call", e.Name)
		}
		parts = nil
		for _, call := range calls {
			parts = append(parts, &genai.Part{FunctionResponse: e.Tools.Call(ctx, call)})
		}
	}
	return "", errors.New(e.Name + " keeps calling tools without answering")
}

// Declaration declares the expert as a tool taking a question.
func (e *Expert) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        e.Name,
		Description: e.Description,
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"question": {Type: genai.TypeString, Description: "The question to ask."},
			},
			Required: []string{"question"},
		},
		Response: &genai.Schema{Type: genai.TypeString, Description: "The answer, in markdown."},
	}
}

// Call asks the expert the question argument.
func (e *Expert) Call(ctx context.Context, args map[string]any) (string, error) {
	question, err := stringArg(args, "question")
	if err != nil {
		return "", err
	}
	return e.Ask(ctx, &genai.Part{Text: question})
}
