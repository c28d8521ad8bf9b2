package reasoner

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/carelane/carelane/internal/convo"
)

// Anthropic proposes steps via the messages API with tool use.
type Anthropic struct {
	client anthropic.Client
	model  string
}

func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (a *Anthropic) Propose(ctx context.Context, req Request) (Proposal, error) {
	var messages []anthropic.MessageParam
	for _, turn := range req.Turns {
		if turn.Role == convo.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Text)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text)))
	}
	if req.Hint != "" {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(
			"Your previous tool call was rejected: "+req.Hint+". Correct it and try again.")))
	}

	var tools []anthropic.ToolUnionParam
	for _, t := range req.Tools {
		tool := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: map[string]interface{}{}},
		}
		if t.Parameters != nil {
			if props, ok := t.Parameters["properties"].(map[string]interface{}); ok {
				tool.InputSchema = anthropic.ToolInputSchemaParam{Properties: props}
			}
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1024,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  messages,
		Tools:     tools,
	})
	if err != nil {
		return Proposal{}, fmt.Errorf("anthropic request failed: %w", err)
	}

	var proposal Proposal
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			proposal.RawText += b.Text
		case anthropic.ToolUseBlock:
			if proposal.Tool == nil {
				inputJSON, _ := json.Marshal(b.Input)
				proposal.Tool = &ToolCall{Name: b.Name, Arguments: inputJSON}
			}
		}
	}
	if proposal.Tool == nil {
		proposal.Reply = proposal.RawText
		proposal.RawText = ""
	}
	return proposal, nil
}
