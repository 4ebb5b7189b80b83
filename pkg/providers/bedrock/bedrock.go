// Package bedrock adapts the unified llm types to AWS Bedrock's Converse
// API. The RuntimeClient-interface-over-the-concrete-SDK-client shape and
// Converse/ConverseStream split are grounded on goa-ai's bedrock model
// client (features/model/bedrock/client.go) — pack enrichment, since the
// teacher repo has no Bedrock adapter of its own.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/llm"
	"github.com/litellm-go/gateway/pkg/providers"
)

// RuntimeClient is the subset of *bedrockruntime.Client the adapter calls,
// letting tests substitute a fake without a live AWS account.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Provider adapts Bedrock Converse to the gateway's unified shapes. One
// Provider is shared across every Bedrock deployment regardless of region,
// since the AWS SDK client itself is region-bound per Deployment.Region —
// newRuntime builds that client lazily per region on first use.
type Provider struct {
	clients map[string]RuntimeClient // region -> client
	newRuntime func(ctx context.Context, region string) (RuntimeClient, error)
}

// New builds a Bedrock adapter. newRuntime is injectable for tests; pass
// nil in production to use DefaultRuntimeFactory, which loads the AWS SDK's
// default credential chain per region.
func New(newRuntime func(ctx context.Context, region string) (RuntimeClient, error)) *Provider {
	if newRuntime == nil {
		newRuntime = DefaultRuntimeFactory
	}
	return &Provider{clients: make(map[string]RuntimeClient), newRuntime: newRuntime}
}

func (p *Provider) Name() string { return "bedrock" }

func (p *Provider) Capabilities() []providers.Capability {
	return []providers.Capability{providers.CapChat, providers.CapChatStream}
}

func (p *Provider) runtime(ctx context.Context, region string) (RuntimeClient, error) {
	if region == "" {
		region = "us-east-1"
	}
	if c, ok := p.clients[region]; ok {
		return c, nil
	}
	c, err := p.newRuntime(ctx, region)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.MissingCredential, err, "build bedrock runtime client for region %s", region)
	}
	p.clients[region] = c
	return c, nil
}

func encodeSystem(messages []llm.Message) ([]llm.Message, []brtypes.SystemContentBlock) {
	system, rest := providers.CollapseSystemMessages(messages)
	if system == "" {
		return rest, nil
	}
	return rest, []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: system}}
}

func encodeMessages(messages []llm.Message) []brtypes.Message {
	out := make([]brtypes.Message, 0, len(messages))
	for _, m := range messages {
		role := brtypes.ConversationRoleUser
		if m.Role == llm.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		var blocks []brtypes.ContentBlock
		if m.Role == llm.RoleTool {
			var result any
			if err := json.Unmarshal([]byte(m.Content.String()), &result); err != nil {
				result = m.Content.String()
			}
			blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{
				Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberJson{Value: toDocument(result)}},
				},
			})
			out = append(out, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: blocks})
			continue
		}
		if !m.Content.IsParts && m.Content.Text != "" {
			blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content.Text})
		}
		for _, part := range m.Content.Parts {
			if part.Type == llm.PartText {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: part.Text})
			}
		}
		for _, tc := range m.ToolCalls {
			var input any
			_ = json.Unmarshal([]byte(tc.Arguments), &input)
			blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
				Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(tc.ID), Name: aws.String(tc.Name), Input: toDocument(input),
				},
			})
		}
		out = append(out, brtypes.Message{Role: role, Content: blocks})
	}
	return out
}

func toDocument(v any) document.Interface {
	return document.NewLazyDocument(v)
}

func encodeTools(tools []llm.ToolDefinition) *brtypes.ToolConfiguration {
	var specs []brtypes.Tool
	for _, t := range tools {
		if t.BuiltinType != "" {
			continue
		}
		specs = append(specs, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(t.Parameters)},
			},
		})
	}
	if len(specs) == 0 {
		return nil
	}
	return &brtypes.ToolConfiguration{Tools: specs}
}

func buildInput(dep *llm.Deployment, req *llm.Request) (*bedrockruntime.ConverseInput, error) {
	rest, system := encodeSystem(req.Messages)
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(dep.Model),
		Messages: encodeMessages(rest),
		System:   system,
	}
	if toolConfig := encodeTools(req.Tools); toolConfig != nil {
		input.ToolConfig = toolConfig
	}
	cfg := &brtypes.InferenceConfiguration{}
	hasCfg := false
	if max := req.EffectiveMaxTokens(); max > 0 {
		m32 := int32(max)
		cfg.MaxTokens = &m32
		hasCfg = true
	}
	if req.Temperature != nil {
		t32 := float32(*req.Temperature)
		cfg.Temperature = &t32
		hasCfg = true
	}
	if hasCfg {
		input.InferenceConfig = cfg
	}
	return input, nil
}

func finishReasonFromStop(stop brtypes.StopReason) llm.FinishReason {
	switch stop {
	case brtypes.StopReasonToolUse:
		return llm.FinishToolUse
	case brtypes.StopReasonMaxTokens:
		return llm.FinishLength
	case brtypes.StopReasonContentFiltered:
		return llm.FinishContentFilter
	default:
		return llm.FinishStop
	}
}

func translateOutput(dep *llm.Deployment, output *bedrockruntime.ConverseOutput) (*llm.Response, error) {
	msgOutput, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, apierrors.New(apierrors.UpstreamError, "bedrock converse returned no message output")
	}
	msg := llm.Message{Role: llm.RoleAssistant}
	var parts []llm.ContentPart
	for _, block := range msgOutput.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			parts = append(parts, llm.ContentPart{Type: llm.PartText, Text: b.Value})
		case *brtypes.ContentBlockMemberToolUse:
			argsJSON, _ := json.Marshal(decodeDocument(b.Value.Input))
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID: aws.ToString(b.Value.ToolUseId), Name: aws.ToString(b.Value.Name), Arguments: string(argsJSON),
			})
		}
	}
	if len(parts) > 0 {
		msg.Content = llm.NewParts(parts...)
	}

	usage := llm.Usage{}
	if output.Usage != nil {
		usage.PromptTokens = int(aws.ToInt32(output.Usage.InputTokens))
		usage.CompletionTokens = int(aws.ToInt32(output.Usage.OutputTokens))
		if output.Usage.CacheReadInputTokens != nil {
			usage.CachedReadTokens = int(aws.ToInt32(output.Usage.CacheReadInputTokens))
		}
		if output.Usage.CacheWriteInputTokens != nil {
			usage.CachedWriteTokens = int(aws.ToInt32(output.Usage.CacheWriteInputTokens))
		}
	}
	usage.Normalize()

	finish := finishReasonFromStop(output.StopReason)
	if len(msg.ToolCalls) > 0 {
		finish = llm.FinishToolUse
	}

	return &llm.Response{
		Object: "chat.completion", Model: dep.Model,
		Choices: []llm.Choice{{Index: 0, FinishReason: finish, Message: msg}},
		Usage:   usage,
	}, nil
}

func decodeDocument(doc document.Interface) any {
	if doc == nil {
		return nil
	}
	var v any
	_ = doc.UnmarshalSmithyDocument(&v)
	return v
}

func (p *Provider) Chat(ctx context.Context, dep *llm.Deployment, req *llm.Request) (*llm.Response, error) {
	runtime, err := p.runtime(ctx, dep.Region)
	if err != nil {
		return nil, err
	}
	input, err := buildInput(dep, req)
	if err != nil {
		return nil, err
	}
	output, err := runtime.Converse(ctx, input)
	if err != nil {
		return nil, p.mapSDKError(err)
	}
	return translateOutput(dep, output)
}

// ChatStream implements providers.ChatStreamAdapter over Bedrock's event
// stream. ConverseStream delivers discrete Go event types rather than raw
// SSE bytes, so there is no byte-level parser to ground here — only the
// event-type switch, analogous in shape to the Anthropic adapter's
// content_block_delta/stop state machine.
func (p *Provider) ChatStream(ctx context.Context, dep *llm.Deployment, req *llm.Request) (<-chan llm.StreamChunk, error) {
	runtime, err := p.runtime(ctx, dep.Region)
	if err != nil {
		return nil, err
	}
	rest, system := encodeSystem(req.Messages)
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(dep.Model),
		Messages: encodeMessages(rest),
		System:   system,
	}
	if toolConfig := encodeTools(req.Tools); toolConfig != nil {
		input.ToolConfig = toolConfig
	}

	streamOut, err := runtime.ConverseStream(ctx, input)
	if err != nil {
		return nil, p.mapSDKError(err)
	}
	stream := streamOut.GetStream()
	if stream == nil {
		return nil, apierrors.New(apierrors.UpstreamError, "bedrock converse stream returned no event stream")
	}

	out := make(chan llm.StreamChunk, 64)
	go func() {
		defer close(out)
		defer stream.Close()

		var toolID, toolName string
		var toolArgs []byte

		for event := range stream.Events() {
			var delta llm.Delta
			var finish *llm.FinishReason

			switch e := event.(type) {
			case *brtypes.ConverseStreamOutputMemberContentBlockStart:
				if start, ok := e.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
					toolID = aws.ToString(start.Value.ToolUseId)
					toolName = aws.ToString(start.Value.Name)
					toolArgs = nil
				}
			case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
				switch d := e.Value.Delta.(type) {
				case *brtypes.ContentBlockDeltaMemberText:
					delta.Content = d.Value
				case *brtypes.ContentBlockDeltaMemberToolUse:
					toolArgs = append(toolArgs, []byte(aws.ToString(d.Value.Input))...)
				}
			case *brtypes.ConverseStreamOutputMemberContentBlockStop:
				if toolID != "" {
					delta.ToolCalls = []llm.ToolCall{{ID: toolID, Name: toolName, Arguments: string(toolArgs)}}
					toolID, toolName, toolArgs = "", "", nil
				}
			case *brtypes.ConverseStreamOutputMemberMessageStop:
				f := finishReasonFromStop(e.Value.StopReason)
				finish = &f
			case *brtypes.ConverseStreamOutputMemberMetadata:
				if e.Value.Usage != nil {
					u := llm.Usage{
						PromptTokens:     int(aws.ToInt32(e.Value.Usage.InputTokens)),
						CompletionTokens: int(aws.ToInt32(e.Value.Usage.OutputTokens)),
					}
					u.Normalize()
					select {
					case out <- llm.StreamChunk{Usage: &u}:
					case <-ctx.Done():
						return
					}
				}
				continue
			default:
				continue
			}

			chunk := llm.StreamChunk{Choices: []llm.StreamChoice{{Delta: delta, FinishReason: finish}}}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *Provider) mapSDKError(err error) *apierrors.Error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		kind := apierrors.UpstreamError
		switch apiErr.ErrorCode() {
		case "ThrottlingException":
			kind = apierrors.RateLimited
		case "ValidationException":
			kind = apierrors.BadRequest
		case "AccessDeniedException":
			kind = apierrors.PermissionDenied
		case "ResourceNotFoundException":
			kind = apierrors.NotFound
		case "ModelTimeoutException":
			kind = apierrors.Timeout
		}
		return &apierrors.Error{Kind: kind, Message: apiErr.ErrorMessage(), Code: apiErr.ErrorCode()}
	}
	return apierrors.Wrap(apierrors.UpstreamError, err, "bedrock request failed")
}

// MapError is unused for Bedrock (errors arrive as typed SDK errors, not
// HTTP status + body) but still implements providers.Adapter.
func (p *Provider) MapError(statusCode int, body []byte) *apierrors.Error {
	return apierrors.New(apierrors.UpstreamError, "bedrock error (HTTP %d): %s", statusCode, string(body))
}

