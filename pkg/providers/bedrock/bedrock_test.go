package bedrock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/litellm-go/gateway/pkg/llm"
)

type fakeRuntime struct {
	output *bedrockruntime.ConverseOutput
	err    error
}

func (f *fakeRuntime) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	return f.output, f.err
}

func (f *fakeRuntime) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, nil
}

func TestChatTranslatesConverseOutput(t *testing.T) {
	fake := &fakeRuntime{
		output: &bedrockruntime.ConverseOutput{
			StopReason: brtypes.StopReasonEndTurn,
			Output: &brtypes.ConverseOutputMemberMessage{
				Value: brtypes.Message{
					Role: brtypes.ConversationRoleAssistant,
					Content: []brtypes.ContentBlock{
						&brtypes.ContentBlockMemberText{Value: "hello from claude"},
					},
				},
			},
			Usage: &brtypes.TokenUsage{
				InputTokens:  aws.Int32(10),
				OutputTokens: aws.Int32(3),
			},
		},
	}

	p := New(func(ctx context.Context, region string) (RuntimeClient, error) { return fake, nil })
	dep := &llm.Deployment{Model: "anthropic.claude-3-5-sonnet-20241022-v2:0", Region: "us-east-1"}
	req := &llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: llm.NewText("hi")}}}

	resp, err := p.Chat(context.Background(), dep, req)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Choices[0].Message.Content.String() != "hello from claude" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content.String())
	}
	if resp.Usage.TotalTokens != 13 {
		t.Errorf("TotalTokens = %d, want 13", resp.Usage.TotalTokens)
	}
}
