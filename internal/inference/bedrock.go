package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/opsgate/triago/pkg/schema"
)

// converseAPI abstracts the Bedrock runtime method used, for testability.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

const defaultMaxTokens = 4096

// BedrockInferencer implements Inferencer via the AWS Bedrock Converse API.
type BedrockInferencer struct {
	model  string
	client converseAPI
	logger *slog.Logger
}

// NewBedrockInferencer creates an inferencer using the default AWS credential chain.
func NewBedrockInferencer(ctx context.Context, region, model string, logger *slog.Logger) (*BedrockInferencer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &BedrockInferencer{
		model:  model,
		client: bedrockruntime.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// newBedrockInferencerWithClient creates a BedrockInferencer with an injected
// client (for testing).
func newBedrockInferencerWithClient(model string, client converseAPI, logger *slog.Logger) *BedrockInferencer {
	return &BedrockInferencer{model: model, client: client, logger: logger}
}

// InferText implements Inferencer.
func (b *BedrockInferencer) InferText(ctx context.Context, system, prompt string) (string, error) {
	return b.converse(ctx, system, prompt)
}

// InferObject implements Inferencer. The declared shape is appended to the
// system instruction so the model emits conforming JSON; the response text is
// decoded into a map. Conformance itself is the caller's check.
func (b *BedrockInferencer) InferObject(ctx context.Context, system, prompt string, shape json.RawMessage) (map[string]any, error) {
	system = fmt.Sprintf(
		"%s\n\nRespond with a single JSON object conforming to this JSON Schema, with no commentary:\n%s",
		system, string(shape),
	)

	text, err := b.converse(ctx, system, prompt)
	if err != nil {
		return nil, err
	}

	obj, ok := extractJSON(text)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeInference, "model response is not a JSON object").
			WithDetails(map[string]any{"response": text})
	}
	return obj, nil
}

func (b *BedrockInferencer) converse(ctx context.Context, system, prompt string) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.model),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		},
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: prompt},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(defaultMaxTokens),
		},
	}

	output, err := b.client.Converse(ctx, input)
	if err != nil {
		return "", mapBedrockError(err)
	}

	text := converseText(output)
	if text == "" {
		return "", schema.NewError(schema.ErrCodeInference, "model returned no text content")
	}

	b.logger.DebugContext(ctx, "inference completed",
		slog.String("model", b.model),
		slog.Int("response_chars", len(text)),
	)
	return text, nil
}

// converseText concatenates the text blocks of a Converse response.
func converseText(output *bedrockruntime.ConverseOutput) string {
	msg, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}

	var text string
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			text += tb.Value
		}
	}
	return text
}

// mapBedrockError converts SDK errors into structured inference errors,
// preserving the service error code when available.
func mapBedrockError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return schema.NewErrorf(schema.ErrCodeInference, "bedrock converse: %s", apiErr.ErrorMessage()).
			WithDetails(map[string]any{"service_code": apiErr.ErrorCode()}).
			WithCause(err)
	}
	return schema.NewError(schema.ErrCodeInference, "bedrock converse failed").WithCause(err)
}
