package providers

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	tracerName       = "github.com/ratnathegod/inference-profile-bench/providers"
	DefaultMaxTokens = 300
	previewRunes     = 50
)

// ConverseClient sends single-turn conversations. Failures come back as outcomes, never as errors.
type ConverseClient struct {
	api       ConverseAPI
	maxTokens int32
	log       zerolog.Logger
	now       func() time.Time
}

func NewConverseClient(api ConverseAPI, maxTokens int) *ConverseClient {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &ConverseClient{api: api, maxTokens: int32(maxTokens), log: log.Logger, now: time.Now}
}

// WithLogger replaces the client's logger
func (c *ConverseClient) WithLogger(l zerolog.Logger) *ConverseClient {
	c.log = l
	return c
}

func (c *ConverseClient) Converse(ctx context.Context, modelID string, messages []Message) Outcome {
	if err := validateConverseInput(modelID, messages); err != nil {
		cerr := &ConverseError{ModelID: modelID, Kind: KindValidation, Err: err}
		c.log.Error().Err(cerr).Msg("error in converse")
		return Failed(cerr, 0)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "bedrock.Converse")
	defer span.End()
	span.SetAttributes(attribute.String("model.id", modelID))

	t0 := c.now()
	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(modelID),
		Messages:        toSDKMessages(messages),
		InferenceConfig: &brtypes.InferenceConfiguration{MaxTokens: aws.Int32(c.maxTokens)},
	})
	lat := c.now().Sub(t0)
	if err != nil {
		cerr := newConverseError(modelID, err)
		span.RecordError(cerr)
		span.SetStatus(codes.Error, string(cerr.Kind))
		c.log.Error().Err(err).Str("kind", string(cerr.Kind)).Str("code", cerr.Code).Msg("error in converse")
		return Failed(cerr, lat)
	}

	text := ExtractText(out)
	res := Outcome{Success: true, Text: text, Raw: out, Latency: lat}
	if out != nil && out.Usage != nil {
		res.InputTokens = int64(aws.ToInt32(out.Usage.InputTokens))
		res.OutputTokens = int64(aws.ToInt32(out.Usage.OutputTokens))
	}
	span.SetAttributes(
		attribute.Int64("usage.input_tokens", res.InputTokens),
		attribute.Int64("usage.output_tokens", res.OutputTokens),
	)
	c.log.Info().Dur("latency", lat).Msgf("response text (truncated): %s", preview(text, previewRunes))
	return res
}

func validateConverseInput(modelID string, messages []Message) error {
	if modelID == "" {
		return errors.New("model identifier is empty")
	}
	if len(messages) == 0 {
		return errors.New("no messages to send")
	}
	for _, m := range messages {
		if len(m.Content) == 0 {
			return errors.New("message has no content")
		}
		for _, b := range m.Content {
			if b.Text == "" {
				return errors.New("message content has empty text")
			}
		}
	}
	return nil
}

func toSDKMessages(messages []Message) []brtypes.Message {
	out := make([]brtypes.Message, 0, len(messages))
	for _, m := range messages {
		blocks := make([]brtypes.ContentBlock, 0, len(m.Content))
		for _, b := range m.Content {
			blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: b.Text})
		}
		out = append(out, brtypes.Message{Role: brtypes.ConversationRole(m.Role), Content: blocks})
	}
	return out
}
