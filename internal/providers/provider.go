package providers

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// ProfileAPI is the slice of the Bedrock control-plane client used to provision profiles
type ProfileAPI interface {
	CreateInferenceProfile(ctx context.Context, params *bedrock.CreateInferenceProfileInput, optFns ...func(*bedrock.Options)) (*bedrock.CreateInferenceProfileOutput, error)
}

// ConverseAPI is the slice of the Bedrock runtime client used for conversations
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Tag is a cost-attribution key/value pair attached to a profile
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Profile is an application inference profile owned by a single benchmark run.
// ARN is empty until the profile has been created.
type Profile struct {
	Name         string `json:"name"`
	BaseModelARN string `json:"base_model_arn"`
	Tags         []Tag  `json:"tags"`
	ARN          string `json:"arn,omitempty"`
}

// Role of a conversation message. Only user turns are sent.
type Role string

const RoleUser Role = "user"

// ContentBlock is one text fragment of a message
type ContentBlock struct {
	Text string
}

// Message is a single conversation turn
type Message struct {
	Role    Role
	Content []ContentBlock
}

// UserMessage builds a single-block user turn
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{{Text: text}}}
}

// Outcome holds the result of a single Converse call
type Outcome struct {
	Success      bool
	Text         string
	Raw          *bedrockruntime.ConverseOutput
	Err          *ConverseError
	Latency      time.Duration
	InputTokens  int64
	OutputTokens int64
}

// Failed builds a non-success outcome from a classified error
func Failed(err *ConverseError, latency time.Duration) Outcome {
	return Outcome{Err: err, Latency: latency}
}
