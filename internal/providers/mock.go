package providers

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// MockBackend simulates both Bedrock APIs for dry runs
type MockBackend struct {
	region    string
	meanMs    float64
	p95Ms     float64
	errorRate float64

	mu       sync.Mutex
	rng      *rand.Rand
	profiles map[string]string // arn -> name
}

func NewMockBackend(region string, meanMs, p95Ms, errorRate float64) *MockBackend {
	if region == "" {
		region = "us-east-1"
	}
	return &MockBackend{
		region:    region,
		meanMs:    meanMs,
		p95Ms:     p95Ms,
		errorRate: errorRate,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		profiles:  make(map[string]string),
	}
}

func (m *MockBackend) CreateInferenceProfile(ctx context.Context, in *bedrock.CreateInferenceProfileInput, _ ...func(*bedrock.Options)) (*bedrock.CreateInferenceProfileOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := aws.ToString(in.InferenceProfileName)
	if name == "" {
		return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "inferenceProfileName is required", Fault: smithy.FaultClient}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.profiles {
		if existing == name {
			return nil, &smithy.GenericAPIError{Code: "ConflictException", Message: "profile " + name + " already exists", Fault: smithy.FaultClient}
		}
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	arn := fmt.Sprintf("arn:aws:bedrock:%s:000000000000:application-inference-profile/%s", m.region, id)
	m.profiles[arn] = name
	return &bedrock.CreateInferenceProfileOutput{InferenceProfileArn: aws.String(arn)}, nil
}

// sampleLatency samples from a lognormal distribution configured to approximate the given mean and p95
func (m *MockBackend) sampleLatency() time.Duration {
	// For lognormal X ~ logN(mu, sigma), mean = exp(mu + sigma^2/2)
	// and p95 = exp(mu + z*sigma) with z = 1.64485362695
	mean := m.meanMs
	p95 := m.p95Ms
	if mean <= 0 {
		return 0
	}
	if p95 < mean {
		p95 = mean
	}
	z := 1.64485362695
	// p95/mean = exp(sigma*(z - sigma/2)), solved by bisection
	f := func(s float64) float64 { return math.Exp(s*(z-s/2)) - p95/mean }
	lo, hi := 1e-6, 3.0
	for i := 0; i < 40; i++ {
		mid := (lo + hi) / 2
		if f(mid) > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	sigma := (lo + hi) / 2
	mu := math.Log(mean) - sigma*sigma/2

	m.mu.Lock()
	n := m.rng.NormFloat64()
	m.mu.Unlock()
	x := math.Exp(mu + sigma*n)
	// clamp to 3*p95 to avoid extreme outliers
	if x > 3*p95 {
		x = 3 * p95
	}
	return time.Duration(x * float64(time.Millisecond))
}

func (m *MockBackend) Converse(ctx context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	modelID := aws.ToString(in.ModelId)
	m.mu.Lock()
	_, known := m.profiles[modelID]
	m.mu.Unlock()
	if !known && !strings.Contains(modelID, "foundation-model/") {
		return nil, &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "model " + modelID + " not found", Fault: smithy.FaultClient}
	}

	d := m.sampleLatency()
	t := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !t.Stop() {
			<-t.C
		}
		return nil, ctx.Err()
	case <-t.C:
	}

	m.mu.Lock()
	roll := m.rng.Float64()
	m.mu.Unlock()
	if roll < m.errorRate {
		return nil, &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Too many requests, please wait before trying again.", Fault: smithy.FaultClient}
	}

	var promptRunes int
	for _, msg := range in.Messages {
		for _, b := range msg.Content {
			if tb, ok := b.(*brtypes.ContentBlockMemberText); ok {
				promptRunes += len([]rune(tb.Value))
			}
		}
	}
	maxTok := int32(DefaultMaxTokens)
	if in.InferenceConfig != nil && in.InferenceConfig.MaxTokens != nil {
		maxTok = *in.InferenceConfig.MaxTokens
	}
	inTok := int32(promptRunes/4 + 1)
	outTok := maxTok

	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "(mock) simulated response"}},
		}},
		StopReason: brtypes.StopReasonMaxTokens,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(inTok),
			OutputTokens: aws.Int32(outTok),
			TotalTokens:  aws.Int32(inTok + outTok),
		},
		Metrics: &brtypes.ConverseMetrics{LatencyMs: aws.Int64(d.Milliseconds())},
	}, nil
}
