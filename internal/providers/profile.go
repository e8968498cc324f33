package providers

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrock/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultDescription = "test"

// ProfileProvisioner creates application inference profiles that copy a base model
type ProfileProvisioner struct {
	api         ProfileAPI
	description string
	log         zerolog.Logger
}

func NewProfileProvisioner(api ProfileAPI, description string) *ProfileProvisioner {
	if description == "" {
		description = defaultDescription
	}
	return &ProfileProvisioner{api: api, description: description, log: log.Logger}
}

// WithLogger replaces the provisioner's logger
func (p *ProfileProvisioner) WithLogger(l zerolog.Logger) *ProfileProvisioner {
	p.log = l
	return p
}

// CreateProfile allocates a billable profile. Nothing in this program deletes it.
func (p *ProfileProvisioner) CreateProfile(ctx context.Context, name, baseModelARN string, tags []Tag) (Profile, error) {
	prof := Profile{Name: name, BaseModelARN: baseModelARN, Tags: append([]Tag(nil), tags...)}

	switch {
	case name == "":
		return prof, &ProvisioningError{Profile: name, Kind: KindValidation, Err: errors.New("profile name is empty")}
	case baseModelARN == "":
		return prof, &ProvisioningError{Profile: name, Kind: KindValidation, Err: errors.New("base model arn is empty")}
	case len(tags) == 0:
		return prof, &ProvisioningError{Profile: name, Kind: KindValidation, Err: errors.New("at least one tag is required")}
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "bedrock.CreateInferenceProfile")
	defer span.End()
	span.SetAttributes(attribute.String("profile.name", name), attribute.String("profile.base_model", baseModelARN))

	sdkTags := make([]bedrocktypes.Tag, 0, len(tags))
	for _, t := range tags {
		sdkTags = append(sdkTags, bedrocktypes.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}

	p.log.Info().Str("profile", name).Str("base_model", baseModelARN).Msg("creating inference profile")
	out, err := p.api.CreateInferenceProfile(ctx, &bedrock.CreateInferenceProfileInput{
		InferenceProfileName: aws.String(name),
		Description:          aws.String(p.description),
		ModelSource:          &bedrocktypes.InferenceProfileModelSourceMemberCopyFrom{Value: baseModelARN},
		Tags:                 sdkTags,
	})
	if err != nil {
		perr := newProvisioningError(name, err)
		span.RecordError(perr)
		span.SetStatus(codes.Error, string(perr.Kind))
		p.log.Error().Err(err).Str("profile", name).Str("kind", string(perr.Kind)).Msg("error creating inference profile")
		return prof, perr
	}
	if out == nil || aws.ToString(out.InferenceProfileArn) == "" {
		perr := &ProvisioningError{Profile: name, Kind: KindUnknown, Err: errors.New("response carried no profile arn")}
		span.SetStatus(codes.Error, perr.Error())
		return prof, perr
	}

	prof.ARN = aws.ToString(out.InferenceProfileArn)
	span.SetAttributes(attribute.String("profile.arn", prof.ARN))
	p.log.Info().Str("profile", name).Str("arn", prof.ARN).Msg("created inference profile")
	return prof, nil
}
