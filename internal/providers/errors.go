package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// ErrorKind groups remote failures so callers can match without inspecting messages
type ErrorKind string

const (
	KindThrottling   ErrorKind = "throttling"
	KindValidation   ErrorKind = "validation"
	KindTimeout      ErrorKind = "timeout"
	KindAccessDenied ErrorKind = "access_denied"
	KindQuota        ErrorKind = "quota"
	KindNotFound     ErrorKind = "not_found"
	KindService      ErrorKind = "service"
	KindCanceled     ErrorKind = "canceled"
	KindUnknown      ErrorKind = "unknown"
)

var codeKinds = map[string]ErrorKind{
	"ThrottlingException":                    KindThrottling,
	"TooManyRequestsException":               KindThrottling,
	"ServiceUnavailableException":            KindThrottling,
	"ValidationException":                    KindValidation,
	"ModelErrorException":                    KindValidation,
	"ModelTimeoutException":                  KindTimeout,
	"RequestTimeout":                         KindTimeout,
	"AccessDeniedException":                  KindAccessDenied,
	"UnrecognizedClientException":            KindAccessDenied,
	"ServiceQuotaExceededException":          KindQuota,
	"ResourceNotFoundException":              KindNotFound,
	"ModelNotReadyException":                 KindNotFound,
	"InternalServerException":                KindService,
	"ConflictException":                      KindValidation,
	"TooManyTagsException":                   KindValidation,
	"ExpiredTokenException":                  KindAccessDenied,
	"InvalidSignatureException":              KindAccessDenied,
	"IncompleteSignature":                    KindAccessDenied,
	"ModelStreamErrorException":              KindService,
	"InternalFailure":                        KindService,
	"ServiceUnavailable":                     KindThrottling,
	"SlowDown":                               KindThrottling,
	"RequestLimitExceeded":                   KindThrottling,
	"ProvisionedThroughputExceededException": KindThrottling,
}

// Classify maps an SDK error to a kind and the remote error code (empty when not an API error)
func Classify(err error) (ErrorKind, string) {
	if err == nil {
		return "", ""
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled, ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, ""
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		code := ae.ErrorCode()
		if k, ok := codeKinds[code]; ok {
			return k, code
		}
		if ae.ErrorFault() == smithy.FaultServer {
			return KindService, code
		}
		return KindUnknown, code
	}
	return KindUnknown, ""
}

// ProvisioningError reports a failed profile creation. It is fatal to a run.
type ProvisioningError struct {
	Profile string
	Kind    ErrorKind
	Code    string
	Err     error
}

func (e *ProvisioningError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("create inference profile %q: %s (%s): %v", e.Profile, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("create inference profile %q: %s: %v", e.Profile, e.Kind, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// ConverseError reports a failed conversation call. It is counted, never fatal.
type ConverseError struct {
	ModelID string
	Kind    ErrorKind
	Code    string
	Err     error
}

func (e *ConverseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("converse %s: %s (%s): %v", e.ModelID, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("converse %s: %s: %v", e.ModelID, e.Kind, e.Err)
}

func (e *ConverseError) Unwrap() error { return e.Err }

func newConverseError(modelID string, err error) *ConverseError {
	kind, code := Classify(err)
	return &ConverseError{ModelID: modelID, Kind: kind, Code: code, Err: err}
}

func newProvisioningError(name string, err error) *ProvisioningError {
	kind, code := Classify(err)
	return &ProvisioningError{Profile: name, Kind: kind, Code: code, Err: err}
}
