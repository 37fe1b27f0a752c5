package aws

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/smithy-go"
)

const (
	ErrRequestExpired      = "AWS request expired (likely due to clock skew or expired credentials). Current system time: %s. Please verify your system clock or refresh AWS credentials: %w"
	ErrAuthFailure         = "AWS authentication failed. Please verify your credentials and IAM permissions: %w"
	ErrRegionNotEnabled    = "AWS region is not enabled. Please opt-in for this region in your AWS account: %w"
	ErrMaxAttemptsExceeded = "AWS request failed after multiple retries. This could be due to network issues, credential problems, or AWS service disruption: %w"
	ErrOperationFailed     = "AWS operation failed: %w"
)

const (
	CodeRequestExpired = "RequestExpired"
	CodeAuthFailure    = "AuthFailure"
	CodeUnauthorized   = "UnauthorizedOperation"
	CodeOptInRequired  = "OptInRequired"
)

func handleAWSError(err error) error {
	var apiErr *smithy.GenericAPIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case CodeRequestExpired:
			return fmt.Errorf(ErrRequestExpired, time.Now().Format(time.RFC3339), err)
		case CodeAuthFailure, CodeUnauthorized:
			return fmt.Errorf(ErrAuthFailure, err)
		case CodeOptInRequired:
			return fmt.Errorf(ErrRegionNotEnabled, err)
		}
	}

	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		if strings.Contains(err.Error(), "exceeded maximum number of attempts") {
			return fmt.Errorf(ErrMaxAttemptsExceeded, err)
		}
	}

	return fmt.Errorf(ErrOperationFailed, err)
}
