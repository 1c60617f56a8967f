// Package awserr inspects errors returned by AWS SDK clients.
package awserr

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// Code returns the AWS API error code carried by err, or "" when err is not an API error.
func Code(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsThrottle reports whether err is a throttling response from an AWS API.
func IsThrottle(err error) bool {
	switch Code(err) {
	case "ThrottlingException", "Throttling", "ProvisionedThroughputExceededException",
		"TooManyRequestsException", "RequestLimitExceeded", "SlowDown":
		return true
	}
	return false
}

// IsClientFault reports whether AWS attributed err to the caller.
func IsClientFault(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient
}

// Wrap annotates err with the service operation and, when present, its API error code.
func Wrap(service, operation string, err error) error {
	if err == nil {
		return nil
	}
	if code := Code(err); code != "" {
		return fmt.Errorf("%s %s failed (%s): %w", service, operation, code, err)
	}
	return fmt.Errorf("%s %s failed: %w", service, operation, err)
}
