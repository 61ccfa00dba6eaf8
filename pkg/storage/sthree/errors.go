package sthree

import (
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/enku/gentoo-build-publisher/pkg/storage/status"
)

// apiError maps S3 API failures onto the storage error sentinels
// https://docs.aws.amazon.com/sdk-for-go/api/aws/awserr/#RequestFailure
func apiError(err error) error {
	if err == nil {
		return nil
	}
	rerr, ok := err.(awserr.RequestFailure)
	if !ok {
		return status.ErrStorageAPI.Wrap(err)
	}
	switch rerr.StatusCode() {
	case 400:
		if rerr.Code() == "InvalidBucketName" {
			return status.ErrInvalidResource.Wrap(rerr)
		}
		return status.ErrStorageAPI.Wrap(rerr)
	case 401:
		return status.ErrUnauthorized.Wrap(rerr)
	case 403:
		return status.ErrForbidden.Wrap(rerr)
	case 404:
		return status.ErrNotFound.Wrap(rerr)
	default:
		return status.ErrStorageAPI.Wrap(rerr)
	}
}
