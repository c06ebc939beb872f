package pipeline

import (
	"errors"
	"fmt"

	"github.com/reusedev/gen-hub/internal/consts"
)

// Kind classifies a pipeline failure for clients and for the ledger.
type Kind string

const (
	KindModelUnavailable    Kind = "ModelUnavailable"
	KindInvalidParameters   Kind = "InvalidParameters"
	KindProviderTimeout     Kind = "ProviderTimeout"
	KindProviderRejected    Kind = "ProviderRejected"
	KindStorageWriteFailed  Kind = "StorageWriteFailed"
	KindMetadataWriteFailed Kind = "MetadataWriteFailed"
	KindGalleryIndexFailed  Kind = "GalleryIndexFailed"
	KindDuplicateRecord     Kind = "DuplicateRecord"
	KindAlreadyConfirmed    Kind = "AlreadyConfirmed"
	KindLimitExceeded       Kind = "LimitExceeded"
	KindCancelled           Kind = "Cancelled"
)

func (k Kind) String() string {
	return string(k)
}

// KindError carries the failure kind plus detail for reconciliation (for
// example the orphaned artifact key after a metadata write failure).
type KindError struct {
	Kind    Kind
	Message string
	Detail  map[string]any
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewKindError(kind Kind, format string, args ...any) *KindError {
	return &KindError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure kind, falling back to the stage's default.
func KindOf(err error, fallback Kind) Kind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return fallback
}

func defaultKind(stage consts.StageID) Kind {
	switch stage {
	case consts.StageValidateModel:
		return KindModelUnavailable
	case consts.StageValidateParams:
		return KindInvalidParameters
	case consts.StageInvokeProvider:
		return KindProviderRejected
	case consts.StageStoreArtifact:
		return KindStorageWriteFailed
	case consts.StagePersistMetadata:
		return KindMetadataWriteFailed
	case consts.StageIndexGallery:
		return KindGalleryIndexFailed
	default:
		return KindProviderRejected
	}
}

// skipError marks an optional stage that fell back instead of failing.
type skipError struct {
	reason string
}

func (e *skipError) Error() string {
	return e.reason
}

func skip(format string, args ...any) error {
	return &skipError{reason: fmt.Sprintf(format, args...)}
}
