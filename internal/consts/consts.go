package consts

type Mode string

const (
	ModeImages  Mode = "images"
	ModeVideo   Mode = "video"
	ModeEnhance Mode = "enhance"
)

func (m Mode) String() string {
	return string(m)
}

func (m Mode) Valid() bool {
	switch m {
	case ModeImages, ModeVideo, ModeEnhance:
		return true
	}
	return false
}

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusPartial   RunStatus = "partial"
)

func (s RunStatus) String() string {
	return string(s)
}

func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusPartial:
		return true
	}
	return false
}

type StageStatus string

const (
	StageStatusPending StageStatus = "pending"
	StageStatusRunning StageStatus = "running"
	StageStatusSuccess StageStatus = "success"
	StageStatusError   StageStatus = "error"
	StageStatusSkipped StageStatus = "skipped"
)

func (s StageStatus) String() string {
	return string(s)
}

type StageID string

const (
	StageValidateModel   StageID = "validate_model"
	StageValidateParams  StageID = "validate_params"
	StageEnhancePrompt   StageID = "enhance_prompt"
	StageInvokeProvider  StageID = "invoke_provider"
	StageStoreArtifact   StageID = "store_artifact"
	StagePersistMetadata StageID = "persist_metadata"
	StageIndexGallery    StageID = "index_gallery"
)

func (s StageID) String() string {
	return string(s)
}

type EventType string

const (
	EventGenerationProgress EventType = "generation_progress"
	EventGalleryUpdate      EventType = "gallery_update"
	EventNotification       EventType = "notification"
	EventUserPresence       EventType = "user_presence"
	EventSystemStatus       EventType = "system_status"
)

func (e EventType) String() string {
	return string(e)
}

func (e EventType) Valid() bool {
	switch e {
	case EventGenerationProgress, EventGalleryUpdate, EventNotification, EventUserPresence, EventSystemStatus:
		return true
	}
	return false
}

type EventScope string

const (
	ScopeUser      EventScope = "user"
	ScopeBroadcast EventScope = "broadcast"
)

func (s EventScope) String() string {
	return string(s)
}

type BillingStatus string

const (
	BillingStatusPending   BillingStatus = "pending"
	BillingStatusConfirmed BillingStatus = "confirmed"
	BillingStatusFailed    BillingStatus = "failed"
)

func (b BillingStatus) String() string {
	return string(b)
}
