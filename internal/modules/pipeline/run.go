package pipeline

import (
	"time"

	"github.com/jinzhu/copier"
	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/model"
	"github.com/reusedev/gen-hub/internal/modules/provider"
	"github.com/reusedev/gen-hub/internal/modules/registry"
)

// Request is the immutable intake for one generation. Created once,
// referenced by generation id throughout the run, never mutated.
type Request struct {
	GenerationId string         `json:"generation_id"`
	UserId       string         `json:"user_id"`
	Mode         consts.Mode    `json:"mode"`
	Model        string         `json:"model"`
	Prompt       string         `json:"prompt"`
	Params       map[string]any `json:"params"`
	SourceImages []string       `json:"source_images"`
}

// StageResult is one stage's outcome. Owned by the executor while
// running, append-only once terminal.
type StageResult struct {
	Stage        consts.StageID     `json:"stage"`
	Status       consts.StageStatus `json:"status"`
	StartAt      time.Time          `json:"start_at"`
	EndAt        time.Time          `json:"end_at"`
	DurationMs   int64              `json:"duration_ms"`
	ErrorKind    Kind               `json:"error_kind,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	Payload      map[string]any     `json:"payload,omitempty"`
}

// Run is one pipeline execution. Owned exclusively by the orchestrator;
// observers get deep-copied snapshots.
type Run struct {
	Id           string            `json:"run_id"`
	Request      Request           `json:"request"`
	Stages       []StageResult     `json:"stages"`
	Status       consts.RunStatus  `json:"status"`
	ErrorKind    Kind              `json:"error_kind,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CostRecordId string            `json:"cost_record_id"`
	StartAt      time.Time         `json:"start_at"`
	EndAt        time.Time         `json:"end_at"`
}

func (r *Run) deepCopy() *Run {
	newR := Run{}
	copier.CopyWithOption(&newR, r, copier.Option{
		DeepCopy: true,
	})
	return &newR
}

// runState is the cross-stage payload. Each stage reads what earlier
// stages produced and writes its own contribution.
type runState struct {
	run    *Run
	schema *registry.Schema

	params         map[string]any
	prompt         string
	providerResult *provider.Result
	artifactBytes  []byte
	artifactKey    string
	artifactURL    string
	generation     *model.Generation
	galleryItem    *model.GalleryItem
}
