package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/logs"
	"github.com/reusedev/gen-hub/internal/modules/model"
	"github.com/reusedev/gen-hub/internal/modules/provider"
	"github.com/reusedev/gen-hub/internal/modules/registry"
	"github.com/reusedev/gen-hub/tools"
)

const storageRetries = 3

func (o *Orchestrator) stagesForMode(mode consts.Mode) []Stage {
	switch mode {
	case consts.ModeEnhance:
		return []Stage{
			&validateModelStage{o},
			&validateParamsStage{o},
			&invokeProviderStage{o},
			&storeArtifactStage{o},
			&persistMetadataStage{o},
			&indexGalleryStage{o},
		}
	default:
		return []Stage{
			&validateModelStage{o},
			&validateParamsStage{o},
			&enhancePromptStage{o},
			&invokeProviderStage{o},
			&storeArtifactStage{o},
			&persistMetadataStage{o},
			&indexGalleryStage{o},
		}
	}
}

type validateModelStage struct{ o *Orchestrator }

func (s *validateModelStage) ID() consts.StageID { return consts.StageValidateModel }
func (s *validateModelStage) Optional() bool     { return false }

func (s *validateModelStage) Run(ctx context.Context, state *runState, res *StageResult) error {
	req := state.run.Request
	schema := s.o.registry.Schema(req.Model)
	if schema == nil {
		return NewKindError(KindModelUnavailable, "model %s not found", req.Model)
	}
	if !schema.SupportsMode(req.Mode) {
		return NewKindError(KindModelUnavailable, "model %s does not support mode %s", req.Model, req.Mode)
	}
	for name := range req.Params {
		if _, ok := schema.Params[name]; !ok {
			return NewKindError(KindModelUnavailable, "model %s does not expose parameter %s", req.Model, name)
		}
	}
	state.schema = schema
	return nil
}

type validateParamsStage struct{ o *Orchestrator }

func (s *validateParamsStage) ID() consts.StageID { return consts.StageValidateParams }
func (s *validateParamsStage) Optional() bool     { return false }

func (s *validateParamsStage) Run(ctx context.Context, state *runState, res *StageResult) error {
	req := state.run.Request
	schema := state.schema

	if req.Mode != consts.ModeEnhance && req.Prompt == "" {
		return NewKindError(KindInvalidParameters, "prompt is required for mode %s", req.Mode)
	}
	if req.Mode == consts.ModeEnhance && len(req.SourceImages) == 0 {
		return NewKindError(KindInvalidParameters, "a source image is required for mode %s", req.Mode)
	}

	validated := make(map[string]any, len(req.Params))
	var adjustments []string
	for name, spec := range schema.Params {
		value, provided := req.Params[name]
		if !provided {
			if spec.RequiredFor(req.Mode) {
				return NewKindError(KindInvalidParameters, "parameter %s is required for mode %s", name, req.Mode)
			}
			continue
		}
		switch spec.Kind {
		case registry.ParamNumber:
			f, ok := toFloat(value)
			if !ok {
				return NewKindError(KindInvalidParameters, "parameter %s must be a number", name)
			}
			// soft violation: out of range but coercible, clamp and note
			clamped := f
			if clamped < spec.Min {
				clamped = spec.Min
			}
			if clamped > spec.Max {
				clamped = spec.Max
			}
			if clamped != f {
				adjustments = append(adjustments, fmt.Sprintf("%s clamped from %v to %v", name, f, clamped))
			}
			validated[name] = clamped
		case registry.ParamEnum:
			str := toString(value)
			var found bool
			for _, allowed := range spec.Enum {
				if str == allowed {
					found = true
					break
				}
			}
			if !found {
				return NewKindError(KindInvalidParameters, "parameter %s must be one of %v", name, spec.Enum)
			}
			validated[name] = str
		default:
			validated[name] = value
		}
	}
	if len(adjustments) > 0 {
		res.Payload = map[string]any{"adjustments": adjustments}
	}
	state.params = validated
	state.prompt = req.Prompt
	return nil
}

type enhancePromptStage struct{ o *Orchestrator }

func (s *enhancePromptStage) ID() consts.StageID { return consts.StageEnhancePrompt }
func (s *enhancePromptStage) Optional() bool     { return true }

// Run falls back to the original prompt on any enhancement failure. The
// stage reports skipped, never error, so the run can finish as partial.
func (s *enhancePromptStage) Run(ctx context.Context, state *runState, res *StageResult) error {
	if s.o.enhancer == nil {
		return skip("enhancement capability not configured")
	}
	enhanced, err := s.o.enhancer.Enhance(ctx, state.prompt)
	if err != nil {
		return skip("enhancement failed, using original prompt: %v", err)
	}
	res.Payload = map[string]any{"original_prompt": state.prompt}
	state.prompt = enhanced
	return nil
}

type invokeProviderStage struct{ o *Orchestrator }

func (s *invokeProviderStage) ID() consts.StageID { return consts.StageInvokeProvider }
func (s *invokeProviderStage) Optional() bool     { return false }

func (s *invokeProviderStage) Run(ctx context.Context, state *runState, res *StageResult) error {
	req := state.run.Request
	job := provider.Job{
		GenerationId: req.GenerationId,
		Mode:         req.Mode,
		Model:        req.Model,
		Prompt:       state.prompt,
		Params:       state.params,
		SourceImages: req.SourceImages,
	}
	result, err := s.o.provider.Generate(ctx, job)
	if err != nil {
		return classifyProviderError(ctx, err)
	}
	res.Payload = map[string]any{
		"outputs":       len(result.Outputs),
		"cost":          result.Cost,
		"processing_ms": result.ProcessingMs,
	}
	state.providerResult = result
	return nil
}

func classifyProviderError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return NewKindError(KindCancelled, "provider call cancelled: %v", err)
	}
	switch e := err.(type) {
	case *provider.TimeoutError:
		return NewKindError(KindProviderTimeout, "%v", e)
	case *provider.RejectedError:
		return NewKindError(KindProviderRejected, "%v", e)
	default:
		return NewKindError(KindProviderRejected, "provider call failed: %v", err)
	}
}

type storeArtifactStage struct{ o *Orchestrator }

func (s *storeArtifactStage) ID() consts.StageID { return consts.StageStoreArtifact }
func (s *storeArtifactStage) Optional() bool     { return false }

// Run persists the provider output into object storage. Retried on its
// own: a storage failure never re-invokes the provider.
func (s *storeArtifactStage) Run(ctx context.Context, state *runState, res *StageResult) error {
	outputRef := state.providerResult.Outputs[0]
	var lastErr error
	for attempt := 0; attempt < storageRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return NewKindError(KindCancelled, "storage write cancelled")
			}
		}
		b, err := s.o.artifacts.Fetch(ctx, outputRef)
		if err != nil {
			lastErr = err
			continue
		}
		key, err := s.o.artifacts.Put(ctx, b)
		if err != nil {
			lastErr = err
			continue
		}
		url, err := s.o.artifacts.URL(key, s.o.urlExpires)
		if err != nil {
			lastErr = err
			continue
		}
		state.artifactBytes = b
		state.artifactKey = key
		state.artifactURL = url
		res.Payload = map[string]any{"artifact_key": key, "bytes": len(b)}
		return nil
	}
	return NewKindError(KindStorageWriteFailed, "artifact storage failed after %d attempts: %v", storageRetries, lastErr)
}

type persistMetadataStage struct{ o *Orchestrator }

func (s *persistMetadataStage) ID() consts.StageID { return consts.StagePersistMetadata }
func (s *persistMetadataStage) Optional() bool     { return false }

// Run writes the durable generation row. On failure the artifact key is
// attached to the error so a reconciliation job can complete the write
// later; the already-stored artifact is never rolled back.
func (s *persistMetadataStage) Run(ctx context.Context, state *runState, res *StageResult) error {
	req := state.run.Request
	paramsJSON, _ := json.Marshal(state.params)
	gen := &model.Generation{
		GenerationId: req.GenerationId,
		UserId:       req.UserId,
		Mode:         req.Mode.String(),
		Model:        req.Model,
		Params:       string(paramsJSON),
		ArtifactKey:  state.artifactKey,
		ArtifactURL:  state.artifactURL,
		CostRecordId: state.run.CostRecordId,
		RunStatus:    consts.RunStatusRunning.String(),
	}
	if err := s.o.metadata.SaveGeneration(gen); err != nil {
		logs.Logger.Error().
			Str("run_id", state.run.Id).
			Str("generation_id", req.GenerationId).
			Str("artifact_key", state.artifactKey).
			Err(err).
			Msg("metadata write failed, artifact orphaned, needs reconciliation")
		return &KindError{
			Kind:    KindMetadataWriteFailed,
			Message: fmt.Sprintf("metadata write failed: %v", err),
			Detail:  map[string]any{"artifact_key": state.artifactKey},
		}
	}
	state.generation = gen
	res.Payload = map[string]any{"artifact_key": state.artifactKey}
	return nil
}

type indexGalleryStage struct{ o *Orchestrator }

func (s *indexGalleryStage) ID() consts.StageID { return consts.StageIndexGallery }
func (s *indexGalleryStage) Optional() bool     { return true }

func (s *indexGalleryStage) Run(ctx context.Context, state *runState, res *StageResult) error {
	req := state.run.Request
	item := &model.GalleryItem{
		UserId:       req.UserId,
		GenerationId: req.GenerationId,
		ArtifactKey:  state.artifactKey,
		IndexedAt:    time.Now(),
	}
	if req.Mode != consts.ModeVideo {
		thumb, err := tools.Thumbnail(bytes.NewReader(state.artifactBytes), 0.25, imaging.JPEG)
		if err == nil {
			if key, err := s.o.artifacts.PutThumbnail(ctx, state.artifactKey, thumb); err == nil {
				item.ThumbnailKey = key
			}
		}
	}
	if err := s.o.metadata.CreateGalleryItem(item); err != nil {
		return NewKindError(KindGalleryIndexFailed, "gallery index failed: %v", err)
	}
	state.galleryItem = item
	res.Payload = map[string]any{"thumbnail_key": item.ThumbnailKey}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}
