package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/bus"
	"github.com/reusedev/gen-hub/internal/modules/ledger"
	"github.com/reusedev/gen-hub/internal/modules/logs"
	"github.com/reusedev/gen-hub/internal/modules/model"
	"github.com/reusedev/gen-hub/internal/modules/provider"
	"github.com/reusedev/gen-hub/internal/modules/queue"
	"github.com/reusedev/gen-hub/internal/modules/registry"
)

// completedRunRetention keeps terminal runs queryable for late snapshot
// pulls before the registry drops them.
const completedRunRetention = time.Hour

// Provider is the external generation capability.
type Provider interface {
	Generate(ctx context.Context, job provider.Job) (*provider.Result, error)
}

// Enhancer is the advisory prompt-enhancement capability.
type Enhancer interface {
	Enhance(ctx context.Context, prompt string) (string, error)
}

// ArtifactStore is durable object storage for generation output.
type ArtifactStore interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	Put(ctx context.Context, b []byte) (string, error)
	PutThumbnail(ctx context.Context, artifactKey string, r io.Reader) (string, error)
	URL(key string, expire time.Duration) (string, error)
}

// MetadataStore is the relational store for intake rows, generation
// metadata and gallery index rows.
type MetadataStore interface {
	CreateRequest(req *model.GenerationRequest) error
	SaveGeneration(gen *model.Generation) error
	UpdateGenerationStatus(generationId, status string) error
	CreateGalleryItem(item *model.GalleryItem) error
}

// Notifier fans events out to live client connections.
type Notifier interface {
	Publish(event bus.Event)
}

// Orchestrator sequences stage executors per run, owns the active-run
// registry and reconciles the ledger when a run terminates. Constructed at
// service start and passed by handle, torn down on shutdown.
type Orchestrator struct {
	ledger     *ledger.Ledger
	registry   *registry.Registry
	provider   Provider
	enhancer   Enhancer
	artifacts  ArtifactStore
	metadata   MetadataStore
	notifier   Notifier
	runner     *queue.Runner
	urlExpires time.Duration

	mu   sync.Mutex
	runs map[string]*runHandle
}

type runHandle struct {
	mu     sync.Mutex
	run    *Run
	cancel context.CancelFunc
	done   chan struct{}
}

type Options struct {
	Ledger     *ledger.Ledger
	Registry   *registry.Registry
	Provider   Provider
	Enhancer   Enhancer
	Artifacts  ArtifactStore
	Metadata   MetadataStore
	Notifier   Notifier
	Runner     *queue.Runner
	URLExpires time.Duration
}

func NewOrchestrator(opts Options) *Orchestrator {
	return &Orchestrator{
		ledger:     opts.Ledger,
		registry:   opts.Registry,
		provider:   opts.Provider,
		enhancer:   opts.Enhancer,
		artifacts:  opts.Artifacts,
		metadata:   opts.Metadata,
		notifier:   opts.Notifier,
		runner:     opts.Runner,
		urlExpires: opts.URLExpires,
		runs:       make(map[string]*runHandle),
	}
}

// Ticket identifies a dispatched run. Done closes when the run reaches a
// terminal state.
type Ticket struct {
	RunId        string          `json:"run_id"`
	GenerationId string          `json:"generation_id"`
	Done         <-chan struct{} `json:"-"`
}

// Dispatch runs the affordability gate and, when it passes, registers and
// enqueues a new run. A LimitExceeded rejection happens before any stage
// executes and before any run or cost record exists.
func (o *Orchestrator) Dispatch(req Request) (*Ticket, error) {
	if !req.Mode.Valid() {
		return nil, NewKindError(KindInvalidParameters, "unknown mode %s", req.Mode)
	}
	if req.GenerationId == "" {
		req.GenerationId = uuid.NewString()
	}

	estimate := 0.0
	providerName := ""
	if schema := o.registry.Schema(req.Model); schema != nil {
		estimate = o.registry.EstimateCost(schema, req.Params)
		providerName = schema.Provider
	}

	recordId, allowed, reason, err := o.ledger.CheckAndReserve(req.UserId, req.GenerationId, req.Model, providerName, estimate)
	if err != nil {
		if err == ledger.ErrDuplicateRecord {
			return nil, NewKindError(KindDuplicateRecord, "generation %s already dispatched", req.GenerationId)
		}
		return nil, err
	}
	if !allowed {
		logs.Logger.Info().
			Str("user_id", req.UserId).
			Str("generation_id", req.GenerationId).
			Float64("estimate", estimate).
			Str("reason", reason).
			Msg("generation rejected by spend limits")
		return nil, NewKindError(KindLimitExceeded, "%s", reason)
	}

	paramsJSON, _ := json.Marshal(req.Params)
	intake := &model.GenerationRequest{
		GenerationId: req.GenerationId,
		UserId:       req.UserId,
		Mode:         req.Mode.String(),
		Model:        req.Model,
		Prompt:       req.Prompt,
		Params:       string(paramsJSON),
		SourceImages: strings.Join(req.SourceImages, ","),
		CreatedAt:    time.Now(),
	}
	if err := o.metadata.CreateRequest(intake); err != nil {
		o.releaseReservation(recordId)
		return nil, fmt.Errorf("persist intake: %w", err)
	}

	run := &Run{
		Id:           uuid.NewString(),
		Request:      req,
		Status:       consts.RunStatusPending,
		CostRecordId: recordId,
	}
	runCtx, cancel := context.WithCancel(context.Background())
	h := &runHandle{run: run, cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	o.runs[run.Id] = h
	o.mu.Unlock()

	if err := o.runner.Enqueue(&runTask{o: o, h: h, ctx: runCtx}); err != nil {
		o.mu.Lock()
		delete(o.runs, run.Id)
		o.mu.Unlock()
		cancel()
		o.releaseReservation(recordId)
		return nil, fmt.Errorf("run admission: %w", err)
	}
	return &Ticket{RunId: run.Id, GenerationId: req.GenerationId, Done: h.done}, nil
}

// releaseReservation voids a pending estimate for a run that never made it
// past dispatch. A reservation stuck pending keeps counting toward the
// user's spend windows, so a failed release is worth surfacing.
func (o *Orchestrator) releaseReservation(recordId string) {
	if err := o.ledger.MarkFailed(recordId); err != nil {
		logs.Logger.Error().Err(err).Str("cost_record_id", recordId).Msg("release cost reservation failed")
	}
}

// runTask adapts a run to the queue's Task contract.
type runTask struct {
	o   *Orchestrator
	h   *runHandle
	ctx context.Context
}

// Execute runs under both the service context (shutdown) and the run's
// own context (per-run cancel).
func (t *runTask) Execute(serviceCtx context.Context) {
	ctx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(serviceCtx, cancel)
	defer stop()
	t.o.execute(ctx, t.h)
}

func (o *Orchestrator) execute(ctx context.Context, h *runHandle) {
	run := h.run
	req := run.Request
	state := &runState{run: run}

	h.mu.Lock()
	run.Status = consts.RunStatusRunning
	run.StartAt = time.Now()
	h.mu.Unlock()
	o.publishProgress(h, StageResult{})

	stages := o.stagesForMode(req.Mode)
	var failed bool
	var skippedOptional bool

	for _, st := range stages {
		if ctx.Err() != nil {
			h.mu.Lock()
			run.ErrorKind = KindCancelled
			run.ErrorMessage = "run cancelled"
			h.mu.Unlock()
			failed = true
			break
		}
		res := executeStage(ctx, st, state)

		h.mu.Lock()
		run.Stages = append(run.Stages, res)
		h.mu.Unlock()
		o.publishProgress(h, res)

		switch res.Status {
		case consts.StageStatusError:
			if st.Optional() {
				skippedOptional = true
				continue
			}
			h.mu.Lock()
			run.ErrorKind = res.ErrorKind
			run.ErrorMessage = res.ErrorMessage
			h.mu.Unlock()
			failed = true
		case consts.StageStatusSkipped:
			skippedOptional = true
		}
		if failed {
			break
		}
	}

	terminal := consts.RunStatusSucceeded
	if failed {
		terminal = consts.RunStatusFailed
	} else if skippedOptional {
		terminal = consts.RunStatusPartial
	}

	h.mu.Lock()
	run.Status = terminal
	run.EndAt = time.Now()
	h.mu.Unlock()

	o.settleLedger(run, state)
	if state.generation != nil {
		if err := o.metadata.UpdateGenerationStatus(req.GenerationId, terminal.String()); err != nil {
			logs.Logger.Error().Err(err).Str("generation_id", req.GenerationId).Msg("update generation status failed")
		}
	}
	o.publishProgress(h, StageResult{})
	if state.galleryItem != nil {
		o.notifier.Publish(bus.UserEvent(req.UserId, consts.EventGalleryUpdate, map[string]any{
			"generation_id": req.GenerationId,
			"artifact_url":  state.artifactURL,
			"thumbnail_key": state.galleryItem.ThumbnailKey,
		}))
	}

	logs.Logger.Info().
		Str("run_id", run.Id).
		Str("generation_id", req.GenerationId).
		Str("user_id", req.UserId).
		Str("status", terminal.String()).
		Str("error_kind", run.ErrorKind.String()).
		Dur("total_ms", run.EndAt.Sub(run.StartAt)).
		Msg("run finished")

	close(h.done)
	time.AfterFunc(completedRunRetention, func() {
		o.mu.Lock()
		delete(o.runs, run.Id)
		o.mu.Unlock()
	})
}

// settleLedger reconciles the pending estimate: confirmed at the
// provider-reported cost once the provider call succeeded, voided when no
// spend was incurred.
func (o *Orchestrator) settleLedger(run *Run, state *runState) {
	if state.providerResult != nil {
		if err := o.ledger.ConfirmActual(run.CostRecordId, state.providerResult.Cost); err != nil {
			logs.Logger.Error().Err(err).Str("cost_record_id", run.CostRecordId).Msg("confirm actual cost failed")
		}
		return
	}
	if err := o.ledger.MarkFailed(run.CostRecordId); err != nil {
		logs.Logger.Error().Err(err).Str("cost_record_id", run.CostRecordId).Msg("mark cost record failed")
	}
}

func (o *Orchestrator) publishProgress(h *runHandle, last StageResult) {
	snapshot := o.snapshotHandle(h)
	payload := map[string]any{
		"run_id":        snapshot.Id,
		"generation_id": snapshot.Request.GenerationId,
		"status":        snapshot.Status,
		"stages":        snapshot.Stages,
	}
	if last.Stage != "" {
		payload["stage"] = last.Stage
		payload["stage_status"] = last.Status
	}
	if snapshot.ErrorKind != "" {
		payload["error_kind"] = snapshot.ErrorKind
		payload["error_message"] = snapshot.ErrorMessage
	}
	o.notifier.Publish(bus.UserEvent(snapshot.Request.UserId, consts.EventGenerationProgress, payload))
}

func (o *Orchestrator) snapshotHandle(h *runHandle) *Run {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.run.deepCopy()
}

// Snapshot returns a deep copy of a live or recently finished run.
func (o *Orchestrator) Snapshot(runId string) (*Run, bool) {
	o.mu.Lock()
	h, ok := o.runs[runId]
	o.mu.Unlock()
	if !ok {
		return nil, false
	}
	return o.snapshotHandle(h), true
}

// Cancel aborts a run owned by the given user. The in-flight provider
// call aborts with the run marked failed, kind Cancelled.
func (o *Orchestrator) Cancel(runId, userId string) error {
	o.mu.Lock()
	h, ok := o.runs[runId]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s not found", runId)
	}
	h.mu.Lock()
	owner := h.run.Request.UserId
	terminal := h.run.Status.Terminal()
	h.mu.Unlock()
	if owner != userId {
		return fmt.Errorf("run %s not owned by user %s", runId, userId)
	}
	if terminal {
		return fmt.Errorf("run %s already finished", runId)
	}
	h.cancel()
	logs.Logger.Info().Str("run_id", runId).Str("user_id", userId).Msg("run cancelled by user")
	return nil
}

// Runner exposes the admission queue so callers owning the lifecycle can
// start and drain it.
func (o *Orchestrator) Runner() *queue.Runner {
	return o.runner
}

// ActiveRuns reports how many runs have not reached a terminal state.
func (o *Orchestrator) ActiveRuns() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, h := range o.runs {
		h.mu.Lock()
		if !h.run.Status.Terminal() {
			n++
		}
		h.mu.Unlock()
	}
	return n
}
