package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/ledger"
	"github.com/reusedev/gen-hub/internal/modules/logs"
	"github.com/reusedev/gen-hub/internal/modules/pipeline"
	"github.com/reusedev/gen-hub/internal/modules/queue"
	"github.com/reusedev/gen-hub/internal/modules/registry"
)

const selfCheckUser = "selfcheck"

// Harness replays the pipeline with synthetic requests per generation
// mode against the real orchestrator, ledger and notifier contracts.
// Only the external collaborators (provider, storage, relational store)
// are deterministic fakes.
type Harness struct {
	orch      *pipeline.Orchestrator
	costStore *MemoryCostStore
	artifacts *FakeArtifacts
	metadata  *FakeMetadata
}

type StageCheck struct {
	Stage      consts.StageID     `json:"stage"`
	Status     consts.StageStatus `json:"status"`
	DurationMs int64              `json:"duration_ms"`
	Pass       bool               `json:"pass"`
	Error      string             `json:"error,omitempty"`
}

type ModeReport struct {
	Mode       consts.Mode      `json:"mode"`
	Status     consts.RunStatus `json:"status"`
	Pass       bool             `json:"pass"`
	DurationMs int64            `json:"duration_ms"`
	Stages     []StageCheck     `json:"stages"`
}

type Report struct {
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
	Pass            bool         `json:"pass"`
	Modes           []ModeReport `json:"modes"`
	LedgerRecords   int          `json:"ledger_records"`
	Recommendations []string     `json:"recommendations"`
}

// New wires a harness around the given notifier. The notifier is the
// production Progress Bus so self-check events flow through the same
// fan-out path as real traffic.
func New(notifier pipeline.Notifier) *Harness {
	costStore := NewMemoryCostStore()
	artifacts := NewFakeArtifacts()
	metadata := NewFakeMetadata()
	orch := pipeline.NewOrchestrator(pipeline.Options{
		Ledger:     ledger.New(costStore),
		Registry:   registry.New(),
		Provider:   &FakeProvider{Cost: 0.03},
		Enhancer:   &FakeEnhancer{},
		Artifacts:  artifacts,
		Metadata:   metadata,
		Notifier:   notifier,
		Runner:     queue.NewRunner(8),
		URLExpires: time.Hour,
	})
	return &Harness{
		orch:      orch,
		costStore: costStore,
		artifacts: artifacts,
		metadata:  metadata,
	}
}

func syntheticRequest(mode consts.Mode) pipeline.Request {
	switch mode {
	case consts.ModeVideo:
		return pipeline.Request{
			UserId: selfCheckUser,
			Mode:   consts.ModeVideo,
			Model:  "motion-1",
			Prompt: "a paper boat drifting down a rain gutter",
			Params: map[string]any{"duration_s": 4, "fps": "24"},
		}
	case consts.ModeEnhance:
		return pipeline.Request{
			UserId:       selfCheckUser,
			Mode:         consts.ModeEnhance,
			Model:        "upscale-x4",
			Params:       map[string]any{"scale": "4"},
			SourceImages: []string{"fake://input/low-res.png"},
		}
	default:
		return pipeline.Request{
			UserId: selfCheckUser,
			Mode:   consts.ModeImages,
			Model:  "sd-turbo-v2",
			Prompt: "a lighthouse at dawn",
			Params: map[string]any{"guidance_scale": 7.5, "size": "512x512", "n": 1},
		}
	}
}

// Run drives one synthetic generation per mode and reports per-stage
// outcomes with timings and aggregated recommendations.
func (h *Harness) Run(ctx context.Context) *Report {
	report := &Report{StartedAt: time.Now()}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	wg := &sync.WaitGroup{}
	h.orch.Runner().Start(runCtx, wg)

	modes := []consts.Mode{consts.ModeImages, consts.ModeVideo, consts.ModeEnhance}
	for _, mode := range modes {
		report.Modes = append(report.Modes, h.runMode(ctx, mode))
	}

	report.FinishedAt = time.Now()
	report.LedgerRecords = h.costStore.RecordCount(selfCheckUser)
	report.Pass = true
	for _, m := range report.Modes {
		if !m.Pass {
			report.Pass = false
		}
	}
	report.Recommendations = h.recommend(report)

	logs.Logger.Info().
		Bool("pass", report.Pass).
		Int("ledger_records", report.LedgerRecords).
		Dur("total_ms", report.FinishedAt.Sub(report.StartedAt)).
		Msg("pipeline self-check finished")
	return report
}

func (h *Harness) runMode(ctx context.Context, mode consts.Mode) ModeReport {
	mr := ModeReport{Mode: mode}
	start := time.Now()

	ticket, err := h.orch.Dispatch(syntheticRequest(mode))
	if err != nil {
		mr.Status = consts.RunStatusFailed
		mr.Stages = append(mr.Stages, StageCheck{Status: consts.StageStatusError, Error: err.Error()})
		return mr
	}
	select {
	case <-ticket.Done:
	case <-ctx.Done():
		mr.Status = consts.RunStatusFailed
		mr.Stages = append(mr.Stages, StageCheck{Status: consts.StageStatusError, Error: "self-check timed out"})
		return mr
	}

	run, ok := h.orch.Snapshot(ticket.RunId)
	if !ok {
		mr.Status = consts.RunStatusFailed
		return mr
	}
	mr.Status = run.Status
	mr.DurationMs = run.EndAt.Sub(run.StartAt).Milliseconds()
	for _, sr := range run.Stages {
		mr.Stages = append(mr.Stages, StageCheck{
			Stage:      sr.Stage,
			Status:     sr.Status,
			DurationMs: sr.DurationMs,
			Pass:       sr.Status == consts.StageStatusSuccess || sr.Status == consts.StageStatusSkipped,
			Error:      sr.ErrorMessage,
		})
	}
	mr.Pass = run.Status == consts.RunStatusSucceeded || run.Status == consts.RunStatusPartial
	mr.DurationMs = time.Since(start).Milliseconds()
	return mr
}

func (h *Harness) recommend(report *Report) []string {
	var recs []string
	for _, m := range report.Modes {
		for _, s := range m.Stages {
			if s.Status == consts.StageStatusError {
				recs = append(recs, fmt.Sprintf("%s mode: stage %s failed: %s", m.Mode, s.Stage, s.Error))
			}
			if s.Stage == consts.StageEnhancePrompt && s.Status == consts.StageStatusSkipped {
				recs = append(recs, fmt.Sprintf("%s mode: prompt enhancement skipped (%s)", m.Mode, s.Error))
			}
		}
	}
	if report.LedgerRecords == 0 {
		recs = append(recs, "no ledger records written during self-check; spend gate may be bypassed")
	}
	return recs
}
