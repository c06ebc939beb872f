package handler

import (
	"github.com/reusedev/gen-hub/internal/modules/bus"
	"github.com/reusedev/gen-hub/internal/modules/dao"
	"github.com/reusedev/gen-hub/internal/modules/ledger"
	"github.com/reusedev/gen-hub/internal/modules/pipeline"
	"github.com/reusedev/gen-hub/internal/modules/storage/ali"
)

var (
	orch        *pipeline.Orchestrator
	spendLedger *ledger.Ledger
	hub         *bus.Hub
	generations *dao.GenerationStore
	artifacts   *ali.Store
)

type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Ledger       *ledger.Ledger
	Hub          *bus.Hub
	Generations  *dao.GenerationStore
	Artifacts    *ali.Store
}

func Init(d Deps) {
	orch = d.Orchestrator
	spendLedger = d.Ledger
	hub = d.Hub
	generations = d.Generations
	artifacts = d.Artifacts
}
