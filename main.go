package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/reusedev/gen-hub/config"
	"github.com/reusedev/gen-hub/internal/components/mysql"
	"github.com/reusedev/gen-hub/internal/modules/auth"
	"github.com/reusedev/gen-hub/internal/modules/bus"
	"github.com/reusedev/gen-hub/internal/modules/dao"
	"github.com/reusedev/gen-hub/internal/modules/enhance"
	"github.com/reusedev/gen-hub/internal/modules/ledger"
	"github.com/reusedev/gen-hub/internal/modules/logs"
	"github.com/reusedev/gen-hub/internal/modules/model"
	"github.com/reusedev/gen-hub/internal/modules/pipeline"
	"github.com/reusedev/gen-hub/internal/modules/provider"
	"github.com/reusedev/gen-hub/internal/modules/queue"
	"github.com/reusedev/gen-hub/internal/modules/registry"
	"github.com/reusedev/gen-hub/internal/modules/storage/ali"
	"github.com/reusedev/gen-hub/internal/service/http"
	"github.com/reusedev/gen-hub/internal/service/http/handler"
	"github.com/reusedev/gen-hub/tools"
)

var (
	httpPort   string
	configPath string
)

func init() {
	flag.StringVar(&httpPort, "http-port", ":80", "listen http port")
	flag.StringVar(&configPath, "config", "config.yml", "config file path")
}

func main() {
	flag.Parse()
	config.Init(tools.PanicOnError(tools.ReadFile(configPath)))
	logs.InitLogger()
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}

	mysql.CreateDataBase(config.GConfig.MySQL)
	mysql.InitMySQL(config.GConfig.MySQL)
	mysql.DB.AutoMigrate(&model.GenerationRequest{}, &model.Generation{}, &model.CostRecord{}, &model.SpendingLimits{}, &model.GalleryItem{})

	store := ali.NewStore(config.GConfig.AliOss)
	validator := auth.NewStaticValidator(config.GConfig.Auth)
	hub := bus.NewHub(config.GConfig.Bus, validator)
	runner := queue.NewRunner(64)
	runner.Start(ctx, wg)

	var enhancer pipeline.Enhancer
	if config.GConfig.Enhance.BaseURL != "" {
		enhancer = enhance.NewClient(config.GConfig.Enhance)
	}

	costStore := dao.NewCostStore(mysql.DB)
	generationStore := dao.NewGenerationStore(mysql.DB)
	spendLedger := ledger.New(costStore)
	orch := pipeline.NewOrchestrator(pipeline.Options{
		Ledger:     spendLedger,
		Registry:   registry.New(),
		Provider:   provider.NewClient(config.GConfig.Provider),
		Enhancer:   enhancer,
		Artifacts:  store,
		Metadata:   generationStore,
		Notifier:   hub,
		Runner:     runner,
		URLExpires: config.GConfig.URLExpiresDuration(),
	})
	handler.Init(handler.Deps{
		Orchestrator: orch,
		Ledger:       spendLedger,
		Hub:          hub,
		Generations:  generationStore,
		Artifacts:    store,
	})

	osSignal := make(chan os.Signal, 1)
	signal.Notify(osSignal, syscall.SIGINT, syscall.SIGTERM)
	go func(ch chan os.Signal) {
		<-ch
		cancel()
		wg.Wait()
		hub.Shutdown()
		os.Exit(0)
	}(osSignal)
	http.Serve(httpPort, validator)
}
