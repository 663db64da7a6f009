package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Proxy-Agent-Network/highcourt/api"
	"github.com/Proxy-Agent-Network/highcourt/config"
	"github.com/Proxy-Agent-Network/highcourt/court"
	"github.com/Proxy-Agent-Network/highcourt/entropy"
	"github.com/Proxy-Agent-Network/highcourt/logging"
	"github.com/Proxy-Agent-Network/highcourt/types"
	"github.com/Proxy-Agent-Network/highcourt/utils"
	"github.com/niclabs/tcrsa"
)

var sigChan = make(chan os.Signal, 1)

func main() {
	cfgPath := flag.String("config", "config/courtd.yaml", "path to court config")
	flag.Parse()

	cfg, err := config.NewConfig(*cfgPath)
	utils.PanicOnError(err)
	logging.Init(cfg.Log)
	logger := logging.GetLogger().WithField("binary", "courtd")

	storage, err := types.OpenStorage(cfg.Storage.Path)
	utils.PanicOnError(err)
	defer storage.Close()

	source := buildEntropy(cfg)
	keyMeta := loadQuorumKey(cfg)
	if keyMeta == nil {
		logger.Warn("no quorum key configured, verdicts carry raw signatures only")
	}

	engine := court.NewEngine(cfg, storage, source, keyMeta, logger)
	engine.Start()

	server := api.NewServer(cfg.API.Listen, engine, logger)
	go func() {
		utils.PanicOnError(server.Start())
	}()

	signal.Notify(sigChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-sigChan
	logger.Info("[HighCourt] Exit...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	utils.LogOnError(server.Stop(ctx), "api shutdown", logger)
	engine.Stop()
}

func buildEntropy(cfg *config.Config) entropy.Source {
	switch cfg.Entropy.Type {
	case "fixed":
		seed, err := hex.DecodeString(cfg.Entropy.FixedSeed)
		utils.PanicOnError(err)
		source, err := entropy.NewFixedSource(seed)
		utils.PanicOnError(err)
		return source
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		source, err := entropy.NewBlockHashSource(ctx, cfg.Entropy.RPCAddress)
		utils.PanicOnError(err)
		return source
	}
}

func loadQuorumKey(cfg *config.Config) *tcrsa.KeyMeta {
	if cfg.Court.QuorumKeyPath == "" {
		return nil
	}
	data, err := os.ReadFile(cfg.Court.QuorumKeyPath)
	utils.PanicOnError(err)
	meta := &tcrsa.KeyMeta{}
	utils.PanicOnError(json.Unmarshal(data, meta))
	return meta
}
