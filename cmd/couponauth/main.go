package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/MrEthical07/couponauth/internal/bootstrap"
	"github.com/MrEthical07/couponauth/internal/logging"
)

func main() {
	var (
		configPath = flag.String("config", "configs/couponauth.yaml", "path to the YAML config file")
		dev        = flag.Bool("dev", false, "run on embedded redis with in-memory accounts")
	)
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath, *dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}

	log := logging.NewJSON(cfg.LogLevel).With("service", "couponauth")

	ctx := context.Background()
	rt, err := bootstrap.NewRuntime(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "bootstrap failed", "error", err)
		os.Exit(1)
	}

	if err := rt.Run(ctx); err != nil {
		log.Error(ctx, "server stopped with error", "error", err)
		os.Exit(1)
	}
}
