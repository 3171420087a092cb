package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/CharlesBrocato/car-stereo-system/internal/config"
	"github.com/CharlesBrocato/car-stereo-system/internal/core"
	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
)

func main() {
	var configPath string
	var serviceLogLevel int
	flag.StringVar(&configPath, "config", "/etc/headunit/config.toml", "Configuration file path")
	flag.IntVar(&serviceLogLevel, "log", 3, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	flag.Parse()

	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}
	l := logger.NewLogger(stdLogger, logger.LogLevel(serviceLogLevel))

	cfg, err := config.Load(configPath)
	if err != nil {
		l.Fatalf("Failed to load config: %v", err)
	}

	l.Infof("Starting head unit service...")

	system := core.NewHeadUnit(cfg, l)
	if err := system.Start(); err != nil {
		l.Fatalf("Failed to start system: %v", err)
	}

	l.Infof("System started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	l.Infof("Received signal %v, shutting down...", sig)
	system.Shutdown()
	l.Infof("Shutdown complete")
}
