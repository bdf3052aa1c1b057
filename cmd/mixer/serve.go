package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ndimixer/mixer/pkg/browser"
	"github.com/ndimixer/mixer/pkg/channel"
	"github.com/ndimixer/mixer/pkg/compositor"
	"github.com/ndimixer/mixer/pkg/config"
	"github.com/ndimixer/mixer/pkg/filter"
	mixerlog "github.com/ndimixer/mixer/pkg/log"
	"github.com/ndimixer/mixer/pkg/server"
	"github.com/ndimixer/mixer/pkg/videoio"
)

func newServeCmd() *cobra.Command {
	var configPath string
	var forceGPU bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mixer, composing every configured channel until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe(cmd, configPath, forceGPU)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "./config.toml", "path to the TOML configuration file")
	cmd.Flags().BoolVar(&forceGPU, "force-gpu", false, "exit 3 if the GPU compositor backend cannot be initialized, instead of falling back to the CPU backend")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, forceGPU bool) {
	cfg, err := config.Load(configPath)
	if err != nil {
		Fatal(cmd, err.Error(), 2)
		return
	}

	if err := mixerlog.Init(cfg.Settings.LogLevel); err != nil {
		Fatal(cmd, err.Error(), 2)
		return
	}

	watcher, err := config.WarnOnReplace(configPath)
	if err != nil {
		log.Warn().Err(err).Msg("config file watcher disabled")
	} else {
		defer watcher.Close()
	}

	backend, compositorName := buildBackend(cmd, forceGPU)
	defer backend.Close()

	chain, err := filter.NewChain(filter.Builtins(), compositorName == "gpu")
	if err != nil {
		Fatal(cmd, err.Error(), 2)
		return
	}

	videoio.InitGStreamer()

	var browserPool *browser.Pool
	if needsBrowser(cfg) {
		browserPool, err = browser.New("")
		if err != nil {
			log.Warn().Err(err).Msg("browser overlay support disabled: failed to launch headless browser")
		} else {
			defer browserPool.Close()
		}
	}

	var running []*runningChannel
	for _, chCfg := range cfg.Channel {
		rc, err := buildChannel(chCfg, backend, chain, browserPool)
		if err != nil {
			Fatal(cmd, err.Error(), 2)
			return
		}
		running = append(running, rc)
	}

	sup := &channel.Supervisor{}
	for _, rc := range running {
		rc.Start(func(event, detail string) {
			log.Warn().Str("channel", rc.ch.Config().Name).Str("event", event).Msg(detail)
		})
		rc.addTo(sup, rc.ch.Config().Name)
		log.Info().Str("channel", rc.ch.Config().Name).Str("output", rc.ch.Config().OutputName).Msg("channel started")
	}

	source := &statusSource{compositorName: compositorName, startedAt: time.Now(), channels: running}
	go func() {
		if err := server.ListenAndServe(cfg.Settings.StatusPort, source); err != nil {
			log.Warn().Err(err).Msg("status endpoint stopped")
		}
	}()

	waitForShutdownSignal()

	log.Info().Msg("shutting down")
	sup.Shutdown()
}

// buildBackend attempts the GPU compositor backend first, falling back to
// the CPU backend unless forceGPU demands a hard failure (spec §6 "exit 3
// GPU init failure ... exit only if explicitly forced").
func buildBackend(cmd *cobra.Command, forceGPU bool) (compositor.Backend, string) {
	gpu, err := compositor.NewGPUBackend()
	if err == nil {
		return gpu, "gpu"
	}

	if forceGPU {
		Fatal(cmd, err.Error(), 3)
	}

	log.Warn().Err(err).Msg("GPU compositor backend unavailable, falling back to CPU")
	return compositor.NewCPUBackend(), "cpu"
}

func needsBrowser(cfg *config.Config) bool {
	for _, ch := range cfg.Channel {
		if len(ch.BrowserOverlay) > 0 {
			return true
		}
	}
	return false
}

func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
