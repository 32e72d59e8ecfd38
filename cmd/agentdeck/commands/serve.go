package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/internal/agent"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/dialog"
	"github.com/agentdeck/agentdeck/internal/dispatch"
	"github.com/agentdeck/agentdeck/internal/event"
	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/internal/server"
	"github.com/agentdeck/agentdeck/internal/session"
	"github.com/agentdeck/agentdeck/internal/storage"
	"github.com/agentdeck/agentdeck/internal/transport"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
	serveUIDir    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agentdeck server",
	Long: `Start the agentdeck server: a websocket endpoint speaking the
command/event protocol, plus a health probe and optional static UI.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
	serveCmd.Flags().StringVar(&serveUIDir, "ui-dir", "", "Directory of static UI assets")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveHostname != "" {
		cfg.Host = serveHostname
	}
	if serveUIDir != "" {
		cfg.UIDir = serveUIDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.LogLevel)
	logCfg.Pretty = printLogs
	logCfg.LogToFile = !printLogs
	logging.Init(logCfg)
	defer logging.Close()

	logging.Info().Str("version", Version).Str("dir", workDir).Msg("starting agentdeck")

	bus := event.NewBus()
	defer bus.Close()

	store := storage.New(cfg.SessionsDir)
	mgr := session.NewManager(store, agent.EchoRunner{}, bus.Publish, cfg.ThinkingLevel)
	bridge := dialog.New(bus.Publish, cfg.DialogTimeout())
	bash := session.NewBashExecutor(bridge, bus.Publish)

	resources := session.NewResources(cfg.ResourcesDir)
	if err := resources.Watch(); err != nil {
		logging.Warn().Err(err).Str("dir", cfg.ResourcesDir).Msg("resource watching disabled")
	}
	defer resources.Close()

	dispatcher := dispatch.New(mgr, bash, bridge, resources, bus)
	mux := transport.NewMultiplexer(dispatcher.Dispatch)
	dispatcher.SetMultiplexer(mux)
	mux.Attach(bus)

	serverCfg := server.DefaultConfig()
	serverCfg.Host = cfg.Host
	serverCfg.Port = cfg.Port
	serverCfg.AllowedOrigins = cfg.AllowedOrigins
	serverCfg.AuthToken = cfg.AuthToken
	serverCfg.UIDir = cfg.UIDir

	srv := server.New(serverCfg, mux)

	go func() {
		logging.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown")
	}
	return nil
}
