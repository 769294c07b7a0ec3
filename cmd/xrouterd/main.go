package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"xrouter-network/internal/controlapi"
	"xrouter-network/internal/transport"
	"xrouter-network/internal/xrouter"
	"xrouter-network/pkg/config"
)

var log = logrus.WithField("component", "xrouterd")

func main() {
	var (
		envName     string
		walletIP    string
		walletPort  string
		walletUser  string
		walletPass  string
	)

	root := &cobra.Command{
		Use:   "xrouterd",
		Short: "xrouter-network service node daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(envName, walletIP, walletPort, walletUser, walletPass)
		},
	}
	root.Flags().StringVar(&envName, "env", "", "environment overlay config name")
	root.Flags().StringVar(&walletIP, "wallet-ip", "127.0.0.1", "wallet RPC host")
	root.Flags().StringVar(&walletPort, "wallet-port", "8332", "wallet RPC port")
	root.Flags().StringVar(&walletUser, "wallet-user", "", "wallet RPC user")
	root.Flags().StringVar(&walletPass, "wallet-password", "", "wallet RPC password")

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("xrouterd exited with error")
	}
}

func run(envName, walletIP, walletPort, walletUser, walletPass string) error {
	cfg, err := config.Load(envName)
	if err != nil {
		return err
	}

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logrus.SetLevel(level)
	}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.WithError(err).Warn("failed to open log file, logging to stderr")
		} else {
			logrus.SetOutput(f)
		}
	}

	settings, err := xrouter.LoadSettingsFile(cfg.XRouter.SettingsPath)
	if err != nil {
		return err
	}

	chain := xrouter.NewWalletChainSource(walletIP, walletPort, walletUser, walletPass)

	proxy := &transport.Proxy{}
	app := xrouter.NewApp(settings, chain, proxy)
	app.SettingsPath = cfg.XRouter.SettingsPath

	node, err := transport.NewNode(transport.Config{
		ListenAddr:     cfg.Node.ListenAddr,
		BootstrapPeers: cfg.Node.BootstrapPeers,
		DiscoveryTag:   cfg.Node.DiscoveryTag,
	})
	if err != nil {
		return err
	}
	defer node.Close()

	pm := transport.NewPeerManagement(node, app.Directory, app.HandleInbound)
	proxy.SetImpl(pm)
	app.Dialer = func(ctx context.Context) error {
		return pm.DialSeed(cfg.Node.BootstrapPeers)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.DialServiceNodes(ctx); err != nil {
		log.WithError(err).Warn("initial bootstrap dial had errors")
	}

	go refreshLoop(ctx, app)

	if cfg.Node.ControlAddr != "" {
		ctrl := controlapi.NewServer(cfg.Node.ControlAddr, app)
		go func() {
			if err := ctrl.Start(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("control api server failed")
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ctrl.Shutdown(shutdownCtx)
		}()
	}

	log.WithField("listen", cfg.Node.ListenAddr).Info("xrouterd started")
	<-ctx.Done()
	log.Info("xrouterd shutting down")
	return nil
}

// refreshLoop periodically re-fetches stale peer configs on the
// ConfigRefresh cadence.
func refreshLoop(ctx context.Context, app *xrouter.App) {
	ticker := time.NewTicker(xrouter.ConfigRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.Configs.Refresh(ctx, app.Directory)
		}
	}
}
