// @title           Korner Support Service API
// @version         1.0
// @description     KYC, жалобы на контент и обращения в поддержку.
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"korner-support-service/internal/config"
)

type cli struct {
	configPath string
	cfg        *config.Config
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

func (c *cli) preRun(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	config.SetupLogger(cfg)
	c.cfg = cfg
	return nil
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:               "korner-support",
		Short:             "KYC, reports and support tickets for korner",
		SilenceUsage:      true,
		PersistentPreRunE: c.preRun,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", config.DefaultPath, "path to the YAML config")

	root.AddCommand(serveCommand(c))
	root.AddCommand(workersCommand(c))
	root.AddCommand(migrateCommand(c))
	root.AddCommand(tokenCommand(c))
	return root
}

// signalContext отменяется по SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	defer recoverPanic()

	if err := newRootCommand().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
