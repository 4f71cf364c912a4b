package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mastercactapus/lasergrbl/config"
)

type app struct {
	// ctx lives as long as the process; set by serve.
	ctx context.Context

	v   *viper.Viper
	cfg *config.Config
	log *zap.Logger

	configFile string
	debug      bool
}

func main() {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:           "lasercnc",
		Short:         "Stream G-code to a Grbl laser cutter",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				a.log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "Config file (YAML).")
	pf.BoolVar(&a.debug, "debug", false, "Enable debug logging.")
	pf.String("port", "", "Serial port of the controller.")
	pf.Int("baud", 0, "Baud rate of the serial port.")
	a.v.BindPFlag("grbl.port", pf.Lookup("port"))
	a.v.BindPFlag("grbl.baud_rate", pf.Lookup("baud"))

	root.AddCommand(
		a.serveCmd(),
		a.previewCmd(),
		a.streamCmd(),
		portsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func (a *app) init() error {
	var err error
	if a.debug {
		a.log, err = zap.NewDevelopment()
	} else {
		a.log, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	a.cfg, err = config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.log.Debug("config loaded", zap.Any("config", a.cfg))
	return nil
}

func (a *app) baseContext() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}
