package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mastercactapus/lasergrbl/ledger"
	"github.com/mastercactapus/lasergrbl/machine"
	"github.com/mastercactapus/lasergrbl/machine/grbl"
)

// controller bundles everything attached to one serial link.
type controller struct {
	ledger *ledger.Ledger
	model  *machine.Model
	link   *grbl.Link
	m      *machine.Machine
}

func (a *app) newController() *controller {
	l := ledger.New(a.cfg.Terminal.History, a.log.Named("ledger"))
	model := machine.NewModel(a.log.Named("model"))
	link := grbl.NewLink(a.cfg.Grbl.Link(), l, model, a.log.Named("grbl"))
	return &controller{
		ledger: l,
		model:  model,
		link:   link,
		m:      machine.NewMachine(link, l, model, a.log.Named("machine")),
	}
}

// connect opens the configured port and reads the controller settings.
func (a *app) connect(ctx context.Context, c *controller, port string, baud int) error {
	if err := c.link.Connect(ctx, port, baud); err != nil {
		return err
	}
	if _, err := c.link.RequestSettings(ctx); err != nil {
		a.log.Warn("request settings", zap.Error(err))
	}
	return nil
}

func (c *controller) Close() {
	c.link.Disconnect()
	c.ledger.Close()
	c.model.Close()
}

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the controller and serve the HTTP api",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "Address to bind the server to.")
	cmd.Flags().String("dir", "", "Data directory to use.")
	a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	a.v.BindPFlag("server.data_dir", cmd.Flags().Lookup("dir"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	c := a.newController()
	defer c.Close()

	err := a.connect(ctx, c, a.cfg.Grbl.Port, a.cfg.Grbl.BaudRate)
	if err != nil {
		// the port can be opened later through the api
		a.log.Error("connect", zap.Error(err))
	}

	api := newAPI(a, c)
	defer api.Close()

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	a.ctx = ctx
	g.Go(func() error {
		a.log.Info("listening", zap.String("addr", srv.Addr), zap.String("data_dir", a.cfg.Server.DataDir))
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
