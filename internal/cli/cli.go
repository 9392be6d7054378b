// Package cli provides the cobra commands of the invoicedesk binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"invoicedesk/internal/analytics"
	"invoicedesk/internal/app"
	"invoicedesk/internal/config"
	httpapi "invoicedesk/internal/http"
)

// Execute runs the root command with os.Args.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	root := &cobra.Command{
		Use:          "invoicedesk",
		Short:        "Inventory and invoicing service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String("log-level", "info", "log level: debug|info|warn|error")
	root.PersistentFlags().String("store", "memory", "store backend: memory|mongo")
	_ = v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("store.kind", root.PersistentFlags().Lookup("store"))

	load := func() (*config.Config, error) { return config.Load(v, cfgFile) }

	root.AddCommand(newServeCmd(v, load), newExportCmd(load))
	return root
}

func newServeCmd(v *viper.Viper, load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			srv := httpapi.NewServer(httpapi.Deps{
				Products:     a.Products,
				Invoices:     a.Billing,
				Sessions:     a.Sessions,
				Workflow:     a.Workflow,
				Scanner:      a.Scanner,
				Decoder:      a.Decoder,
				Log:          a.Log,
				AllowOrigins: cfg.HTTP.AllowOrigins,
			})
			httpServer := &http.Server{
				Addr:    cfg.HTTP.Addr,
				Handler: srv.Engine(),
			}

			errCh := make(chan error, 1)
			go func() {
				a.Log.Info("HTTP server listening", "addr", httpServer.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)
			select {
			case <-quit:
			case err := <-errCh:
				return fmt.Errorf("server error: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				a.Log.Error("shutdown error", "error", err)
				return err
			}
			a.Log.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().String("addr", ":9091", "listen address")
	_ = v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func newExportCmd(load func() (*config.Config, error)) *cobra.Command {
	var from, to, file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write invoices of a date range to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := time.Parse("2006-01-02", from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := time.Parse("2006-01-02", to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			list, err := a.Billing.ListByDateRange(cmd.Context(), start, end.AddDate(0, 0, 1))
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if file != "-" {
				f, err := os.Create(file)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := analytics.WriteXLSX(out, list); err != nil {
				return err
			}
			a.Log.Info("export written", "file", file, "invoices", len(list))
			return nil
		},
	}
	today := time.Now().UTC().Format("2006-01-02")
	cmd.Flags().StringVar(&from, "from", today, "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", today, "last day (inclusive), YYYY-MM-DD")
	cmd.Flags().StringVar(&file, "file", "sales.xlsx", "output file, - for stdout")
	return cmd
}
