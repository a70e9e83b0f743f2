package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"library-lending/library"
)

func newAuditCmd(a *app) *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare available copies with the loan ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := a.requireAdmin(ctx); err != nil {
				return err
			}
			bad, err := a.mgr.Audit(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(bad) == 0 {
				fmt.Fprintln(out, "All copy counts match the ledger.")
				return nil
			}

			fmt.Fprintf(out, "%-5s %-30s %-6s %-10s %-7s %-8s\n", "ID", "Title", "Total", "Available", "Issued", "Expected")
			for _, d := range bad {
				fmt.Fprintf(out, "%-5d %-30s %-6d %-10d %-7d %-8d\n",
					d.BookID, truncateString(d.Title, 30), d.TotalCopies, d.AvailableCopies, d.IssuedLoans, d.Expected())
			}
			if !repair {
				return fmt.Errorf("%d book(s) out of balance; rerun with --repair", len(bad))
			}

			var errs []error
			for _, d := range bad {
				b, err := a.mgr.Repair(ctx, d.BookID)
				if err != nil {
					errs = append(errs, fmt.Errorf("book %d: %w", d.BookID, err))
					continue
				}
				fmt.Fprintf(out, "Repaired book %d: %d of %d available.\n", b.ID, b.AvailableCopies, b.TotalCopies)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "reset mismatched counts from the ledger")
	return cmd
}

func newServeMetricsCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose inventory and loan gauges for Prometheus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.MetricsAddr
			}
			a.registry.MustRegister(
				library.NewInventoryCollector(a.mgr.Database()),
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
			mux.Handle("/health", healthHandler(a.mgr.Database(), a.broker))
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("Serving metrics", zap.String("addr", addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			a.log.Info("Shutting down metrics server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $LENDING_METRICS_ADDR)")
	return cmd
}

// brokerHealth is what the health check needs from the event publisher.
type brokerHealth interface {
	IsHealthy() bool
}

// healthHandler answers 503 when the store is unreachable or a configured
// broker connection is down. broker is nil when no broker is configured.
func healthHandler(db *library.Database, broker brokerHealth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "store: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if broker != nil && !broker.IsHealthy() {
			http.Error(w, "broker: connection closed", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
