package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/repairdesk/api-go/internal/httpapi"
	"github.com/example/repairdesk/api-go/internal/schedule"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API on the configured address.

When sync_interval is set the calendar is re-synced on that interval; with
watch_calendar_files, local .ics sources are re-synced as soon as they change.
Connected dashboards receive job and schedule events on /ws.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			a.cfg.Addr = addr
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := a.ensureTables(ctx); err != nil {
			return err
		}

		runner := &schedule.Runner{
			Syncer:   a.schedule,
			Interval: a.cfg.SyncInterval,
			Logger:   a.logger("sync"),
		}
		if a.cfg.WatchCalendarFiles {
			runner.WatchFiles = a.cfg.CalendarFiles()
		}
		runnerDone := make(chan struct{})
		if runner.Interval > 0 || len(runner.WatchFiles) > 0 {
			go func() {
				defer close(runnerDone)
				if err := runner.Run(ctx); err != nil {
					log.Printf("calendar runner stopped: %v", err)
				}
			}()
		} else {
			close(runnerDone)
		}

		server := httpapi.Server{
			Jobs:     a.repo,
			Views:    a.views,
			Schedule: a.schedule,
			Hub:      a.hub,
			Location: a.loc,
			Logger:   a.logger("http"),
		}
		httpServer := &http.Server{
			Addr:              a.cfg.Addr,
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Printf("API listening on %s", a.cfg.Addr)
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			cancel()
			<-runnerDone
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		log.Printf("shutting down (%d dashboard clients connected)", a.hub.ClientCount())
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		a.hub.Close()
		err = httpServer.Shutdown(shutdownCtx)
		<-runnerDone
		return err
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides REPAIRDESK_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
