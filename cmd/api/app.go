package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/example/repairdesk/api-go/internal/blob"
	"github.com/example/repairdesk/api-go/internal/config"
	"github.com/example/repairdesk/api-go/internal/dashboard"
	"github.com/example/repairdesk/api-go/internal/jobs"
	"github.com/example/repairdesk/api-go/internal/notify"
	"github.com/example/repairdesk/api-go/internal/schedule"
	"github.com/example/repairdesk/api-go/internal/store"
	"github.com/example/repairdesk/api-go/internal/views"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg config.Config
	loc *time.Location
	out io.Writer

	db       *store.SQLite
	repo     *jobs.Repository
	views    *views.Projector
	schedule *schedule.Synchronizer
	hub      *dashboard.Hub

	closers []func() error
}

func newApp(withHub bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, loc: loc, out: os.Stderr}
	a.setupLogging()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		a.Close()
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := store.Open(filepath.Join(cfg.DataDir, "sheets.db"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	if withHub && cfg.Dashboard {
		a.hub = dashboard.NewHub(dashboard.Config{Logger: a.logger("dashboard")})
		a.closers = append(a.closers, func() error { a.hub.Close(); return nil })
	}

	mailer, err := a.mailer()
	if err != nil {
		a.Close()
		return nil, err
	}
	notifier := &notify.Notifier{
		Renderer: notify.Renderer{Shop: cfg.ShopName, Location: loc},
		Mailer:   mailer,
		Logger:   a.logger("notify"),
	}

	a.repo = jobs.NewRepository(db.Table(cfg.MasterLogSheet), jobs.Config{
		Technician:   cfg.DefaultTechnician,
		RequireJobID: cfg.RequireJobID,
		Location:     loc,
		Logger:       a.logger("jobs"),
	}, notifier, a.hub)

	a.views = views.NewProjector(db, views.Config{
		MasterLogSheet: cfg.MasterLogSheet,
		ScheduleSheet:  cfg.ScheduleSheet,
		CheckinSheet:   cfg.CheckinSheet,
		IntakeSheet:    cfg.IntakeSheet,
	})

	a.schedule = schedule.NewSynchronizer(db.Table(cfg.ScheduleSheet),
		schedule.ICSResolver{Sources: cfg.Calendars},
		schedule.Config{
			Calendar:      cfg.CalendarName,
			LookaheadDays: cfg.LookaheadDays,
			Location:      loc,
			Logger:        a.logger("schedule"),
		}, a.hub)
	return a, nil
}

// setupLogging sends the standard logger to stderr and, when LogFile is set,
// to a rotated file as well.
func (a *app) setupLogging() {
	if a.cfg.LogFile == "" {
		return
	}
	rotator := &lumberjack.Logger{
		Filename:   a.cfg.LogFile,
		MaxSize:    a.cfg.LogMaxSizeMB,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}
	a.out = io.MultiWriter(os.Stderr, rotator)
	log.SetOutput(a.out)
	a.closers = append(a.closers, rotator.Close)
}

func (a *app) logger(component string) *log.Logger {
	return log.New(a.out, "["+component+"] ", log.LstdFlags)
}

// mailer picks SMTP when a relay is configured, else drops .eml files under
// the data dir, else only logs.
func (a *app) mailer() (notify.Mailer, error) {
	if a.cfg.SMTP.Host != "" {
		m, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     a.cfg.SMTP.Host,
			Port:     a.cfg.SMTP.Port,
			Username: a.cfg.SMTP.Username,
			Password: a.cfg.SMTP.Password,
			From:     a.cfg.SMTP.From,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("mail: smtp via %s", a.cfg.SMTP.Host)
		return m, nil
	}
	if a.cfg.MailDropDir != "" {
		from := a.cfg.SMTP.From
		if from == "" {
			from = "repairdesk@localhost"
		}
		log.Printf("mail: smtp not configured, dropping messages in %s", filepath.Join(a.cfg.DataDir, a.cfg.MailDropDir))
		return notify.DropMailer{
			Blobs: blob.LocalFS{Root: a.cfg.DataDir},
			From:  from,
			Dir:   a.cfg.MailDropDir,
		}, nil
	}
	log.Printf("mail: delivery disabled, messages are only logged")
	return notify.LogMailer{Logger: a.logger("mail")}, nil
}

// ensureTables creates the master log and schedule tables with their header
// rows when missing, and appends any header columns an existing table lacks.
func (a *app) ensureTables(ctx context.Context) error {
	for _, name := range a.managedTables() {
		created, added, err := a.db.EnsureTable(ctx, name, tableHeaders(a.cfg, name))
		if err != nil {
			return fmt.Errorf("ensure %q: %w", name, err)
		}
		if created {
			log.Printf("created table %q", name)
		}
		if len(added) > 0 {
			log.Printf("table %q: added columns %v", name, added)
		}
	}
	return nil
}

func (a *app) managedTables() []string {
	return []string{a.cfg.MasterLogSheet, a.cfg.ScheduleSheet}
}

func tableHeaders(cfg config.Config, name string) []string {
	if name == cfg.ScheduleSheet {
		return schedule.Headers
	}
	return jobs.Headers
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
	a.closers = nil
}
