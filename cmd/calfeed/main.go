package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"calfeed/internal/config"
	"calfeed/internal/events"
	"calfeed/internal/feed"
	"calfeed/internal/geo"
	appLog "calfeed/internal/log"
	"calfeed/internal/model"
	"calfeed/internal/recurrence"
	"calfeed/internal/storage"
	"calfeed/internal/storage/memory"
	"calfeed/internal/storage/sqlite"
	"calfeed/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("calfeed starting", "version", version)

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"feeds", len(conf.Feeds),
		"map_embed", conf.Features.MapEmbed,
		"recurrence", conf.Features.Recurrence,
		"mobile_view", conf.Features.MobileView,
		"platform_links", conf.Features.PlatformLinks,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec := recurrence.Disabled()
	if conf.Features.Recurrence {
		rec = recurrence.New(recurrence.NewRRuleEngine())
	}

	snapshot := feed.NewSnapshot(feed.NewLoader(&http.Client{Timeout: 30 * time.Second}), sources(conf))
	snapshot.Refresh(ctx)

	if flags.once {
		if err := printUpcoming(snapshot.Events(ctx), conf, rec); err != nil {
			appLog.Error("failed to print upcoming events", err)
			os.Exit(1)
		}
		return
	}

	var resolver *geo.Resolver
	if conf.Features.MapEmbed {
		store, closeStore, err := openGeoStore(conf.Geocode.CachePath)
		if err != nil {
			appLog.Error("failed to open geocode cache", err, "path", conf.Geocode.CachePath)
			os.Exit(1)
		}
		defer closeStore()

		maxAge := time.Duration(conf.Geocode.MaxAgeDays) * 24 * time.Hour
		resolver = geo.NewResolver(
			geo.NewCache(store, maxAge),
			geo.NewNominatim(nil, conf.Geocode.Endpoint, conf.Geocode.UserAgent),
		)
	}

	sched := cron.New()
	if _, err := sched.AddFunc(conf.RefreshCron, func() {
		evs := snapshot.Refresh(ctx)
		appLog.Debug("feed refreshed", "events", len(evs))
	}); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	srv := web.NewServer(conf, web.Deps{
		Events:     snapshot,
		Recurrence: rec,
		Resolver:   resolver,
	})
	if err := srv.ListenAndServe(ctx); err != nil {
		appLog.Error("http server failed", err)
		os.Exit(1)
	}

	appLog.Info("calfeed exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/calfeed/config.yaml", "Path to config file (.yaml or .toml)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Load the feeds once, print the upcoming list as JSON and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

func sources(conf *config.Config) []feed.Source {
	out := make([]feed.Source, 0, len(conf.Feeds))
	for _, f := range conf.Feeds {
		out = append(out, feed.Source{ID: f.ID, URL: f.URL, Format: f.Format})
	}
	return out
}

// openGeoStore returns the SQLite store when a path is configured and an
// in-memory one otherwise.
func openGeoStore(path string) (storage.Store, func(), error) {
	if path == "" {
		return memory.NewStore(), func() {}, nil
	}
	st, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return st, func() {
		if err := st.Close(); err != nil {
			appLog.Error("failed to close geocode cache", err)
		}
	}, nil
}

func printUpcoming(evs []model.RawEvent, conf *config.Config, rec *recurrence.Adapter) error {
	loc := time.Local
	if conf.Timezone != "" {
		l, err := time.LoadLocation(conf.Timezone)
		if err != nil {
			return err
		}
		loc = l
	}

	list := events.SelectUpcoming(evs, time.Now().In(loc), loc, rec)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(events.Truncate(list, conf.UpcomingLimit))
}
