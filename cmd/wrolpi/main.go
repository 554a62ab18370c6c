// Command wrolpi runs the archive appliance core.
//
//	serve        Import configs, start the download workers, switch worker
//	             and HTTP API. For systemd.
//	refresh      Walk the media directory and reconcile the database.
//	config       import | dump the YAML config mirror.
//	download     Enqueue a URL and process it synchronously.
//	healthcheck  Probe the running appliance's HTTP API.
//	version      Print the build version.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/wrolpi/wrolpi/internal/api"
	"github.com/wrolpi/wrolpi/internal/archives"
	"github.com/wrolpi/wrolpi/internal/collections"
	"github.com/wrolpi/wrolpi/internal/config"
	"github.com/wrolpi/wrolpi/internal/configmirror"
	"github.com/wrolpi/wrolpi/internal/db"
	"github.com/wrolpi/wrolpi/internal/download"
	"github.com/wrolpi/wrolpi/internal/events"
	"github.com/wrolpi/wrolpi/internal/files"
	"github.com/wrolpi/wrolpi/internal/flags"
	"github.com/wrolpi/wrolpi/internal/health"
	"github.com/wrolpi/wrolpi/internal/inventories"
	"github.com/wrolpi/wrolpi/internal/modeler"
	"github.com/wrolpi/wrolpi/internal/refresh"
	"github.com/wrolpi/wrolpi/internal/switches"
	"github.com/wrolpi/wrolpi/internal/tags"
	"github.com/wrolpi/wrolpi/internal/videos"
)

var version = "dev"

func main() {
	log.SetPrefix("wrolpi: ")
	log.SetFlags(log.LstdFlags)
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Printf("load .env: %v", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wrolpi",
		Short:         "Self-hosted archive appliance core",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(serveCmd(), refreshCmd(), configCmd(), downloadCmd(), healthcheckCmd(), versionCmd())
	return root
}

// app wires every subsystem over one database handle.
type app struct {
	cfg      *config.Config
	db       *db.DB
	flags    *flags.Flags
	events   *events.Log
	registry *prometheus.Registry
	bus      *switches.Bus

	tags        *tags.Store
	files       *files.Store
	collections *collections.Service
	archives    *archives.Store
	archiver    *archives.Downloader
	videos      *videos.Store
	inventories *inventories.Store
	downloads   *download.Store
	manager     *download.Manager
	refresher   *refresh.Refresher
	mirror      *configmirror.Mirror
}

func newApp(cfg *config.Config) (*app, error) {
	d, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		db:       d,
		flags:    flags.New(cfg.WROLFlagFile()),
		registry: prometheus.NewRegistry(),
		bus:      switches.NewBus(),
	}
	a.registry.MustRegister(collectors.NewGoCollector())
	a.events = events.NewLog(a.registry)

	a.tags = tags.NewStore(d)
	a.files = files.NewStore(d)
	collStore := collections.NewStore(d)
	a.collections = &collections.Service{
		MediaPath: cfg.MediaPath, Store: collStore,
		Tags: a.tags, Files: a.files, Bus: a.bus,
	}
	a.archives = archives.NewStore(d)
	a.archiver = archives.NewDownloader(cfg.MediaPath, collStore, a.archives)
	a.videos = videos.NewStore(d, collStore)
	a.inventories = inventories.NewStore(d)
	a.downloads = download.NewStore(d)

	registry := download.NewRegistry()
	a.manager = download.NewManager(a.downloads, registry, a.flags, a.events)
	a.manager.Workers = cfg.DownloadWorkers
	a.manager.PollInterval = cfg.DownloadPollInterval
	registry.Register(a.archiver)
	registry.Register(&download.FileDownloader{MediaPath: cfg.MediaPath})
	registry.Register(&archives.ScrapeDownloader{Manager: a.manager})
	registry.Register(&videos.Downloader{
		MediaPath: cfg.MediaPath, Store: a.videos, Collections: collStore,
	})

	modelers := modeler.NewRegistry()
	modelers.Register("archive", "text/html", (&archives.Modeler{
		MediaPath: cfg.MediaPath, Archives: a.archives,
		Collections: collStore, Files: a.files,
	}).Model)
	modelers.Register("video", "video/", (&videos.Modeler{
		Store: a.videos, Files: a.files,
	}).Model)

	a.refresher = refresh.New(cfg.MediaPath, a.files, a.registry, modelers, a.flags, a.events)
	a.refresher.AddHook("delete_empty_collections", func(ctx context.Context) error {
		_, err := collStore.DeleteEmpty(ctx)
		return err
	})
	a.refresher.AddHook("reap_invalid_archives", func(ctx context.Context) error {
		_, err := a.archives.Reap(ctx, archives.SinglefileLocation)
		return err
	})

	a.mirror = configmirror.NewMirror(cfg.ConfigDir(), a.flags)
	a.mirror.Add(
		&configmirror.TagsFile{Mirror: a.mirror, Store: a.tags},
		&configmirror.ChannelsFile{
			Mirror: a.mirror, Store: a.videos, Collections: collStore,
			Tags: a.tags, MediaPath: cfg.MediaPath,
		},
		&configmirror.DomainsFile{Mirror: a.mirror, Store: collStore, Tags: a.tags},
		&configmirror.InventoriesFile{Mirror: a.mirror, Store: a.inventories},
		&configmirror.DownloadsFile{Mirror: a.mirror, Store: a.downloads},
	)
	a.mirror.RegisterSwitches(a.bus)
	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		log.Printf("close database: %v", err)
	}
}

func (a *app) server() *api.Server {
	return &api.Server{
		MediaPath:    a.cfg.MediaPath,
		SettingsPath: a.cfg.SettingsPath(),
		Flags:        a.flags,
		Bus:          a.bus,
		Events:       a.events,
		Tags:         a.tags,
		Collections:  a.collections,
		Manager:      a.manager,
		Refresher:    a.refresher,
		Mirror:       a.mirror,
		Archiver:     a.archiver,
		Archives:     a.archives,
		Videos:       a.videos,
		Inventories:  a.inventories,
		Registry:     a.registry,
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the appliance: config import, download workers, HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			results := a.mirror.ImportAllConfigs(ctx)
			allOK := true
			for name, ok := range results {
				if !ok {
					allOK = false
					log.Printf("config %s failed to import; downloads stay disabled", name)
				}
			}
			settings, err := config.ReadSettings(cfg.SettingsPath())
			if err != nil {
				return err
			}
			if allOK && settings.DownloadOnStartup && !a.flags.WROLModeEnabled() {
				a.flags.EnableDownloads()
			}

			go func() {
				if err := a.bus.Run(ctx); err != nil && ctx.Err() == nil {
					log.Printf("switch worker stopped: %v", err)
				}
			}()
			go a.manager.Run(ctx)

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           a.server().Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Printf("listening on %s (media %s)", cfg.HTTPAddr, cfg.MediaPath)
				errCh <- srv.ListenAndServe()
			}()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case s := <-sig:
				log.Printf("received %s, shutting down", s)
			}

			a.flags.StopDownloads()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("http shutdown: %v", err)
			}
			cancel()
			// Flush queued config dumps before the process exits.
			a.bus.RunPending(shutdownCtx)
			return nil
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [directory ...]",
		Short: "Reconcile the database with the media directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(config.Load())
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.refresher.Refresh(cmd.Context(), args...); err != nil {
				return err
			}
			a.bus.RunPending(cmd.Context())
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the YAML config mirror",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "import",
			Short: "Make the database match the config files",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(config.Load())
				if err != nil {
					return err
				}
				defer a.close()
				results := a.mirror.ImportAllConfigs(cmd.Context())
				failed := 0
				for name, ok := range results {
					status := "ok"
					if !ok {
						status = "FAILED"
						failed++
					}
					fmt.Printf("%-28s %s\n", name, status)
				}
				if failed > 0 {
					return fmt.Errorf("%d config file(s) failed to import", failed)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "dump",
			Short: "Write the database state to the config files",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(config.Load())
				if err != nil {
					return err
				}
				defer a.close()
				return a.mirror.DumpAll(cmd.Context())
			},
		},
	)
	return cmd
}

func downloadCmd() *cobra.Command {
	var downloader string
	var destination string
	cmd := &cobra.Command{
		Use:   "download URL",
		Short: "Enqueue a URL and process it synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(config.Load())
			if err != nil {
				return err
			}
			defer a.close()
			a.flags.EnableDownloads()

			d, err := a.manager.CreateDownload(cmd.Context(), download.CreateRequest{
				URL: args[0], Downloader: downloader, Destination: destination,
			})
			if err != nil {
				return err
			}
			claimed, err := a.manager.GetNewDownload(cmd.Context())
			if err != nil {
				return err
			}
			if claimed == nil {
				return fmt.Errorf("download %d was not eligible to run", d.ID)
			}
			a.manager.Process(cmd.Context(), claimed)
			done, err := a.manager.Store.ByID(cmd.Context(), claimed.ID)
			if err != nil {
				return err
			}
			if done.Status != download.StatusComplete {
				return fmt.Errorf("download %s: %s", done.Status, done.Error)
			}
			fmt.Println(done.Location)
			return nil
		},
	}
	cmd.Flags().StringVar(&downloader, "downloader", "", "force a downloader (archive, file, video, scrape)")
	cmd.Flags().StringVar(&destination, "destination", "", "destination directory")
	return cmd
}

func healthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the running appliance's HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			addr := cfg.HTTPAddr
			if strings.HasPrefix(addr, ":") {
				addr = "127.0.0.1" + addr
			}
			return health.Check(cmd.Context(), "http://"+addr)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("wrolpi " + version)
		},
	}
}
