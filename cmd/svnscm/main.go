// Command svnscm watches svn working copies below workspace folders and
// streams their resource groups to a UI client over a WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"svnscm/internal/config"
	"svnscm/internal/credentials"
	"svnscm/internal/eventhub"
	"svnscm/internal/outputlog"
	"svnscm/internal/repository"
	"svnscm/internal/scm"
	"svnscm/internal/svn"
	"svnscm/internal/workerutil"
)

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.New("empty value")
	}
	*s = append(*s, v)
	return nil
}

type options struct {
	configPath string
	workspaces []string
	listen     string
	logLevel   string
	statusOnly bool
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("svnscm", flag.ContinueOnError)
	var opts options
	var workspaces stringList
	fs.StringVar(&opts.configPath, "config", "", "config file (default: user config dir)")
	fs.Var(&workspaces, "workspace", "workspace folder; repeatable (default: current directory)")
	fs.StringVar(&opts.listen, "listen", "", "event server address (overrides event_server.addr)")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (default: $"+envLogLevel+" or info)")
	fs.BoolVar(&opts.statusOnly, "status", false, "print the status of every working copy and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.workspaces = append(workspaces, fs.Args()...)
	if len(opts.workspaces) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return options{}, fmt.Errorf("resolve working directory: %w", err)
		}
		opts.workspaces = []string{wd}
	}
	if opts.configPath == "" {
		opts.configPath = config.DefaultPath()
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		slog.Error("[DEBUG-SCM] svnscm failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	level, err := resolveLogLevel(opts.logLevel)
	if err != nil {
		return err
	}
	var hubRef atomic.Pointer[eventhub.Hub]
	sink := func(l outputlog.Line) {
		if hub := hubRef.Load(); hub != nil {
			eventhub.OutputSink(hub)(l)
		}
	}
	handler, logCloser, err := newLogHandler(level, sink)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(slog.New(handler))

	load := config.EnsureFile
	if opts.statusOnly {
		load = config.Load
	}
	cfg, err := load(opts.configPath)
	if err != nil {
		slog.Warn("[WARN-CONFIG] config load failed, using defaults", "path", opts.configPath, "error", err)
	}
	if opts.statusOnly {
		cfg.AutoRefresh = false
		cfg.RemoteChanges.CheckFrequency = 0
	}
	for _, w := range config.ConsumeDefaultPathWarnings() {
		slog.Warn("[WARN-CONFIG] " + w)
	}
	holder := config.NewHolder(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := svn.NewClient(svn.ClientOptions{
		Path:            cfg.SvnPath,
		MaxConcurrent:   cfg.MaxConcurrentSvn,
		DefaultEncoding: cfg.DefaultEncoding,
	})
	version, err := client.Version(ctx)
	if err != nil {
		return fmt.Errorf("svn not usable: %w", err)
	}
	slog.Info("[DEBUG-SVN] using svn", "path", client.Path(), "version", version)

	store, err := credentials.OpenSQLiteStore(config.CredentialsPath(cfg, opts.configPath))
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer store.Close()

	prompter := newTerminalPrompter(os.Stdin, os.Stderr)
	repoOpts := repository.Options{
		Keyring:  credentials.NewKeyring(store),
		Prompter: prompter,
		Progress: logProgress{},
	}
	if !opts.statusOnly {
		repoOpts.NewWatcher = repository.NewRepositoryWatcher
	}
	mgr := scm.NewManager(scm.NewSvnClient(client, holder), scm.Options{
		Config:         holder,
		Upgrader:       scm.ClientUpgrader{Client: client, Confirm: prompter.ConfirmUpgrade},
		Repository:     repoOpts,
		WatchWorkspace: !opts.statusOnly,
	})
	defer mgr.Dispose()

	if opts.statusOnly {
		if err := mgr.Open(ctx, opts.workspaces); err != nil {
			return err
		}
		printStatus(os.Stdout, eventhub.ManagerSource{Manager: mgr}.Models())
		return nil
	}

	addr := cfg.EventServer.Addr
	if opts.listen != "" {
		addr = opts.listen
	}
	hub := eventhub.NewHub(eventhub.Options{Addr: addr, Source: eventhub.ManagerSource{Manager: mgr}})
	if err := hub.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := hub.Stop(); err != nil {
			slog.Warn("[DEBUG-WS] hub stop failed", "error", err)
		}
	}()
	hubRef.Store(hub)
	defer hubRef.Store(nil)
	unforward := eventhub.Forward(hub, mgr)
	defer unforward()
	fmt.Fprintln(os.Stdout, hub.URL())

	var workers sync.WaitGroup
	workerutil.RunWithPanicRecovery(ctx, "config-watch", &workers, func(ctx context.Context) {
		if err := holder.WatchFile(ctx, opts.configPath); err != nil {
			slog.Warn("[WARN-CONFIG] config watcher stopped", "path", opts.configPath, "error", err)
		}
	}, workerutil.RecoveryOptions{IsShutdown: func() bool { return ctx.Err() != nil }})
	defer func() {
		stop()
		workers.Wait()
	}()

	if err := mgr.Open(ctx, opts.workspaces); err != nil {
		slog.Warn("[DEBUG-SCM] workspace scan incomplete", "error", err)
	}
	slog.Info("[DEBUG-SCM] watching workspaces", "folders", mgr.Folders(), "repositories", len(mgr.Repositories()))

	<-ctx.Done()
	slog.Info("[DEBUG-SCM] shutdown started")
	return nil
}
