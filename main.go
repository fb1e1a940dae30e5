package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"feedsync/internal/config"
	"feedsync/internal/fetch"
	"feedsync/internal/icon"
	"feedsync/internal/ingest"
	"feedsync/internal/model"
	"feedsync/internal/opml"
	"feedsync/internal/store"
)

func main() {
	setupLogging()

	configPath := flag.String("config", "feedsync.yaml", "path to the config file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	app, err := newApp(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	ctx := context.Background()

	switch cmd := args[0]; cmd {
	case "add":
		err = app.add(ctx, args[1:])
	case "import":
		err = app.importOPML(ctx, args[1:])
	case "export":
		err = app.exportOPML(ctx, args[1:])
	case "refresh":
		err = app.refresh(ctx)
	case "list":
		err = app.list(ctx)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: feedsync [-config file] <command> [arguments]

commands:
  add <url>          subscribe to a feed and ingest it once
  import <file>      import subscriptions from an OPML file
  export [file]      write subscriptions as OPML (stdout by default)
  refresh            re-ingest every subscribed feed
  list               print subscribed feeds
`)
}

func setupLogging() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// app wires the store and the ingestion pipeline for one CLI invocation.
type app struct {
	store   *store.Store
	ingest  *ingest.Service
	opml    *opml.Reconciler
	closeFn func() error
}

func newApp(cfg config.Config) (*app, error) {
	timeout, err := cfg.Fetch.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	if err := store.Init(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := store.New(db, logEvent)
	client := fetch.NewClient(timeout, cfg.Fetch.UserAgent)
	icons := icon.NewResolver(client)

	return &app{
		store:   st,
		ingest:  ingest.NewService(st, client, icons),
		opml:    opml.NewReconciler(st, icons),
		closeFn: db.Close,
	}, nil
}

func (a *app) Close() {
	if err := a.closeFn(); err != nil {
		slog.Error("close database", "err", err)
	}
}

func logEvent(event store.Event) {
	slog.Info("store change", "op", event.Op.String(), "kind", event.Kind.String(), "source_ids", event.SourceIDs)
}

func (a *app) add(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("add: expected exactly one feed URL")
	}

	source, err := a.ingest.RetrieveFeed(ctx, args[0])
	if err != nil {
		return fmt.Errorf("add feed: %w", err)
	}

	fmt.Printf("subscribed %q (%s, %d items)\n", source.Name, source.FormatType, len(source.Entries))

	return nil
}

func (a *app) importOPML(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("import: expected exactly one OPML file")
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open OPML file: %w", err)
	}
	defer file.Close()

	doc, err := opml.Parse(file)
	if err != nil {
		return fmt.Errorf("parse OPML file: %w", err)
	}

	inserted, err := a.opml.Reconcile(ctx, doc.Body.Outlines)
	if err != nil {
		return fmt.Errorf("import subscriptions: %w", err)
	}

	fmt.Printf("imported %d new feeds\n", inserted)

	return nil
}

func (a *app) exportOPML(ctx context.Context, args []string) error {
	sources, err := a.store.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	folders, err := a.store.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("list folders: %w", err)
	}

	folderNames := make(map[int64]string, len(folders))
	for _, folder := range folders {
		folderNames[folder.ID] = folder.Name
	}

	subscriptions := make([]opml.Subscription, 0, len(sources))
	for _, source := range sources {
		subscriptions = append(subscriptions, opml.Subscription{
			Title:  source.Name,
			URL:    source.URI,
			Folder: folderNames[source.FolderID],
		})
	}

	out := os.Stdout
	if len(args) == 1 {
		file, createErr := os.Create(args[0])
		if createErr != nil {
			return fmt.Errorf("create OPML file: %w", createErr)
		}
		defer file.Close()
		out = file
	} else if len(args) > 1 {
		return fmt.Errorf("export: expected at most one output file")
	}

	if err := opml.Write(out, "feedsync subscriptions", subscriptions); err != nil {
		return fmt.Errorf("write OPML: %w", err)
	}

	return nil
}

func (a *app) refresh(ctx context.Context) error {
	progress := func(done, total int, last *model.FeedSource, err error) {
		if err != nil {
			fmt.Printf("[%d/%d] %s: %v\n", done, total, last.URI, err)
			return
		}
		fmt.Printf("[%d/%d] %s (%d items)\n", done, total, last.URI, len(last.Entries))
	}

	return a.ingest.RefreshAll(ctx, progress)
}

func (a *app) list(ctx context.Context) error {
	sources, err := a.store.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	folders, err := a.store.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("list folders: %w", err)
	}

	folderNames := make(map[int64]string, len(folders))
	for _, folder := range folders {
		folderNames[folder.ID] = folder.Name
	}

	for _, source := range sources {
		line := fmt.Sprintf("%d\t%s\t%s", source.ID, source.Name, source.URI)
		if name := folderNames[source.FolderID]; name != "" {
			line += "\t[" + name + "]"
		}
		fmt.Println(line)
	}

	return nil
}
