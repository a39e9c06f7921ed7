package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"time"

	"vlhub/hub/internal/conn"
	"vlhub/hub/internal/httpapi"
	"vlhub/hub/internal/scheduler"
	"vlhub/hub/internal/store"
)

// Version is the hub's reported software version, sent in the $Lock
// handshake and the CLI's "version" subcommand.
const Version = "1.0.0"

func main() {
	if len(os.Args) > 1 {
		cliDB := "verlihub.db"
		if RunCLI(os.Args[1:], cliDB) {
			return
		}
	}

	addr := flag.String("addr", ":411", "NMDC listen address")
	apiAddr := flag.String("api-addr", ":8080", "admin REST API listen address (empty to disable)")
	dbPath := flag.String("db", "verlihub.db", "SQLite database path")
	useTLS := flag.Bool("tls", false, "wrap the NMDC listener in a self-signed TLS certificate")
	certValidity := flag.Duration("cert-validity", 365*24*time.Hour, "self-signed TLS certificate validity")
	hubName := flag.String("name", "VerliHub", "hub name announced in $Lock / MyINFO")
	topic := flag.String("topic", "", "hub topic")
	maxConnections := flag.Int("max-connections", defaultMaxConnections, "maximum total connections")
	perIPLimit := flag.Int("per-ip-limit", defaultPerIPLimit, "maximum connections per source IP")
	botName := flag.String("bot-name", "Hub-Security", "nick for the built-in security robot (empty to disable)")
	botGreeting := flag.String("bot-greeting", "Welcome to the hub.", "greeting the security robot posts on startup")
	hublistURL := flag.String("hublist-url", "", "public hublist registration URL (empty to disable)")
	chatLogPath := flag.String("chat-log", "", "path to the mainchat log file (empty to disable)")
	flag.Parse()

	st, err := store.Open(*dbPath)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	seedDefaults(context.Background(), st, *hubName)

	cfg := conn.DefaultConfig()
	cfg.HubName = *hubName
	cfg.HubVersion = Version
	cfg.Topic = *topic

	hub := conn.NewHub(cfg, st)

	if err := hub.LoadBans(context.Background()); err != nil {
		slog.Warn("initial ban load failed", "error", err)
	}

	var chatLog *ChatLog
	if *chatLogPath != "" {
		chatLog, err = NewChatLog(*chatLogPath, chatLogMaxLines)
		if err != nil {
			slog.Error("failed to open chat log", "error", err)
			os.Exit(1)
		}
		defer chatLog.Close()
		hub.OnChat = chatLog.Append
	}

	var tlsConfig *tls.Config
	if *useTLS {
		host, _, _ := net.SplitHostPort(*addr)
		tc, fingerprint, err := generateTLSConfig(*certValidity, host, *hubName)
		if err != nil {
			slog.Error("failed to generate TLS certificate", "error", err)
			os.Exit(1)
		}
		slog.Info("TLS certificate generated", "fingerprint", fingerprint)
		tlsConfig = tc
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	go RunMetrics(ctx, hub, 5*time.Second)

	sched := scheduler.New()
	sched.AddSlowJob("ban_reload", func(ctx context.Context) error {
		return hub.LoadBans(ctx)
	})
	sched.AddSlowJob("kicklist_archive", func(ctx context.Context) error {
		_, err := st.ArchiveKicksOlderThan(ctx, time.Now().AddDate(0, 0, -7))
		return err
	})
	sched.AddSlowJob("short_ban_sweep", func(ctx context.Context) error {
		hub.Short.Sweep(time.Now())
		return nil
	})
	if *hublistURL != "" {
		var lastHublist time.Time
		sched.AddSlowJob("hublist_register", func(ctx context.Context) error {
			if !lastHublist.IsZero() && time.Since(lastHublist) < hublistRegisterInterval {
				return nil
			}
			lastHublist = time.Now()
			return registerWithHublist(ctx, *hublistURL, hub, *addr)
		})
	}
	go sched.Run(ctx)

	if *botName != "" {
		go RunHubBot(ctx, hub, *botName, *botGreeting)
	}

	if *apiAddr != "" {
		api := httpapi.New(hub, st)
		go func() {
			if err := api.Run(ctx, *apiAddr); err != nil {
				slog.Error("admin api server failed", "error", err)
			}
		}()
		slog.Info("admin api listening", "addr", *apiAddr)
	}

	srv := NewServer(*addr, tlsConfig, hub, *maxConnections, *perIPLimit)
	if err := srv.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// seedDefaults writes factory-default hub settings on first run.
func seedDefaults(ctx context.Context, st *store.Store, hubName string) {
	cfg, err := st.GetConfig(ctx, "hub")
	if err != nil {
		slog.Warn("failed to read hub config for seeding", "error", err)
		return
	}
	if _, ok := cfg["hub_name"]; !ok {
		if err := st.SetConfig(ctx, "hub", "hub_name", hubName); err != nil {
			slog.Warn("failed to seed hub_name", "error", err)
		}
	}
}
