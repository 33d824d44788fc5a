// sessiond – the background daemon that supervises AI coding CLI
// sub-process sessions.
//
// Usage:
//
//	sessiond [--root <dir>] [--tools <file>] [--profiles <file>]
//
// The daemon listens on a Unix domain socket at <root>/sessiond.sock and
// handles commands from the sessionctl CLI. sessionctl does not start
// the daemon itself: it exits with an error when the socket cannot be
// reached, so sessiond must already be running.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fyplabs/sessiond/internal/daemon"
	"github.com/fyplabs/sessiond/internal/directive"
	"github.com/fyplabs/sessiond/internal/eventbus"
	"github.com/fyplabs/sessiond/internal/profile"
	"github.com/fyplabs/sessiond/internal/session"
)

func main() {
	session.InstallWriteErrorNoiseFilter()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("cannot determine home directory: %v", err)
	}
	defaultRoot := filepath.Join(homeDir, ".sessiond")
	if env := os.Getenv("SESSIOND_ROOT"); env != "" {
		defaultRoot = env
	}

	rootDir := flag.String("root", defaultRoot, "sessiond data directory (env: SESSIOND_ROOT)")
	toolsPath := flag.String("tools", "", "tools.yaml path (defaults to <root>/tools.yaml)")
	profilesPath := flag.String("profiles", "", "profiles.yaml path (defaults to <root>/profiles.yaml)")
	flag.Parse()

	if err := os.MkdirAll(*rootDir, 0o755); err != nil {
		log.Fatalf("create root dir %s: %v", *rootDir, err)
	}

	tp := *toolsPath
	if tp == "" {
		tp = filepath.Join(*rootDir, "tools.yaml")
	}
	pp := *profilesPath
	if pp == "" {
		pp = filepath.Join(*rootDir, "profiles.yaml")
	}

	tools, err := profile.LoadTools(tp)
	if err != nil {
		log.Fatalf("load tools config: %v", err)
	}
	profiles, err := profile.LoadProfiles(pp)
	if err != nil {
		log.Fatalf("load profiles config: %v", err)
	}

	bus := eventbus.NewHub()

	d, err := daemon.New(daemon.Config{
		Tools:          tools,
		SupervisorCwd:  *rootDir,
		DefaultSubmitA: session.DefaultSubmitWithTab(),
		Profiles:       profiles,
		TranscriptDir:  filepath.Join(*rootDir, "transcripts"),
		Bus:            bus,
		OnAnswer: func(sessionID string, qa directive.QuestionAnswer) {
			bus.Publish(eventbus.TopicInboxChanged, map[string]any{
				"sessionId": sessionID,
				"answer":    qa,
			})
		},
	})
	if err != nil {
		log.Fatalf("daemon init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go d.RunHealth(ctx)

	socketPath := filepath.Join(*rootDir, "sessiond.sock")

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			log.Printf("received SIGHUP, reloading profiles from %s", pp)
			if err := d.ReloadProfiles(); err != nil {
				log.Printf("reload profiles: %v", err)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received %v, shutting down", sig)
		cancel()
		d.Shutdown()
		os.Remove(socketPath)
		os.Exit(0)
	}()

	if err := d.Run(socketPath); err != nil {
		log.Fatalf("daemon run: %v", err)
	}
}
