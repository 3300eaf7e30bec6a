package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/wordgame/go/internal/account"
	"github.com/mcdev12/wordgame/go/internal/config"
	"github.com/mcdev12/wordgame/go/internal/game"
	"github.com/mcdev12/wordgame/go/internal/history"
	"github.com/mcdev12/wordgame/go/internal/notify"
	"github.com/mcdev12/wordgame/go/internal/notify/natspub"
	"github.com/mcdev12/wordgame/go/internal/notify/wsbridge"
	"github.com/mcdev12/wordgame/go/internal/remote"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "wordgame.yaml", "path to the YAML config file")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := remote.NewClient(cfg.ClientConfig())
	gw := remote.NewGateway(remote.ServicesFrom(client))
	accounts := account.NewApp(client, client)

	input := bufio.NewScanner(os.Stdin)
	username := cfg.Account.Username
	if username == "" {
		username = prompt(input, "username: ")
	}
	password := cfg.Account.Password
	if password == "" {
		password = prompt(input, "password: ")
	}

	login, err := accounts.LoginOrRegister(sigCtx, username, password, cfg.Account.AutoRegister)
	if err != nil {
		log.Fatal().Err(err).Str("username", username).Msg("failed to log in")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := accounts.Logout(ctx); err != nil {
			log.Warn().Err(err).Msg("logout failed")
		}
	}()

	console := notify.NewChannel(256)
	sinks := notify.Multi{console}
	deps := game.Deps{Gateway: gw}

	var bridge *wsbridge.Bridge
	if cfg.Bridge.Enabled {
		bridge = wsbridge.New(wsbridge.DefaultConnectionConfig(), nil)
		sinks = append(sinks, bridge)
	}
	deps.Sink = sinks

	if cfg.NATS.Enabled {
		pub, err := natspub.NewJetStreamPublisher(cfg.JetStream())
		if err != nil {
			log.Warn().Err(err).Str("nats_url", cfg.NATS.URL).Msg("event publishing disabled")
		} else {
			defer pub.Close()
			deps.Events = pub
		}
	}

	var historyRepo *history.Repository
	if cfg.History.Enabled {
		repo, db, err := setupHistory(sigCtx, cfg.History.Database)
		if err != nil {
			log.Warn().Err(err).Msg("match history disabled")
		} else {
			defer db.Close()
			historyRepo = repo
			deps.History = repo
		}
	}

	app := game.NewApp(cfg.GameFor(login.Username), deps)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go func() {
		if err := app.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("event loop failed")
		}
	}()

	go func() {
		for n := range console.C {
			if line := render(n); line != "" {
				fmt.Println(line)
			}
		}
	}()

	var server *http.Server
	if bridge != nil {
		bridge.SetController(app)
		go bridge.Start(runCtx)

		server = setupBridgeServer(bridge, cfg.Bridge.Addr)
		go func() {
			log.Info().Str("addr", server.Addr).Msg("ui bridge listening")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("ui bridge server failed")
			}
		}()
	}

	log.Info().
		Str("username", login.Username).
		Str("server", cfg.Server.URL).
		Bool("bridge", bridge != nil).
		Msg("wordgame client ready")
	fmt.Println(helpText)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for input.Scan() {
			lines <- input.Text()
		}
	}()

	session := &terminal{app: app, accounts: accounts, history: historyRepo, username: login.Username}
loop:
	for {
		select {
		case <-sigCtx.Done():
			log.Info().Msg("received shutdown signal")
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !session.handle(sigCtx, line) {
				break loop
			}
		}
	}

	app.Shutdown(2 * time.Second)
	// Leaderboard and word updates still in flight finish within their own timeout.
	gw.Wait()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("ui bridge shutdown failed")
		}
		cancel()
	}
	cancelRun()

	log.Info().Msg("wordgame client shutdown complete")
}

// terminal executes parsed commands against the game.
type terminal struct {
	app      *game.App
	accounts *account.App
	history  *history.Repository
	username string
}

// handle runs one input line. It returns false when the user quits.
func (t *terminal) handle(ctx context.Context, line string) bool {
	cmd, err := parseCommand(line)
	if err != nil {
		fmt.Println(err)
		return true
	}

	switch cmd.name {
	case cmdQuit:
		return false
	case cmdHelp:
		fmt.Println(helpText)
	case cmdStart:
		t.app.StartGame()
	case cmdGuess:
		t.app.SubmitLetterGuess(cmd.letter)
	case cmdEnd:
		t.app.EndRoundEarly()
	case cmdMenu:
		t.app.ReturnToMenu()
	case cmdRetry:
		t.app.RetryMatchmaking()
	case cmdTop:
		players, err := t.accounts.TopPlayers(ctx, cmd.limit)
		if err != nil {
			fmt.Println("leaderboard unavailable:", err)
			return true
		}
		t.app.ShowLeaderboard(players)
	case cmdHistory:
		if t.history == nil {
			fmt.Println("match history is not enabled")
			return true
		}
		records, err := t.history.ListGames(ctx, t.username, cmd.limit)
		if err != nil {
			fmt.Println("history unavailable:", err)
			return true
		}
		for _, r := range records {
			fmt.Println(formatRecord(r))
		}
	}
	return true
}

func formatRecord(r history.Record) string {
	result := "no winner"
	switch {
	case r.Tie:
		result = "tie"
	case r.Winner != "":
		result = r.Winner + " won"
	}
	return fmt.Sprintf("%s  %-10s  %d rounds  %s", r.EndedAt.Local().Format("2006-01-02 15:04"), result, r.Rounds, formatScores(r.Tally))
}

func prompt(input *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !input.Scan() {
		return ""
	}
	return strings.TrimSpace(input.Text())
}
