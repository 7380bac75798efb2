package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"codearena/internal/app/service"
	"codearena/internal/client/api"
	"codearena/internal/client/state"
	"codearena/internal/domain/model"
	"codearena/internal/platform/logger"

	"github.com/jonboulle/clockwork"
)

const usageText = `usage: arena [flags] <command> [args]

commands:
  token  -name NAME [-user ID]      mint a development token and save it
  rooms                             list open rooms
  create [flags]                    create a room and enter its lobby
  lobby  CODE [-password PW]        enter a room's lobby
  rejoin                            enter the last room you joined
  game   ID                         follow a running game
  bot    [-difficulty D] [-problem SLUG] [-duration 5m]
                                    practice against a local bot

flags:
`

type app struct {
	cfg        state.Config
	configPath string
	client     *api.Client
	store      *state.FileStore
	clock      clockwork.Clock
	me         model.Identity
	out        io.Writer
	in         <-chan string
}

func main() {
	configPath := flag.String("config", filepath.Join(state.DefaultDir(), "config.yaml"), "client config file")
	server := flag.String("server", "", "server URL (overrides the config file)")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	logger.Setup(*logLevel, true)

	cfg, err := state.LoadConfig(*configPath)
	if err != nil {
		exitErr(err)
	}
	if *server != "" {
		cfg.ServerURL = *server
	}
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		cfg:        cfg,
		configPath: *configPath,
		client:     api.New(cfg.ServerURL, cfg.Token, cfg.RequestTimeout),
		store:      state.NewFileStore(cfg.StateFile),
		clock:      clockwork.NewRealClock(),
		me:         model.Identity{UserID: cfg.UserID, DisplayName: cfg.DisplayName},
		out:        os.Stdout,
		in:         readLines(os.Stdin),
	}

	switch args[0] {
	case "token":
		err = a.token(ctx, args[1:])
	case "rooms":
		err = a.rooms(ctx)
	case "create":
		err = a.create(ctx, args[1:])
	case "lobby":
		err = a.lobbyCmd(ctx, args[1:])
	case "rejoin":
		err = a.rejoin(ctx)
	case "game":
		if len(args) < 2 {
			exitErr(errors.New("game: missing game id"))
		}
		err = a.game(ctx, args[1])
	case "bot":
		err = a.bot(ctx, args[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		exitErr(err)
	}
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, "arena:", err)
	os.Exit(1)
}

// readLines feeds trimmed stdin lines to the command loops. The channel is
// closed at EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- strings.TrimSpace(sc.Text())
		}
	}()
	return ch
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) token(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	userID := fs.String("user", "", "user id (generated when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("token: -name is required")
	}

	resp, err := a.client.IssueToken(ctx, service.TokenRequest{UserID: *userID, DisplayName: *name})
	if err != nil {
		return err
	}
	a.cfg.Token = resp.Token
	a.cfg.UserID = resp.User.UserID
	a.cfg.DisplayName = resp.User.DisplayName
	if err := state.SaveConfig(a.configPath, a.cfg); err != nil {
		return err
	}
	a.printf("signed in as %s (%s); token saved to %s\n", resp.User.DisplayName, resp.User.UserID, a.configPath)
	return nil
}

func (a *app) rooms(ctx context.Context) error {
	rooms, err := a.client.ListRooms(ctx)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		a.printf("no open rooms\n")
		return nil
	}
	for _, r := range rooms {
		lock := ""
		if r.IsPrivate {
			lock = " [private]"
		}
		a.printf("%s  %-24s %d/%d  %s %s%s\n", r.Code, r.Name, r.PlayerCount, r.Settings.MaxPlayers,
			r.Settings.Language, r.Settings.Difficulty, lock)
	}
	return nil
}

func (a *app) rejoin(ctx context.Context) error {
	code, err := a.store.LastRoom()
	if err != nil {
		return err
	}
	if code == "" {
		return errors.New("rejoin: no remembered room")
	}
	return a.lobby(ctx, code, "")
}
