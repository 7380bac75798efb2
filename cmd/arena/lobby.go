package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"codearena/internal/app/service"
	"codearena/internal/client/lobby"
	"codearena/internal/client/startseq"
	"codearena/internal/domain/model"
)

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "room name")
	password := fs.String("password", "", "password; makes the room private")
	language := fs.String("language", "go", "go or py")
	difficulty := fs.String("difficulty", "easy", "easy, medium or hard")
	tasks := fs.Int("tasks", 1, "number of problems")
	duration := fs.Int("minutes", 0, "game duration in minutes, 0 for unlimited")
	maxPlayers := fs.Int("max", model.DefaultMaxPlayers, "maximum players")
	if err := fs.Parse(args); err != nil {
		return err
	}

	lang, ok := model.ParseLanguage(*language)
	if !ok {
		return fmt.Errorf("create: unknown language %q", *language)
	}
	diff, ok := model.ParseDifficulty(*difficulty)
	if !ok {
		return fmt.Errorf("create: unknown difficulty %q", *difficulty)
	}

	room, err := a.client.CreateRoom(ctx, service.CreateRoomRequest{
		Name:      *name,
		IsPrivate: *password != "",
		Password:  *password,
		Settings: model.RoomSettings{
			Language:        lang,
			Difficulty:      diff,
			DurationMinutes: *duration,
			TaskCount:       *tasks,
			MaxPlayers:      *maxPlayers,
		},
	})
	if err != nil {
		return err
	}
	a.printf("created room %s\n", room.Code)
	if err := a.store.SaveLastRoom(room.Code); err != nil {
		a.printf("could not remember room: %v\n", err)
	}
	return a.lobby(ctx, room.Code, "")
}

func (a *app) lobbyCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("lobby: missing room code")
	}
	fs := flag.NewFlagSet("lobby", flag.ContinueOnError)
	password := fs.String("password", "", "room password")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	return a.lobby(ctx, args[0], *password)
}

const lobbyHelp = `commands: join [password] | start | leave | delete | yes | no | help
`

// lobby runs the room view until it navigates to a game or back to the room
// list, or ctx is cancelled.
func (a *app) lobby(ctx context.Context, code, password string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rec := lobby.NewReconciler(a.client, a.store, a.clock, lobby.Config{
		Code:                code,
		Me:                  a.me,
		PollInterval:        a.cfg.Lobby.PollInterval,
		ClosedRedirectDelay: a.cfg.Lobby.ClosedRedirectDelay,
	})
	seq := startseq.New(a.client, a.clock, code, startseq.Config{Countdown: a.cfg.Lobby.Countdown})
	defer seq.Stop()

	runErr := make(chan error, 1)
	go func() { runErr <- rec.Run(ctx) }()

	if password != "" {
		if err := rec.Join(ctx, password); err != nil {
			a.printf("join failed: %v\n", err)
		}
	}
	a.printf(lobbyHelp)

	labels := a.clock.NewTicker(startseq.DefaultStep)
	defer labels.Stop()
	started := seq.Done()
	var (
		lastSummary, lastLabel string
		exiting                <-chan error
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-runErr:
			select {
			case nav := <-rec.Navigations():
				return a.follow(ctx, nav)
			default:
				return err
			}

		case nav := <-rec.Navigations():
			return a.follow(ctx, nav)

		case <-rec.Changes():
			if s := lobbySummary(rec.View(), a.me.UserID); s != lastSummary {
				lastSummary = s
				a.printf("%s", s)
			}

		case <-labels.Chan():
			if l := seq.Label(); l != lastLabel {
				lastLabel = l
				if l != "" {
					a.printf("  %s\n", l)
				}
			}

		case <-started:
			started = nil
			if _, err := seq.Result(); err != nil {
				a.printf("start failed: %v\n", err)
			}

		case err := <-exiting:
			exiting = nil
			if err != nil {
				a.printf("%v\n", err)
			}

		case line, ok := <-a.in:
			if !ok {
				a.in = nil
				continue
			}
			if ch := a.lobbyCommand(ctx, rec, seq, line, exiting != nil); ch != nil {
				exiting = ch
			}
		}
	}
}

// lobbyCommand handles one input line. A confirmed exit runs in the
// background; its result arrives on the returned channel.
func (a *app) lobbyCommand(ctx context.Context, rec *lobby.Reconciler, seq *startseq.Sequencer, line string, exiting bool) <-chan error {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
	case "join":
		if err := rec.Join(ctx, strings.TrimSpace(arg)); err != nil {
			a.printf("join failed: %v\n", err)
		}
	case "start":
		v := rec.View()
		if v.Room == nil {
			a.printf("room not loaded yet\n")
			return nil
		}
		if err := seq.Trigger(ctx, v.IsOwner, v.Room.Status); err != nil {
			a.printf("cannot start: %v\n", err)
		}
	case "leave", "back", "quit":
		rec.RequestExit(lobby.ExitLeave)
		a.printf("leave the room? (yes/no)\n")
	case "delete":
		if !rec.View().IsOwner {
			a.printf("only the owner can delete the room\n")
			return nil
		}
		rec.RequestExit(lobby.ExitDelete)
		a.printf("delete the room for everyone? (yes/no)\n")
	case "yes":
		if exiting {
			a.printf("still leaving...\n")
			return nil
		}
		seq.Stop()
		done := make(chan error, 1)
		go func() { done <- rec.ConfirmExit(ctx) }()
		return done
	case "no":
		rec.CancelExit()
	case "help":
		a.printf(lobbyHelp)
	default:
		a.printf("unknown command %q\n%s", cmd, lobbyHelp)
	}
	return nil
}

func (a *app) follow(ctx context.Context, nav lobby.Navigation) error {
	switch nav.Kind {
	case lobby.NavGame:
		a.printf("game %s started\n", nav.GameID)
		return a.game(ctx, nav.GameID)
	default:
		a.printf("back to the room list\n")
		return a.rooms(ctx)
	}
}

func lobbySummary(v lobby.View, me string) string {
	var b strings.Builder
	switch {
	case v.Closed:
		b.WriteString("room was closed\n")
		return b.String()
	case v.Room == nil:
		if v.Err != nil {
			fmt.Fprintf(&b, "error: %v\n", v.Err)
		}
		return b.String()
	}

	r := v.Room
	fmt.Fprintf(&b, "[%s] %s  %s  %d/%d players  %s %s, %d task(s)", r.Code, r.Name, r.Status,
		r.PlayerCount, r.Settings.MaxPlayers, r.Settings.Language, r.Settings.Difficulty, r.Settings.TaskCount)
	if r.Settings.DurationMinutes > 0 {
		fmt.Fprintf(&b, ", %d min", r.Settings.DurationMinutes)
	}
	b.WriteString("\n")
	for _, m := range r.MembersInJoinOrder() {
		mark := " "
		if m.UserID == r.OwnerUserID {
			mark = "*"
		}
		you := ""
		if m.UserID == me {
			you = " (you)"
		}
		fmt.Fprintf(&b, "  %s %s%s\n", mark, m.DisplayName, you)
	}
	switch {
	case v.Joining:
		b.WriteString("joining...\n")
	case !v.Joined && r.IsPrivate:
		b.WriteString("private room: join <password>\n")
	case !v.Joined:
		b.WriteString("not joined\n")
	}
	switch v.Confirm {
	case lobby.ExitLeave:
		b.WriteString("leave the room? (yes/no)\n")
	case lobby.ExitDelete:
		b.WriteString("delete the room? (yes/no)\n")
	}
	if v.Err != nil {
		fmt.Fprintf(&b, "error: %v\n", v.Err)
	}
	return b.String()
}
