package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"codearena/internal/client/match"
	"codearena/internal/domain/model"
)

const gameHelp = `commands: problems | submit <n> <file> | board | quit
`

func (a *app) game(ctx context.Context, id string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rec := match.NewReconciler(a.client, a.clock, match.Config{
		GameID:                id,
		PollInterval:          a.cfg.Game.PollInterval,
		FinishedRedirectDelay: a.cfg.Game.FinishedRedirectDelay,
	})
	runErr := make(chan error, 1)
	go func() { runErr <- rec.Run(ctx) }()
	a.printf(gameHelp)

	var lastSummary string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rec.Leave():
			a.printf("back to the room list\n")
			return a.rooms(ctx)
		case err := <-runErr:
			select {
			case <-rec.Leave():
				a.printf("back to the room list\n")
				return a.rooms(ctx)
			default:
				return err
			}
		case <-rec.Changes():
			if s := gameSummary(rec.View()); s != lastSummary {
				lastSummary = s
				a.printf("%s", s)
			}
		case line, ok := <-a.in:
			if !ok {
				a.in = nil
				continue
			}
			if done := a.gameCommand(ctx, rec, line); done {
				return nil
			}
		}
	}
}

func (a *app) gameCommand(ctx context.Context, rec *match.Reconciler, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	v := rec.View()
	switch fields[0] {
	case "problems":
		if v.Game == nil {
			a.printf("game not loaded yet\n")
			return false
		}
		for i, p := range v.Game.Problems {
			a.printf("%d. %s [%s] %s\n%s\n\n", i+1, p.Title, p.Difficulty, solvedMark(v, p.ID), p.Statement)
		}
	case "board":
		a.printf("%s", scoreboard(v))
	case "submit":
		if len(fields) != 3 || v.Game == nil {
			a.printf("usage: submit <problem number> <file>\n")
			return false
		}
		p, err := pickProblem(v.Game, fields[1])
		if err != nil {
			a.printf("%v\n", err)
			return false
		}
		code, err := os.ReadFile(fields[2])
		if err != nil {
			a.printf("%v\n", err)
			return false
		}
		verdict, err := rec.Submit(ctx, p.ID, string(code))
		if err != nil {
			a.printf("submit failed: %v\n", err)
			return false
		}
		a.printf("%s: %s\n", p.Title, verdictText(verdict))
	case "quit":
		return true
	default:
		a.printf("unknown command %q\n%s", fields[0], gameHelp)
	}
	return false
}

func pickProblem(g *model.Game, ref string) (model.GameProblem, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(g.Problems) {
			return model.GameProblem{}, fmt.Errorf("problem %d does not exist", n)
		}
		return g.Problems[n-1], nil
	}
	for _, p := range g.Problems {
		if p.ID == ref {
			return p, nil
		}
	}
	return model.GameProblem{}, fmt.Errorf("problem %q is not part of this game", ref)
}

func verdictText(v *model.Verdict) string {
	if v.Passed {
		return "accepted"
	}
	if v.ErrorMessage != "" {
		return "rejected: " + v.ErrorMessage
	}
	return fmt.Sprintf("rejected: %d/%d tests passed", v.PassedCount, v.TotalCount)
}

func solvedMark(v match.View, problemID string) string {
	if v.Solved(problemID) {
		return "solved"
	}
	if ls, ok := v.LastSubmit(problemID); ok && ls.ErrorMessage != "" {
		return "last: " + ls.ErrorMessage
	}
	return ""
}

func formatRemaining(d time.Duration, unlimited bool) string {
	if unlimited {
		return "no time limit"
	}
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d left", int(d.Minutes()), int(d.Seconds())%60)
}

func scoreboard(v match.View) string {
	var b strings.Builder
	for _, e := range v.Scoreboard {
		you := ""
		if v.Game != nil && e.UserID == v.Game.MyUserID {
			you = " (you)"
		}
		fmt.Fprintf(&b, "  %d. %-16s %d solved%s\n", e.Rank, e.DisplayName, e.Solved, you)
	}
	return b.String()
}

func gameSummary(v match.View) string {
	var b strings.Builder
	if v.Game == nil {
		if v.Err != nil {
			fmt.Fprintf(&b, "error: %v\n", v.Err)
		}
		return b.String()
	}
	g := v.Game
	if v.Finished {
		switch {
		case v.Winner == "":
			b.WriteString("game over: time is up\n")
		case v.Winner == g.MyUserID:
			b.WriteString("game over: you won!\n")
		default:
			name := v.Winner
			for _, p := range g.Players {
				if p.UserID == v.Winner {
					name = p.DisplayName
				}
			}
			fmt.Fprintf(&b, "game over: %s won\n", name)
		}
	} else {
		fmt.Fprintf(&b, "game %s  %d problem(s)  %s\n", g.ID, len(g.Problems), formatRemaining(v.Remaining, v.Unlimited))
	}
	b.WriteString(scoreboard(v))
	if v.Err != nil {
		fmt.Fprintf(&b, "error: %v\n", v.Err)
	}
	return b.String()
}
