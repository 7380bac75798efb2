package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"codearena/internal/client/bot"
	"codearena/internal/domain/model"
)

const botHelp = `commands: submit <file> | status | quit
`

func (a *app) bot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bot", flag.ContinueOnError)
	difficulty := fs.String("difficulty", "easy", "easy, medium or hard")
	language := fs.String("language", "go", "go or py")
	slug := fs.String("problem", "", "problem slug (default: first problem of the difficulty)")
	duration := fs.Duration("duration", 0, "match duration (default depends on difficulty, at least 1m)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	diff, ok := model.ParseDifficulty(*difficulty)
	if !ok {
		return fmt.Errorf("bot: unknown difficulty %q", *difficulty)
	}
	lang, ok := model.ParseLanguage(*language)
	if !ok {
		return fmt.Errorf("bot: unknown language %q", *language)
	}

	problem, err := a.botProblem(ctx, diff, *slug)
	if err != nil {
		return err
	}

	m := bot.NewMatch(a.client, a.clock, bot.MatchConfig{
		Difficulty:  diff,
		Language:    lang,
		ProblemID:   problem.ID,
		Duration:    *duration,
		Tick:        a.cfg.Bot.Tick,
		RevealDelay: a.cfg.Bot.RevealDelay,
	})
	a.printf("%s [%s] vs %s bot, %s\n%s\n\n%s", problem.Title, problem.Difficulty, diff, m.Duration(), problem.Statement, botHelp)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(ctx) }()

	lastStep, lastLines, warned, announced := -1, 0, false, false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-runErr:
			if err == nil {
				a.printf("%s\n", botOutcome(m.View()))
			}
			return err
		case <-m.Changes():
			v := m.View()
			if step := int(v.Progress) / 10; step != lastStep {
				lastStep = step
				a.printf("bot %s %5.1f%%  %s\n", progressBar(v.Progress, 20), v.Progress, formatRemaining(v.Remaining, false))
			}
			if n := len(v.Transcript); n > 0 && v.Lines != lastLines {
				lastLines = v.Lines
				a.printf("  %s\n", v.Transcript[n-1])
			}
			if v.LowTime && !warned {
				warned = true
				a.printf("less than %s left!\n", bot.LowTimeThreshold)
			}
			if v.Outcome == bot.Win && !v.Revealed && !announced {
				announced = true
				a.printf("accepted! waiting for the bot...\n")
			}
		case line, ok := <-a.in:
			if !ok {
				a.in = nil
				continue
			}
			if done := a.botCommand(ctx, m, line); done {
				return nil
			}
		}
	}
}

func (a *app) botProblem(ctx context.Context, d model.Difficulty, slug string) (*model.Problem, error) {
	if slug != "" {
		return a.client.GetProblem(ctx, slug)
	}
	problems, err := a.client.ListProblems(ctx, d)
	if err != nil {
		return nil, err
	}
	if len(problems) == 0 {
		return nil, fmt.Errorf("bot: no %s problems available", d)
	}
	return &problems[0], nil
}

func (a *app) botCommand(ctx context.Context, m *bot.Match, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "submit":
		if len(fields) != 2 {
			a.printf("usage: submit <file>\n")
			return false
		}
		code, err := os.ReadFile(fields[1])
		if err != nil {
			a.printf("%v\n", err)
			return false
		}
		// The bot keeps racing while the judge runs.
		go func() {
			verdict, err := m.Submit(ctx, string(code))
			if err != nil {
				a.printf("submit failed: %v\n", err)
				return
			}
			a.printf("%s\n", verdictText(verdict))
		}()
	case "status":
		v := m.View()
		a.printf("bot %s %5.1f%%  %s  attempts: %d\n", progressBar(v.Progress, 20), v.Progress, formatRemaining(v.Remaining, false), v.Attempts)
	case "quit":
		return true
	default:
		a.printf("unknown command %q\n%s", fields[0], botHelp)
	}
	return false
}

func botOutcome(v bot.MatchView) string {
	switch {
	case v.Outcome == bot.Win:
		return fmt.Sprintf("you beat the bot at %.0f%%!", v.Progress)
	case v.Reason == bot.ReasonTimeUp:
		return "time is up, the bot wins"
	default:
		return "the bot finished first"
	}
}

func progressBar(pct float64, width int) string {
	filled := int(pct / 100 * float64(width))
	filled = min(max(filled, 0), width)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
