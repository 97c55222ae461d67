package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/chzyer/readline"

	"map-annotator/internal/display"
	"map-annotator/internal/listener"
	"map-annotator/internal/markers"
	"map-annotator/internal/parser"
	"map-annotator/internal/registry"
	"map-annotator/internal/router"
	"map-annotator/internal/supervisor"
)

const defaultResolveTimeout = 20 * time.Second

// printer is the part of the console the operations write to.
type printer interface {
	AsyncPrintln(s string)
	AskYesNo(question string) bool
}

// runConsole reads operator input until exit, Ctrl+C, Ctrl+D or ctx ends.
// Leaving the console stops the whole process.
func (a *App) runConsole(ctx context.Context, stop context.CancelFunc) error {
	con, err := listener.New(listener.Config{
		Prompt:      "annotator> ",
		HistoryFile: a.cfg.Console.History,
		Names:       a.reg.Names,
	})
	if err != nil {
		return fmt.Errorf("failed to init terminal input: %w", err)
	}
	defer con.Close()

	go func() {
		<-ctx.Done()
		_ = con.Close()
	}()

	con.AsyncPrintln("Hello! Name a spot with 'create <name>', visit it with 'go <name>'. Type 'help' for more.")
	if a.resolver != nil {
		con.AsyncPrintln("Free-form requests are understood too, e.g. 'take me to the kitchen'.")
	}

	for {
		line, err := con.ReadLine()
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			stop()
			return nil
		}
		if err != nil {
			return err
		}

		in, ok := a.interpret(ctx, con, line)
		if !ok {
			continue
		}
		if in.Op == parser.OpExit {
			con.AsyncPrintln("Goodbye!")
			stop()
			return nil
		}
		a.execute(ctx, con, in)
	}
}

// interpret parses line with the grammar and falls back to the language
// model for anything the grammar does not know.
func (a *App) interpret(ctx context.Context, out printer, line string) (parser.Input, bool) {
	in, err := a.parser.Parse(line)
	if err == nil {
		return in, in.Op != ""
	}
	if !errors.Is(err, parser.ErrUnknownInput) || a.resolver == nil {
		out.AsyncPrintln(fmt.Sprintf("[Input] %v", err))
		return parser.Input{}, false
	}

	timeout := a.cfg.LLM.Timeout
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	resolveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	in, err = a.resolver.Resolve(resolveCtx, line, a.reg.Names())
	if err != nil {
		a.logger.Info("free-text input not understood", "input", line, "error", err)
		out.AsyncPrintln(fmt.Sprintf("[Intent analysis FAILED] %v", err))
		return parser.Input{}, false
	}
	out.AsyncPrintln(fmt.Sprintf("[Understood] %s %s", in.Op, in.Name))
	if a.resolver.NeedsConfirmation(in) && !out.AskYesNo(fmt.Sprintf("Run %s %s?", in.Op, in.Name)) {
		out.AsyncPrintln("[Cancelled]")
		return parser.Input{}, false
	}
	return in, true
}

func (a *App) execute(ctx context.Context, out printer, in parser.Input) {
	switch in.Op {
	case parser.OpCreate, parser.OpDelete, parser.OpGoTo:
		kind, _ := router.ParseKind(string(in.Op))
		cmd := router.Command{Kind: kind, Name: in.Name}
		select {
		case a.commands <- cmd:
			out.AsyncPrintln(fmt.Sprintf("[%s] sent", cmd))
		case <-ctx.Done():
		}

	case parser.OpGo:
		g, err := a.action.Send(ctx, supervisor.GoalRequest{Name: in.Name})
		if err != nil {
			out.AsyncPrintln(fmt.Sprintf("[Goal FAILED] %v", err))
			return
		}
		out.AsyncPrintln(fmt.Sprintf("[Goal %s ACCEPTED] heading to %s", g.ID, in.Name))
		go func() {
			res, err := g.Wait(ctx)
			if err != nil {
				return
			}
			out.AsyncPrintln(display.FormatOutcome(res))
		}()

	case parser.OpCancel:
		// The snapshot is queued behind any goal sent before it.
		snap, err := a.action.Status(ctx)
		if err != nil {
			out.AsyncPrintln(fmt.Sprintf("[Cancel FAILED] %v", err))
			return
		}
		if !snap.Active() {
			out.AsyncPrintln("No goal in progress.")
			return
		}
		if err := a.action.Cancel(ctx); err != nil {
			out.AsyncPrintln(fmt.Sprintf("[Cancel FAILED] %v", err))
		}

	case parser.OpMove:
		err := a.board.Move(ctx, in.Name, in.Pose)
		switch {
		case errors.Is(err, markers.ErrUnknownMarker):
			out.AsyncPrintln(fmt.Sprintf("No marker named %s; create it first.", in.Name))
		case err != nil:
			out.AsyncPrintln(fmt.Sprintf("[Move FAILED] %v", err))
		default:
			out.AsyncPrintln(display.FormatPose(in.Name, in.Pose))
		}

	case parser.OpList:
		out.AsyncPrintln(display.FormatPoses(a.reg.NamedPoses()))

	case parser.OpShow:
		p, err := a.reg.Lookup(in.Name)
		if errors.Is(err, registry.ErrNotFound) {
			out.AsyncPrintln(fmt.Sprintf("No pose named %s", in.Name))
			return
		}
		out.AsyncPrintln(display.FormatPose(in.Name, p))

	case parser.OpStatus:
		snap, err := a.action.Status(ctx)
		if err != nil {
			out.AsyncPrintln(fmt.Sprintf("[Status FAILED] %v", err))
			return
		}
		out.AsyncPrintln(display.FormatSnapshot(snap))

	case parser.OpStats:
		out.AsyncPrintln(display.FormatGoalMetrics(a.metrics.History()))

	case parser.OpHelp:
		out.AsyncPrintln(a.parser.Ops().Help())
	}
}
