// Package listener is the interactive operator console: line input with
// history and completion, and output printed above the prompt.
package listener

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

// Config configures a Console. Stdin and Stdout default to the terminal.
type Config struct {
	Prompt      string
	HistoryFile string
	// Names feeds name completion for commands that take a pose name.
	Names  func() []string
	Stdin  io.ReadCloser
	Stdout io.Writer
}

type Console struct {
	rl        *readline.Instance
	mu        sync.Mutex
	holdAsync bool
	heldLines []string
}

func New(cfg Config) (*Console, error) {
	if cfg.Prompt == "" {
		cfg.Prompt = "> "
	}
	rcfg := &readline.Config{
		Prompt:          cfg.Prompt,
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(cfg.Names),
	}
	if cfg.Stdin != nil {
		rcfg.Stdin = cfg.Stdin
	}
	if cfg.Stdout != nil {
		rcfg.Stdout = cfg.Stdout
	}
	rl, err := readline.NewEx(rcfg)
	if err != nil {
		return nil, err
	}
	return &Console{rl: rl}, nil
}

func completer(names func() []string) readline.AutoCompleter {
	dyn := func(string) []string {
		if names == nil {
			return nil
		}
		return names()
	}
	withName := func(op string) readline.PrefixCompleterInterface {
		return readline.PcItem(op, readline.PcItemDynamic(dyn))
	}
	return readline.NewPrefixCompleter(
		withName("create"),
		withName("delete"),
		withName("go"),
		withName("goto"),
		withName("move"),
		withName("show"),
		readline.PcItem("cancel"),
		readline.PcItem("list"),
		readline.PcItem("status"),
		readline.PcItem("stats"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

// Close unblocks a pending ReadLine, which then returns io.EOF.
func (c *Console) Close() error {
	return c.rl.Close()
}

func (c *Console) SetPrompt(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rl.SetPrompt(p)
}

// ReadLine returns the next trimmed line. Ctrl+C yields
// readline.ErrInterrupt, Ctrl+D or Close yields io.EOF.
func (c *Console) ReadLine() (string, error) {
	line, err := c.rl.Readline()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *Console) BeginInteractive() {
	c.mu.Lock()
	c.holdAsync = true
	c.mu.Unlock()
}

// EndInteractive prints every line held back since BeginInteractive.
func (c *Console) EndInteractive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdAsync = false
	for _, s := range c.heldLines {
		c.printAboveLocked(s)
	}
	c.heldLines = nil
}

func (c *Console) printAboveLocked(s string) {
	_, _ = c.rl.Write([]byte("\r\n" + s + "\r\n"))
	c.rl.Refresh()
}

// Println prints s immediately, even while a question is pending.
func (c *Console) Println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printAboveLocked(s)
}

// AsyncPrintln prints s above the prompt, or holds it until the pending
// question has been answered.
func (c *Console) AsyncPrintln(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holdAsync {
		c.heldLines = append(c.heldLines, s)
		return
	}
	c.printAboveLocked(s)
}

func (c *Console) getConfirmation(prompt string) (string, error) {
	c.mu.Lock()
	old := c.rl.Config.Prompt
	c.rl.SetPrompt(prompt)
	c.mu.Unlock()

	line, err := c.rl.Readline()

	c.mu.Lock()
	c.rl.SetPrompt(old)
	c.mu.Unlock()
	return strings.TrimSpace(strings.ToLower(line)), err
}

// AskYesNo asks until the operator answers. Input errors count as "no".
func (c *Console) AskYesNo(question string) bool {
	c.BeginInteractive()
	defer c.EndInteractive()

	c.Println(question + " [y/n]")
	for {
		ans, err := c.getConfirmation("> ")
		if err != nil {
			return false
		}
		switch ans {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		c.Println(fmt.Sprintf("Please answer y/n, not %q.", ans))
	}
}
