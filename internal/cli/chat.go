package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const (
	// UserID is the fixed user for terminal sessions
	UserID = "cli_user"
	// Platform is the platform tag for terminal sessions
	Platform = "cli"
)

// Dispatcher is what the chat loop sends utterances to
type Dispatcher interface {
	Dispatch(ctx context.Context, userID, platform, text string) string
	Reset(userID, platform string)
}

// ChatOptions configures a terminal chat session
type ChatOptions struct {
	In  io.Reader
	Out io.Writer

	// Styled enables colors and Markdown rendering; Width is the
	// terminal width used for wrapping.
	Styled bool
	Width  int
}

// Chat is the interactive terminal session behind `kipbot chat`
type Chat struct {
	d      Dispatcher
	in     io.Reader
	out    io.Writer
	styled bool
	st     styles
	md     *glamour.TermRenderer
}

func NewChat(d Dispatcher, opts ChatOptions) *Chat {
	c := &Chat{
		d:      d,
		in:     opts.In,
		out:    opts.Out,
		styled: opts.Styled,
		st:     newStyles(opts.Out),
	}
	if opts.Styled {
		if md, err := newMarkdown(opts.Width); err == nil {
			c.md = md
		}
	}
	return c
}

// Run reads lines until EOF, an exit word or ctx cancellation
func (c *Chat) Run(ctx context.Context) error {
	c.banner()

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(c.out, c.label(c.st.you, "You:")+" ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "exit", "quit", "q":
			fmt.Fprintln(c.out, c.label(c.st.note, "Goodbye!"))
			return nil
		case "help", "/help":
			PrintInteractiveHelp(c.out)
			continue
		case "/new":
			c.d.Reset(UserID, Platform)
			fmt.Fprintln(c.out, c.label(c.st.note, "Started a new conversation."))
			continue
		}

		reply := c.d.Dispatch(ctx, UserID, Platform, input)
		if ctx.Err() != nil {
			return nil
		}
		c.printReply(reply)
	}

	return scanner.Err()
}

func (c *Chat) banner() {
	text := "kipbot interactive chat - type 'exit' to quit, 'help' for commands"
	if c.styled {
		fmt.Fprintln(c.out, c.st.panel.Render(text))
		return
	}
	fmt.Fprintln(c.out, text)
}

func (c *Chat) printReply(reply string) {
	label := c.label(c.st.bot, "Kipbot:")
	if c.md == nil {
		fmt.Fprintf(c.out, "%s %s\n", label, reply)
		return
	}

	rendered, err := c.md.Render(reply)
	if err != nil {
		fmt.Fprintf(c.out, "%s %s\n", label, reply)
		return
	}
	fmt.Fprintf(c.out, "%s\n%s", label, rendered)
}

func (c *Chat) label(style lipgloss.Style, text string) string {
	if !c.styled {
		return text
	}
	return style.Render(text)
}
