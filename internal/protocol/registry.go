package protocol

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"playmote/internal/session"
)

// MaxNameLen bounds registered command names.
const MaxNameLen = 32

// InvalidCommandReply is the fixed response for unrecognized commands.
const InvalidCommandReply = "\nPlease type a valid command\n\n"

// Handler executes one command against the client session.  Handlers
// write their own replies (including user-visible error text); a
// returned error is diagnostic only and never reaches the client.
type Handler func(ctx context.Context, sess *session.Session, arg string) error

// Command binds a protocol name to its handler and help text.
type Command struct {
	Name    string
	Help    string
	handler Handler
}

// Registry holds the command table.  Registration order is the display
// order in help output.  The registry is built once at startup and
// never mutated afterwards, so lookups need no locking.
type Registry struct {
	commands []Command
}

// NewRegistry returns an empty command registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a command.  Duplicate, empty, overlong, or
// whitespace-containing names are registration-time misconfigurations
// and fail loudly.
func (r *Registry) Register(name, help string, h Handler) error {
	if name == "" {
		return fmt.Errorf("register: empty command name")
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("register %q: name exceeds %d bytes", name, MaxNameLen)
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("register %q: name contains whitespace", name)
	}
	if h == nil {
		return fmt.Errorf("register %q: nil handler", name)
	}
	for _, c := range r.commands {
		if c.Name == name {
			return fmt.Errorf("register %q: duplicate command name", name)
		}
	}
	r.commands = append(r.commands, Command{Name: name, Help: help, handler: h})
	return nil
}

// Commands returns the registered commands in registration order.
func (r *Registry) Commands() []Command {
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Help looks up the help text for a command name.
func (r *Registry) Help(name string) string {
	for _, c := range r.commands {
		if c.Name == name {
			return c.Help
		}
	}
	return ""
}

// Dispatch matches token against the table, comparing length before
// content, and runs the handler.  An unmatched token gets the
// fixed invalid-command reply and matched=false.  A handler panic is
// converted to an error so nothing propagates past this boundary.
func (r *Registry) Dispatch(ctx context.Context, sess *session.Session, token, arg string) (matched bool, err error) {
	for i := range r.commands {
		c := &r.commands[i]
		if len(c.Name) != len(token) {
			continue
		}
		if c.Name != token {
			continue
		}
		return true, run(ctx, c, sess, arg)
	}

	sess.Print(InvalidCommandReply)
	return false, nil
}

func run(ctx context.Context, c *Command, sess *session.Session, arg string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("command %q panicked: %v", c.Name, p)
		}
	}()
	return c.handler(ctx, sess, arg)
}
