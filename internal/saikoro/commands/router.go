// Package commands parses chat commands and routes them to handlers.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bdobrica/Saikoro/internal/saikoro/session"
)

// Command represents a parsed command
type Command struct {
	Name       string
	Subcommand string
	Args       []string
	Flags      map[string]string
	RawText    string
}

// ErrNotACommand is returned by Parse when the message does not start with
// the command prefix. Callers use errors.Is to tell it from real errors.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// ErrUnknownCommand is returned when no handler matches.
var ErrUnknownCommand = errors.New("unknown command")

// Request carries who issued a command and where to answer it.
type Request struct {
	// Sender is the transport-specific id of the invoking user.
	Sender string
	// Surface answers the command; roll sessions run on it.
	Surface session.Surface
}

// Handler handles a command. A non-empty result is sent back as a reply;
// handlers that answer through the surface themselves return "".
type Handler func(ctx context.Context, cmd *Command, req *Request) (string, error)

// Router routes commands to handlers
type Router struct {
	handlers map[string]Handler
	prefix   string
}

// NewRouter creates a new command router
func NewRouter(prefix string) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		prefix:   prefix,
	}
}

// Prefix returns the command prefix, e.g. "!dice".
func (r *Router) Prefix() string { return r.prefix }

// Register registers a command handler
func (r *Router) Register(command string, handler Handler) {
	r.handlers[command] = handler
}

// Parse parses a message into a command
func (r *Router) Parse(text string) (*Command, error) {
	text = strings.TrimSpace(text)

	// The prefix must be a whole word: "!dicey" is not "!dice".
	rest, ok := strings.CutPrefix(text, r.prefix)
	if !ok || (rest != "" && !startsWithSpace(rest)) {
		return nil, ErrNotACommand
	}

	text = strings.TrimSpace(rest)
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command, try %s help", r.prefix)
	}

	cmd := &Command{
		Name:    strings.ToLower(parts[0]),
		Args:    []string{},
		Flags:   make(map[string]string),
		RawText: text,
	}

	if len(parts) > 1 {
		if !strings.HasPrefix(parts[1], "-") {
			cmd.Subcommand = parts[1]
			parts = parts[2:]
		} else {
			parts = parts[1:]
		}

		for i := 0; i < len(parts); i++ {
			part := parts[i]
			name, isFlag := strings.CutPrefix(part, "--")
			if !isFlag {
				cmd.Args = append(cmd.Args, part)
				continue
			}
			if i+1 < len(parts) && !strings.HasPrefix(parts[i+1], "--") {
				cmd.Flags[name] = parts[i+1]
				i++
			} else {
				cmd.Flags[name] = "true"
			}
		}
	}

	return cmd, nil
}

// Dispatch calls the handler registered for action without parsing text.
// Transports with native commands (Discord slash commands) enter here.
func (r *Router) Dispatch(ctx context.Context, action string, cmd *Command, req *Request) (string, error) {
	handler, ok := r.handlers[action]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, action)
	}
	return handler(ctx, cmd, req)
}

// Route parses and routes a command to its handler
func (r *Router) Route(ctx context.Context, text string, req *Request) (string, error) {
	cmd, err := r.Parse(text)
	if err != nil {
		return "", err
	}

	key := cmd.Name
	if cmd.Subcommand != "" {
		key = cmd.Name + "." + cmd.Subcommand
	}
	handler, ok := r.handlers[key]
	if !ok {
		handler, ok = r.handlers[cmd.Name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
		}
	}
	return handler(ctx, cmd, req)
}

// GetFlag returns a flag value with a default
func (c *Command) GetFlag(name, defaultValue string) string {
	if val, ok := c.Flags[name]; ok {
		return val
	}
	return defaultValue
}

// GetArg returns an argument by index
func (c *Command) GetArg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}

// Rest returns everything after the command name, verbatim. Free-form
// arguments such as dice notation are read from here because Parse would
// otherwise take their first word as a subcommand.
func (c *Command) Rest() string {
	s := strings.TrimSpace(c.RawText)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(s[i:])
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}
