package core

import "hitagi/protocol"

// CommandHandler handles one dispatched frame. Returning a *CommandError
// makes the dispatcher answer with ERR; ErrRestart and ErrPowerDown end Run.
type CommandHandler func(cmd *Command, f *protocol.Frame) error

// Command is one entry of the command table
type Command struct {
	Name    string
	Tag     string // Response tag; protocol.TagAck answers "ACK cmd[,data]"
	Handler CommandHandler
}

// CommandTable maps command names to handlers. Lookup is a linear,
// case-sensitive exact match and the first registered entry wins.
type CommandTable struct {
	commands []*Command
}

// NewCommandTable creates an empty table
func NewCommandTable() *CommandTable {
	return &CommandTable{}
}

// Register appends a command. A later entry with the same name is never
// reached.
func (t *CommandTable) Register(name, tag string, handler CommandHandler) *Command {
	cmd := &Command{
		Name:    name,
		Tag:     tag,
		Handler: handler,
	}
	t.commands = append(t.commands, cmd)
	return cmd
}

// Lookup returns the first command named name
func (t *CommandTable) Lookup(name string) (*Command, bool) {
	for _, cmd := range t.commands {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return nil, false
}

// Count returns the number of registered commands
func (t *CommandTable) Count() int {
	return len(t.commands)
}

// Names returns the command names in table order
func (t *CommandTable) Names() []string {
	names := make([]string, len(t.commands))
	for i, cmd := range t.commands {
		names[i] = cmd.Name
	}
	return names
}

// Dispatch calls the handler registered for f.Command
func (t *CommandTable) Dispatch(f *protocol.Frame) error {
	cmd, ok := t.Lookup(f.Command)
	if !ok || cmd.Handler == nil {
		return &CommandError{Command: f.Command, Code: protocol.ErrUnknownCommand}
	}
	return cmd.Handler(cmd, f)
}

// CommandError makes the dispatcher answer with "ERR <code>".
type CommandError struct {
	Command string
	Code    byte
	Err     error
}

func (e *CommandError) Error() string {
	msg := e.Command + ": " + protocol.ErrorName(e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// invalid reports ERR_DATA_INVALID for cmd.
func invalid(cmd *Command, err error) error {
	return &CommandError{Command: cmd.Name, Code: protocol.ErrDataInvalid, Err: err}
}
