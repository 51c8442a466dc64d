package frame

import "fmt"

// Command identifies the kind of a STOMP frame.
type Command int

const (
	ACK Command = iota
	NACK
	ABORT
	BEGIN
	COMMIT
	CONNECT
	CONNECTED
	DISCONNECT
	MESSAGE
	RECEIPT
	SUBSCRIBE
	UNSUBSCRIBE
	SEND
	ERROR
)

var commandTokens = [...]string{
	ACK:         "ACK",
	NACK:        "NACK",
	ABORT:       "ABORT",
	BEGIN:       "BEGIN",
	COMMIT:      "COMMIT",
	CONNECT:     "CONNECT",
	CONNECTED:   "CONNECTED",
	DISCONNECT:  "DISCONNECT",
	MESSAGE:     "MESSAGE",
	RECEIPT:     "RECEIPT",
	SUBSCRIBE:   "SUBSCRIBE",
	UNSUBSCRIBE: "UNSUBSCRIBE",
	SEND:        "SEND",
	ERROR:       "ERROR",
}

var commandsByToken = func() map[string]Command {
	m := make(map[string]Command, len(commandTokens))
	for i, token := range commandTokens {
		m[token] = Command(i)
	}
	return m
}()

// String returns the wire token of the command.
func (c Command) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Command(%d)", int(c))
	}
	return commandTokens[c]
}

// Valid reports whether c is one of the known commands.
func (c Command) Valid() bool {
	return c >= 0 && int(c) < len(commandTokens)
}

// ParseCommand maps an uppercase wire token to its Command.
func ParseCommand(token string) (Command, error) {
	if token == "" {
		return 0, ErrMissingCommand
	}
	cmd, ok := commandsByToken[token]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, token)
	}
	return cmd, nil
}
