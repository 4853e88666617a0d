package domain

import "context"

type OptionType string

const (
	OptionString  OptionType = "STRING"
	OptionInteger OptionType = "INTEGER"
	OptionNumber  OptionType = "NUMBER"
	OptionBoolean OptionType = "BOOLEAN"
)

type CommandOption struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        OptionType `json:"type"`
	Required    bool       `json:"required"`
}

// CommandArgs maps option names to parsed values (string, int64, float64 or
// bool depending on the option type).
type CommandArgs map[string]any

// CommandReply is what a command produces for the timeline.
type CommandReply struct {
	Content   string
	Embeds    []Embed
	Ephemeral bool
}

type CommandFunc func(ctx context.Context, inv Invocation) (CommandReply, error)

// Invocation is the context a command runs in.
type Invocation struct {
	Invoker     Identity
	Permissions Permission
	Args        CommandArgs
	Raw         string
}

type SlashCommand struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Options     []CommandOption `json:"options"`
	Permissions Permission      `json:"permissions"`
	Execute     CommandFunc     `json:"-"`
}
