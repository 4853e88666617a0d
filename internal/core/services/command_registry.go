package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"castline/internal/core/domain"
	"castline/pkg/validation"
)

// CommandRegistry holds the slash commands available in chat.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[string]*domain.SlashCommand
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]*domain.SlashCommand)}
}

func (r *CommandRegistry) Register(cmd *domain.SlashCommand) error {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if err := validation.ValidateCommandName(name); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if cmd.Execute == nil {
		return fmt.Errorf("%w: command %q has no handler", domain.ErrValidation, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateCommand, name)
	}
	c := *cmd
	c.Name = name
	r.commands[name] = &c
	return nil
}

func (r *CommandRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.commands, strings.ToLower(name))
}

func (r *CommandRegistry) Get(name string) (*domain.SlashCommand, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// List returns every command sorted by name.
func (r *CommandRegistry) List() []*domain.SlashCommand {
	return r.Find("")
}

// Find returns the commands whose name starts with prefix, sorted by name.
func (r *CommandRegistry) Find(prefix string) []*domain.SlashCommand {
	prefix = strings.ToLower(strings.TrimPrefix(prefix, "/"))

	r.mu.RLock()
	out := make([]*domain.SlashCommand, 0, len(r.commands))
	for name, cmd := range r.commands {
		if strings.HasPrefix(name, prefix) {
			out = append(out, cmd)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Parse resolves "/name arg name:value ..." into its command and typed
// arguments. Positional arguments fill options in declaration order.
func (r *CommandRegistry) Parse(input string) (*domain.SlashCommand, domain.CommandArgs, error) {
	tokens, err := tokenize(strings.TrimPrefix(strings.TrimSpace(input), "/"))
	if err != nil {
		return nil, nil, err
	}
	if len(tokens) == 0 {
		return nil, nil, fmt.Errorf("%w: empty command", domain.ErrValidation)
	}

	cmd, ok := r.Get(tokens[0])
	if !ok {
		return nil, nil, fmt.Errorf("%w: /%s", domain.ErrCommandNotFound, tokens[0])
	}

	raw := make(map[string]string, len(cmd.Options))
	next := 0
	for _, tok := range tokens[1:] {
		if name, value, found := strings.Cut(tok, ":"); found && optionIndex(cmd, name) >= 0 {
			raw[name] = value
			continue
		}
		for next < len(cmd.Options) {
			if _, set := raw[cmd.Options[next].Name]; !set {
				break
			}
			next++
		}
		if next >= len(cmd.Options) {
			return nil, nil, fmt.Errorf("%w: too many arguments for /%s", domain.ErrValidation, cmd.Name)
		}
		raw[cmd.Options[next].Name] = tok
		next++
	}

	args := make(domain.CommandArgs, len(raw))
	for _, opt := range cmd.Options {
		value, set := raw[opt.Name]
		if !set {
			if opt.Required {
				return nil, nil, fmt.Errorf("%w: missing required option %q", domain.ErrValidation, opt.Name)
			}
			continue
		}
		parsed, err := parseOption(opt, value)
		if err != nil {
			return nil, nil, err
		}
		args[opt.Name] = parsed
	}
	return cmd, args, nil
}

// Execute parses input and runs the command on behalf of invoker. The
// command's own permission bits are checked against perms.
func (r *CommandRegistry) Execute(ctx context.Context, invoker domain.Identity, perms domain.Permission, input string) (*domain.SlashCommand, domain.CommandReply, error) {
	cmd, args, err := r.Parse(input)
	if err != nil {
		return nil, domain.CommandReply{}, err
	}
	if !domain.IsAuthorized(perms, cmd.Permissions) {
		return cmd, domain.CommandReply{}, domain.ErrInsufficientPermissions
	}

	reply, err := cmd.Execute(ctx, domain.Invocation{
		Invoker:     invoker,
		Permissions: perms,
		Args:        args,
		Raw:         input,
	})
	if err != nil {
		return cmd, domain.CommandReply{}, err
	}
	return cmd, reply, nil
}

func optionIndex(cmd *domain.SlashCommand, name string) int {
	for i, opt := range cmd.Options {
		if opt.Name == name {
			return i
		}
	}
	return -1
}

func parseOption(opt domain.CommandOption, value string) (any, error) {
	var (
		parsed any
		err    error
	)
	switch opt.Type {
	case domain.OptionString, "":
		parsed = value
	case domain.OptionInteger:
		parsed, err = strconv.ParseInt(value, 10, 64)
	case domain.OptionNumber:
		parsed, err = strconv.ParseFloat(value, 64)
	case domain.OptionBoolean:
		parsed, err = strconv.ParseBool(value)
	default:
		return nil, fmt.Errorf("%w: option %q has unknown type %s", domain.ErrValidation, opt.Name, opt.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: option %q expects %s", domain.ErrValidation, opt.Name, opt.Type)
	}
	return parsed, nil
}

// tokenize splits on whitespace, keeping double-quoted runs together.
func tokenize(s string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case !quoted && (r == ' ' || r == '\t' || r == '\n'):
			if started {
				tokens = append(tokens, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if quoted {
		return nil, fmt.Errorf("%w: unterminated quote", domain.ErrValidation)
	}
	if started {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}

// ViewerCounter reports the live viewer count.
type ViewerCounter interface {
	Metrics(ctx context.Context) (*domain.StreamMetrics, error)
}

// RegisterBuiltinCommands installs help and viewers.
func RegisterBuiltinCommands(r *CommandRegistry, viewers ViewerCounter) error {
	help := &domain.SlashCommand{
		Name:        "help",
		Description: "List the commands you can use",
		Options: []domain.CommandOption{
			{Name: "command", Description: "Show a single command", Type: domain.OptionString},
		},
		Execute: func(ctx context.Context, inv domain.Invocation) (domain.CommandReply, error) {
			prefix, _ := inv.Args["command"].(string)

			var fields []domain.EmbedField
			for _, cmd := range r.Find(prefix) {
				if !domain.IsAuthorized(inv.Permissions, cmd.Permissions) {
					continue
				}
				fields = append(fields, domain.EmbedField{Name: "/" + cmd.Name, Value: cmd.Description})
			}
			if len(fields) == 0 {
				return domain.CommandReply{Content: "No commands found.", Ephemeral: true}, nil
			}
			return domain.CommandReply{
				Ephemeral: true,
				Embeds: []domain.Embed{{
					Title:  "Commands",
					Color:  "#5865F2",
					Fields: fields,
				}},
			}, nil
		},
	}

	count := &domain.SlashCommand{
		Name:        "viewers",
		Description: "Show how many people are watching",
		Execute: func(ctx context.Context, inv domain.Invocation) (domain.CommandReply, error) {
			m, err := viewers.Metrics(ctx)
			if err != nil {
				return domain.CommandReply{}, err
			}
			noun := "viewers"
			if m.Viewers == 1 {
				noun = "viewer"
			}
			return domain.CommandReply{Content: fmt.Sprintf("%d %s watching right now.", m.Viewers, noun)}, nil
		},
	}

	for _, cmd := range []*domain.SlashCommand{help, count} {
		if err := r.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}
