package domain

import (
	"encoding/json"
	"fmt"
)

type MessageID string
type MessageType string

const (
	MessageUser    MessageType = "user"
	MessageSystem  MessageType = "system"
	MessageGIF     MessageType = "gif"
	MessageCommand MessageType = "command"
	MessageReply   MessageType = "reply"
)

// DeletedPlaceholder replaces the content of a deleted message.
const DeletedPlaceholder = "This message was deleted by a moderator."

// Author is copied onto a message when it is written.
type Author struct {
	ID    UserID `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

func AuthorOf(id Identity) Author {
	return Author{ID: id.ID, Name: id.Name, Image: id.Image}
}

// Body is the type-specific part of a message. Exactly one implementation
// exists per MessageType.
type Body interface {
	Kind() MessageType
	Text() string
	// WithContent returns a copy whose display content is replaced.
	WithContent(content string) Body
}

type UserBody struct {
	Content string
}

type GIFBody struct {
	URL string
}

type SystemBody struct {
	Content string
}

type CommandBody struct {
	Command string
	Content string
	Embeds  []Embed
	Invoker Author
}

type ReplyBody struct {
	Content string
	Parent  ParentSnapshot
}

func (b UserBody) Kind() MessageType    { return MessageUser }
func (b GIFBody) Kind() MessageType     { return MessageGIF }
func (b SystemBody) Kind() MessageType  { return MessageSystem }
func (b CommandBody) Kind() MessageType { return MessageCommand }
func (b ReplyBody) Kind() MessageType   { return MessageReply }

func (b UserBody) Text() string    { return b.Content }
func (b GIFBody) Text() string     { return b.URL }
func (b SystemBody) Text() string  { return b.Content }
func (b CommandBody) Text() string { return b.Content }
func (b ReplyBody) Text() string   { return b.Content }

func (b UserBody) WithContent(c string) Body   { b.Content = c; return b }
func (b GIFBody) WithContent(c string) Body    { b.URL = c; return b }
func (b SystemBody) WithContent(c string) Body { b.Content = c; return b }
func (b CommandBody) WithContent(c string) Body {
	b.Content = c
	b.Embeds = nil
	return b
}
func (b ReplyBody) WithContent(c string) Body { b.Content = c; return b }

// ParentSnapshot freezes the replied-to message at reply time.
type ParentSnapshot struct {
	ID        MessageID   `json:"id"`
	Type      MessageType `json:"type"`
	Author    Author      `json:"user"`
	Content   string      `json:"content"`
	Timestamp int64       `json:"timestamp"`
}

type Embed struct {
	Author      *EmbedAuthor `json:"author,omitempty"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       string       `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type EmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type Message struct {
	ID        MessageID
	SessionID SessionID
	Author    Author
	Timestamp int64 // unix milliseconds
	Reactions []Reaction
	Body      Body
}

func (m *Message) Type() MessageType {
	if m.Body == nil {
		return ""
	}
	return m.Body.Kind()
}

func (m *Message) Content() string {
	if m.Body == nil {
		return ""
	}
	return m.Body.Text()
}

// Snapshot captures m for embedding in a reply.
func (m *Message) Snapshot() ParentSnapshot {
	return ParentSnapshot{
		ID:        m.ID,
		Type:      m.Type(),
		Author:    m.Author,
		Content:   m.Content(),
		Timestamp: m.Timestamp,
	}
}

// Redact replaces only the display content. Id, timestamp, author, type and
// reactions are left untouched.
func (m *Message) Redact(placeholder string) {
	if m.Body != nil {
		m.Body = m.Body.WithContent(placeholder)
	}
}

func (m *Message) Clone() *Message {
	c := *m
	c.Reactions = CloneReactions(m.Reactions)
	if cb, ok := m.Body.(CommandBody); ok {
		cb.Embeds = append([]Embed(nil), cb.Embeds...)
		c.Body = cb
	}
	return &c
}

type messageWire struct {
	ID        MessageID       `json:"id"`
	SessionID SessionID       `json:"stream_id"`
	Type      MessageType     `json:"type"`
	User      Author          `json:"user"`
	Timestamp int64           `json:"timestamp"`
	Reactions []Reaction      `json:"reactions"`
	Content   string          `json:"content"`
	Command   string          `json:"command,omitempty"`
	Embeds    []Embed         `json:"embeds,omitempty"`
	Invoker   *Author         `json:"author,omitempty"`
	Parent    *ParentSnapshot `json:"replied_message,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{
		ID:        m.ID,
		SessionID: m.SessionID,
		Type:      m.Type(),
		User:      m.Author,
		Timestamp: m.Timestamp,
		Reactions: m.Reactions,
		Content:   m.Content(),
	}
	if w.Reactions == nil {
		w.Reactions = []Reaction{}
	}

	switch b := m.Body.(type) {
	case CommandBody:
		w.Command = b.Command
		w.Embeds = b.Embeds
		invoker := b.Invoker
		w.Invoker = &invoker
	case ReplyBody:
		parent := b.Parent
		w.Parent = &parent
	case UserBody, GIFBody, SystemBody:
	case nil:
		return nil, fmt.Errorf("message %s has no body", m.ID)
	default:
		return nil, fmt.Errorf("unsupported message body %T", b)
	}

	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	body, err := newBody(w)
	if err != nil {
		return err
	}

	*m = Message{
		ID:        w.ID,
		SessionID: w.SessionID,
		Author:    w.User,
		Timestamp: w.Timestamp,
		Reactions: w.Reactions,
		Body:      body,
	}
	return nil
}

func newBody(w messageWire) (Body, error) {
	switch w.Type {
	case MessageUser:
		return UserBody{Content: w.Content}, nil
	case MessageGIF:
		return GIFBody{URL: w.Content}, nil
	case MessageSystem:
		return SystemBody{Content: w.Content}, nil
	case MessageCommand:
		b := CommandBody{Command: w.Command, Content: w.Content, Embeds: w.Embeds}
		if w.Invoker != nil {
			b.Invoker = *w.Invoker
		}
		return b, nil
	case MessageReply:
		b := ReplyBody{Content: w.Content}
		if w.Parent != nil {
			b.Parent = *w.Parent
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrInvalidMessageType, w.Type)
	}
}
