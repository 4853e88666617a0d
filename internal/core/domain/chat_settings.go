package domain

import (
	"fmt"
	"regexp"
	"strings"
)

type AutoModeration struct {
	Blacklist     []string `json:"blacklist"`
	RegexPatterns []string `json:"regex_patterns"`
}

// ChatSettings is the deployment-wide chat configuration.
type ChatSettings struct {
	EnableChat     bool           `json:"enable_chat"`
	AutoModeration AutoModeration `json:"auto_moderation"`
}

func DefaultChatSettings() *ChatSettings {
	return &ChatSettings{
		EnableChat: true,
		AutoModeration: AutoModeration{
			Blacklist:     []string{},
			RegexPatterns: []string{},
		},
	}
}

// Validate rejects patterns that do not compile so the send path never
// meets a broken filter.
func (s *ChatSettings) Validate() error {
	for _, p := range s.AutoModeration.RegexPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: invalid regex pattern %q: %v", ErrValidation, p, err)
		}
	}
	return nil
}

// Filter is a compiled form of AutoModeration.
type Filter struct {
	enabled   bool
	blacklist []string
	patterns  []*regexp.Regexp
}

// Compile prepares the filter. Patterns that fail to compile are skipped.
func (s *ChatSettings) Compile() *Filter {
	f := &Filter{enabled: s.EnableChat}
	for _, word := range s.AutoModeration.Blacklist {
		if word != "" {
			f.blacklist = append(f.blacklist, word)
		}
	}
	for _, p := range s.AutoModeration.RegexPatterns {
		if re, err := regexp.Compile(p); err == nil {
			f.patterns = append(f.patterns, re)
		}
	}
	return f
}

// Check returns ErrChatDisabled or ErrBlacklistedContent when content may not
// be posted.
func (f *Filter) Check(content string) error {
	if !f.enabled {
		return ErrChatDisabled
	}
	for _, word := range f.blacklist {
		if strings.Contains(content, word) {
			return ErrBlacklistedContent
		}
	}
	for _, re := range f.patterns {
		if re.MatchString(content) {
			return ErrBlacklistedContent
		}
	}
	return nil
}
