// Package command recognises "@polly <verb>" directives in pull request
// descriptions and comments and reduces them to a single decision.
package command

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultTrigger is the keyword that must follow "@" for a directive.
const DefaultTrigger = "polly"

// Kind identifies a recognised directive.
type Kind int

const (
	// Merge asks for the pull request to be merged immediately.
	Merge Kind = iota + 1
	// MergeAfter asks for a merge once another pull request has merged.
	MergeAfter
)

func (k Kind) String() string {
	switch k {
	case Merge:
		return "merge"
	case MergeAfter:
		return "merge-after"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Command is one directive found in text. Target is only set for
// MergeAfter and holds the URL exactly as written.
type Command struct {
	Kind   Kind
	Target string
}

func (c Command) String() string {
	if c.Kind == MergeAfter {
		return c.Kind.String() + " " + c.Target
	}
	return c.Kind.String()
}

// Parser extracts commands for one trigger keyword.
type Parser struct {
	trigger string
	pattern *regexp.Regexp
}

// NewParser builds a parser for trigger. A leading "@" is accepted, so
// "@polly" and "polly" are equivalent. An empty trigger means
// DefaultTrigger.
func NewParser(trigger string) *Parser {
	trigger = strings.TrimPrefix(strings.TrimSpace(trigger), "@")
	if trigger == "" {
		trigger = DefaultTrigger
	}

	pattern := regexp.MustCompile(
		`@` + regexp.QuoteMeta(trigger) + `[ \t]+(merge-after|merge)`,
	)

	return &Parser{trigger: trigger, pattern: pattern}
}

// Trigger returns the keyword without its "@".
func (p *Parser) Trigger() string {
	return p.trigger
}

// Parse returns every command in text, in order of appearance.
// Unrecognised verbs and a merge-after without a URL are ignored.
//
// A directive must not be glued to a preceding word, email address, or
// path, except that it may directly follow the end of another directive.
// The verb must end at a character that is not a word character or "-",
// so markdown such as `@polly merge` or **@polly merge** is recognised.
func (p *Parser) Parse(text string) []Command {
	var cmds []Command
	lastEnd := -1

	for _, m := range p.pattern.FindAllStringSubmatchIndex(text, -1) {
		start, verbEnd := m[0], m[1]
		if start < lastEnd {
			continue
		}
		if start > 0 && start != lastEnd {
			prev, _ := utf8.DecodeLastRuneInString(text[:start])
			if isWordRune(prev) || strings.ContainsRune("@./-", prev) {
				continue
			}
		}
		if verbEnd < len(text) {
			next, _ := utf8.DecodeRuneInString(text[verbEnd:])
			if isWordRune(next) || next == '-' {
				continue
			}
		}

		switch text[m[2]:m[3]] {
		case "merge":
			cmds = append(cmds, Command{Kind: Merge})
			lastEnd = verbEnd

		case "merge-after":
			target, end, ok := argument(text, verbEnd)
			if !ok {
				continue
			}
			cmds = append(cmds, Command{Kind: MergeAfter, Target: target})
			lastEnd = end
		}
	}
	return cmds
}

// argument reads the blank-separated token starting at text[from:] and
// returns it with the offset just past it. It may not start with "@" so
// that a directive directly following another one is still seen.
func argument(text string, from int) (arg string, end int, ok bool) {
	rest := text[from:]
	trimmed := strings.TrimLeft(rest, " \t")
	if len(trimmed) == len(rest) {
		return "", 0, false
	}

	arg = trimmed
	if i := strings.IndexFunc(trimmed, unicode.IsSpace); i >= 0 {
		arg = trimmed[:i]
	}
	if arg == "" || strings.HasPrefix(arg, "@") {
		return "", 0, false
	}

	return arg, from + len(rest) - len(trimmed) + len(arg), true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ParseAll parses each text block and concatenates the results.
func (p *Parser) ParseAll(texts []string) []Command {
	var cmds []Command
	for _, text := range texts {
		cmds = append(cmds, p.Parse(text)...)
	}
	return cmds
}
