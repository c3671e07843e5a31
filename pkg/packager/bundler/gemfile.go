// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package bundler

import (
	"bufio"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Gem is one dependency of an application, merged from Gemfile and
// Gemfile.lock.
type Gem struct {
	Name string
	// Version is the resolved version from the lockfile, empty for gems
	// included from a local path.
	Version     string
	Constraints []string
	// Envs are the bundler groups the gem belongs to.
	Envs []string
	// Require reports whether the app loads the gem at boot; RequireAs
	// overrides the required feature name.
	Require   bool
	RequireAs string
	Path      string
	// Remote and Revision are set for git-sourced gems.
	Remote   string
	Revision string
	Deps     map[string]string
}

// Gemfile is the parsed dependency declaration of an application.
type Gemfile struct {
	Source string
	Gems   map[string]*Gem
	// Required lists the gems the Gemfile itself declares, in order.
	Required     []string
	Remote       string
	Dependencies map[string][]string
}

// ParseGemfile parses a Gemfile and its sibling lockfile. Gems named in
// ignore, and bundler itself, are dropped from the result.
func ParseGemfile(path string, ignore []string) (*Gemfile, error) {
	g := &Gemfile{
		Gems:         make(map[string]*Gem),
		Dependencies: make(map[string][]string),
	}
	if err := g.parseGemfile(path); err != nil {
		return nil, err
	}
	if err := g.parseLockfile(path + ".lock"); err != nil {
		return nil, err
	}
	delete(g.Gems, "bundler")
	for _, name := range ignore {
		delete(g.Gems, name)
	}
	return g, nil
}

// SortedNames returns the gem names in lexical order.
func (g *Gemfile) SortedNames() []string {
	names := make([]string, 0, len(g.Gems))
	for name := range g.Gems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Gemfile) parseGemfile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening Gemfile")
	}
	defer f.Close()
	p := &gemfileParser{assigns: make(map[string]any)}
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.parseLine(g, line); err != nil {
			return errors.Wrapf(err, "%s:%d", path, lineno)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "reading Gemfile")
	}
	if len(p.groups) > 0 {
		return errors.Errorf("%s: unclosed group block", path)
	}
	return nil
}

type gemfileParser struct {
	assigns map[string]any
	// groups is the stack of open group blocks.
	groups [][]string
}

func (p *gemfileParser) parseLine(g *Gemfile, line string) error {
	l := &lexer{s: line}
	switch {
	case l.keyword("source"):
		v, err := p.expr(l)
		if err != nil {
			return err
		}
		s, ok := v.(string)
		if !ok {
			return errors.New("source expects a string")
		}
		g.Source = s
		return nil
	case l.keyword("ruby"):
		// The interpreter requirement is satisfied by the configured rubies.
		return nil
	case l.keyword("gem"):
		return p.parseGem(g, l)
	case l.keyword("group"):
		envs, err := p.parseGroupHeader(l)
		if err != nil {
			return err
		}
		p.groups = append(p.groups, envs)
		return nil
	case line == "end":
		if len(p.groups) == 0 {
			return errors.New("end without group")
		}
		p.groups = p.groups[:len(p.groups)-1]
		return nil
	}
	if name, ok := l.assignment(); ok {
		v, err := p.expr(l)
		if err != nil {
			return err
		}
		p.assigns[name] = v
		return nil
	}
	return errors.Errorf("unsupported Gemfile construct: %q", line)
}

func (p *gemfileParser) parseGroupHeader(l *lexer) ([]string, error) {
	var envs []string
	for {
		l.skipSpace()
		sym, err := l.symbol()
		if err != nil {
			return nil, err
		}
		envs = append(envs, sym)
		l.skipSpace()
		if !l.literal(",") {
			break
		}
	}
	l.skipSpace()
	if !l.literal("do") {
		return nil, errors.New("group header must end with do")
	}
	return envs, nil
}

func (p *gemfileParser) parseGem(g *Gemfile, l *lexer) error {
	l.skipSpace()
	name, err := l.quotedString()
	if err != nil {
		return errors.Wrap(err, "gem name")
	}
	gem := &Gem{
		Name:    name,
		Envs:    []string{"default"},
		Require: true,
		Deps:    make(map[string]string),
	}
	if len(p.groups) > 0 {
		gem.Envs = p.groups[len(p.groups)-1]
	}
	for {
		l.skipSpace()
		if l.eof() || l.peek() == '#' {
			break
		}
		if !l.literal(",") {
			return errors.Errorf("unexpected %q in gem line", l.rest())
		}
		l.skipSpace()
		if key, ok := l.keywordArg(); ok {
			v, err := p.expr(l)
			if err != nil {
				return errors.Wrapf(err, "option %s", key)
			}
			if err := applyGemOption(gem, key, v); err != nil {
				return err
			}
			continue
		}
		v, err := p.expr(l)
		if err != nil {
			return err
		}
		s, ok := v.(string)
		if !ok {
			return errors.Errorf("constraint of %s is not a string", name)
		}
		gem.Constraints = append(gem.Constraints, s)
	}
	g.Required = append(g.Required, name)
	g.Gems[name] = gem
	return nil
}

func applyGemOption(gem *Gem, key string, v any) error {
	switch key {
	case "require":
		switch rv := v.(type) {
		case bool:
			gem.Require = rv
		case string:
			gem.RequireAs = rv
		default:
			return errors.Errorf("require option of %s must be a bool or string", gem.Name)
		}
	case "path":
		s, ok := v.(string)
		if !ok {
			return errors.Errorf("path option of %s must be a string", gem.Name)
		}
		gem.Path = s
	default:
		// Options like git, branch or platforms only influence resolution;
		// the lockfile carries their outcome.
	}
	return nil
}

// expr evaluates the small Gemfile expression grammar: literals, ENV
// access, variables and the ternary operator.
func (p *gemfileParser) expr(l *lexer) (any, error) {
	v, err := p.simpleExpr(l)
	if err != nil {
		return nil, err
	}
	l.skipSpace()
	if !l.literal("?") {
		return v, nil
	}
	l.skipSpace()
	then, err := p.simpleExpr(l)
	if err != nil {
		return nil, err
	}
	l.skipSpace()
	if !l.literal(":") {
		return nil, errors.New("ternary without alternative")
	}
	l.skipSpace()
	alt, err := p.expr(l)
	if err != nil {
		return nil, err
	}
	if truthy(v) {
		return then, nil
	}
	return alt, nil
}

func (p *gemfileParser) simpleExpr(l *lexer) (any, error) {
	l.skipSpace()
	switch {
	case l.eof():
		return nil, errors.New("expected expression")
	case l.literal("("):
		v, err := p.expr(l)
		if err != nil {
			return nil, err
		}
		l.skipSpace()
		if !l.literal(")") {
			return nil, errors.New("unclosed parenthesis")
		}
		return v, nil
	case l.literal("ENV["):
		l.skipSpace()
		name, err := l.quotedString()
		if err != nil {
			return nil, errors.Wrap(err, "ENV access")
		}
		l.skipSpace()
		if !l.literal("]") {
			return nil, errors.New("unclosed ENV access")
		}
		if v, ok := os.LookupEnv(name); ok {
			return v, nil
		}
		return nil, nil
	case l.peek() == '\'' || l.peek() == '"':
		return l.quotedString()
	case l.peek() == ':':
		return l.symbol()
	}
	name := l.ident()
	switch name {
	case "":
		return nil, errors.Errorf("unsupported expression: %q", l.rest())
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	v, ok := p.assigns[name]
	if !ok {
		return nil, errors.Errorf("undefined variable %s", name)
	}
	return v, nil
}

func truthy(v any) bool {
	switch rv := v.(type) {
	case nil:
		return false
	case bool:
		return rv
	}
	return true
}

// lexer scans one Gemfile line.
type lexer struct {
	s   string
	pos int
}

func (l *lexer) eof() bool  { return l.pos >= len(l.s) }
func (l *lexer) peek() byte { return l.s[l.pos] }
func (l *lexer) rest() string {
	return l.s[l.pos:]
}

func (l *lexer) skipSpace() {
	for !l.eof() && (l.peek() == ' ' || l.peek() == '\t') {
		l.pos++
	}
}

// literal consumes s if it is next.
func (l *lexer) literal(s string) bool {
	if strings.HasPrefix(l.s[l.pos:], s) {
		l.pos += len(s)
		return true
	}
	return false
}

// keyword consumes a leading word followed by a space.
func (l *lexer) keyword(word string) bool {
	if strings.HasPrefix(l.s[l.pos:], word+" ") {
		l.pos += len(word) + 1
		return true
	}
	return false
}

func (l *lexer) quotedString() (string, error) {
	if l.eof() || (l.peek() != '\'' && l.peek() != '"') {
		return "", errors.Errorf("expected string at %q", l.rest())
	}
	quote := l.peek()
	l.pos++
	start := l.pos
	for !l.eof() && l.peek() != quote {
		l.pos++
	}
	if l.eof() {
		return "", errors.New("unterminated string")
	}
	s := l.s[start:l.pos]
	l.pos++
	return s, nil
}

func (l *lexer) symbol() (string, error) {
	if l.eof() || l.peek() != ':' {
		return "", errors.Errorf("expected symbol at %q", l.rest())
	}
	l.pos++
	name := l.ident()
	if name == "" {
		return "", errors.New("empty symbol")
	}
	return name, nil
}

func (l *lexer) ident() string {
	start := l.pos
	for !l.eof() && identChar(l.peek()) {
		l.pos++
	}
	if !l.eof() && (l.peek() == '?' || l.peek() == '!') {
		l.pos++
	}
	return l.s[start:l.pos]
}

func identChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// assignment consumes "name =" and returns the name.
func (l *lexer) assignment() (string, bool) {
	save := l.pos
	name := l.ident()
	if name == "" {
		return "", false
	}
	l.skipSpace()
	if !l.literal("=") || l.literal("=") {
		l.pos = save
		return "", false
	}
	l.skipSpace()
	return name, true
}

// keywordArg consumes "name:" or ":name =>" and returns the option name.
func (l *lexer) keywordArg() (string, bool) {
	save := l.pos
	if l.literal(":") {
		name := l.ident()
		l.skipSpace()
		if name != "" && l.literal("=>") {
			l.skipSpace()
			return name, true
		}
		l.pos = save
		return "", false
	}
	name := l.ident()
	if name != "" && l.literal(":") {
		l.skipSpace()
		return name, true
	}
	l.pos = save
	return "", false
}

// parseLockfile merges the resolved versions from Gemfile.lock.
func (g *Gemfile) parseLockfile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening lockfile")
	}
	defer f.Close()
	var section string
	var lines []string
	flush := func() error {
		if section == "" {
			return nil
		}
		return errors.Wrapf(g.parseLockSection(section, lines), "section %s", section)
	}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] != ' ' {
			if err := flush(); err != nil {
				return err
			}
			section = strings.TrimSpace(line)
			lines = lines[:0]
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "reading lockfile")
	}
	return flush()
}

func (g *Gemfile) parseLockSection(section string, lines []string) error {
	switch section {
	case "GEM":
		if len(lines) < 2 || !strings.HasPrefix(lines[0], "  remote: ") {
			return errors.New("missing remote")
		}
		g.Remote = strings.TrimPrefix(lines[0], "  remote: ")
		if strings.TrimSpace(lines[1]) != "specs:" {
			return errors.New("missing specs")
		}
		_, err := g.parseLockSpecs(lines[2:])
		return err
	case "GIT":
		var remote, revision string
		specsAt := -1
		for i, line := range lines {
			switch {
			case strings.HasPrefix(line, "  remote: "):
				remote = strings.TrimPrefix(line, "  remote: ")
			case strings.HasPrefix(line, "  revision: "):
				revision = strings.TrimPrefix(line, "  revision: ")
			case strings.TrimSpace(line) == "specs:":
				specsAt = i
			}
			if specsAt >= 0 {
				break
			}
		}
		if specsAt < 0 || remote == "" || revision == "" {
			return errors.New("incomplete git source")
		}
		gem, err := g.parseLockSpecs(lines[specsAt+1:])
		if err != nil {
			return err
		}
		if gem != nil {
			gem.Remote = remote
			gem.Revision = revision
		}
		return nil
	case "PLATFORMS":
		for _, line := range lines {
			if p := strings.TrimSpace(line); p != "ruby" && p != "java" {
				return errors.Errorf("unsupported platform %s", p)
			}
		}
		return nil
	case "DEPENDENCIES":
		for _, line := range lines {
			entry := strings.TrimSpace(line)
			if strings.HasSuffix(entry, "!") {
				continue
			}
			name, rest, found := strings.Cut(entry, " (")
			if !found {
				g.Dependencies[name] = nil
				continue
			}
			g.Dependencies[name] = strings.Split(strings.TrimSuffix(rest, ")"), ", ")
		}
		return nil
	case "PATH", "RUBY VERSION", "BUNDLED WITH":
		return nil
	}
	return errors.New("unknown lockfile section")
}

// parseLockSpecs reads one specs block and returns the last top-level gem.
func (g *Gemfile) parseLockSpecs(lines []string) (*Gem, error) {
	var current *Gem
	for _, line := range lines {
		if len(line) > 4 && line[4] == ' ' {
			// Dependency edge of the gem above.
			if current == nil {
				return nil, errors.Errorf("dangling dependency %q", line)
			}
			name, constraint, _ := strings.Cut(strings.TrimSpace(line), " ")
			current.Deps[name] = strings.TrimSuffix(strings.TrimPrefix(constraint, "("), ")")
			continue
		}
		name, rest, found := strings.Cut(strings.TrimSpace(line), " ")
		if !found {
			return nil, errors.Errorf("malformed spec line %q", line)
		}
		ver := strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
		if strings.HasSuffix(ver, "-java") {
			continue
		}
		gem, ok := g.Gems[name]
		if !ok {
			gem = &Gem{Name: name, Deps: make(map[string]string)}
			g.Gems[name] = gem
		}
		gem.Version = ver
		current = gem
	}
	return current, nil
}
