// Klipper printer.cfg parsing for auto-offset-z
//
// Reads the same configuration file format the Klipper host uses: [section]
// headers, "key: value" options, '#' comments, "#*#" SAVE_CONFIG blocks and
// [include ...] directives.
//
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Config provides access to a parsed configuration file.
type Config struct {
	sections map[string]*Section
	order    []string // maintains section order
}

// New creates a new empty Config.
func New() *Config {
	return &Config{sections: make(map[string]*Section)}
}

// Load reads a configuration file and returns a Config.
// Supports [include path] directives for including other config files.
func Load(path string) (*Config, error) {
	c := New()
	if err := c.parseFile(path, make(map[string]bool)); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses a configuration from a string.
func LoadString(data string) (*Config, error) {
	c := New()
	p := parser{cfg: c}
	for _, line := range strings.Split(data, "\n") {
		if err := p.feed(line); err != nil {
			return nil, err
		}
	}
	p.flush()
	return c, nil
}

func (c *Config) parseFile(path string, visited map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: invalid path %s: %w", path, err)
	}
	if visited[abs] {
		return fmt.Errorf("config: recursive include: %s", path)
	}
	visited[abs] = true
	defer func() { visited[abs] = false }()

	f, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("config: unable to open %s: %w", path, err)
	}
	defer f.Close()

	p := parser{cfg: c, dir: filepath.Dir(abs), visited: visited}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := p.feed(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("config: error reading %s: %w", path, err)
	}
	p.flush()
	return nil
}

// parser holds line-by-line parse state shared by Load and LoadString.
type parser struct {
	cfg     *Config
	dir     string          // base dir for [include ...], empty disables includes
	visited map[string]bool // include cycle detection

	section string
	options map[string]string
	lastKey string
	lineNum int
}

func (p *parser) feed(rawLine string) error {
	p.lineNum++
	indented := strings.HasPrefix(rawLine, " ") || strings.HasPrefix(rawLine, "\t")
	line := strings.TrimSpace(rawLine)
	if line == "" {
		return nil
	}

	// Lines starting with "#*#" are Klipper SAVE_CONFIG output; strip the
	// prefix and parse them as regular config.
	if strings.HasPrefix(line, "#*#") {
		rest := line[3:]
		// SAVE_CONFIG continuation lines carry extra indentation after
		// the marker ("#*# \t...").
		indented = strings.HasPrefix(rest, " \t") || strings.HasPrefix(rest, "  ")
		line = strings.TrimSpace(rest)
		if line == "" {
			return nil
		}
	} else if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
		if line == "" {
			return nil
		}
	}

	if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
		p.flush()
		header := strings.TrimSpace(line[1 : len(line)-1])
		if header == "" {
			return fmt.Errorf("config: empty section header at line %d", p.lineNum)
		}
		if strings.HasPrefix(header, "include ") {
			return p.include(strings.TrimSpace(header[8:]))
		}
		p.section = header
		p.options = make(map[string]string)
		p.lastKey = ""
		return nil
	}

	// Options before the first section header are ignored
	if p.section == "" {
		return nil
	}

	// An indented line continues the previous option's value (Klipper's
	// multi-line list syntax, e.g. z_positions / points).
	if indented && p.lastKey != "" {
		p.options[p.lastKey] += "\n" + line
		return nil
	}

	kv := strings.SplitN(line, ":", 2)
	if len(kv) != 2 {
		kv = strings.SplitN(line, "=", 2)
	}
	if len(kv) != 2 {
		return nil
	}

	key := strings.TrimSpace(kv[0])
	if key == "" {
		return nil
	}
	p.options[key] = strings.TrimSpace(kv[1])
	p.lastKey = key
	return nil
}

func (p *parser) include(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("config: empty include at line %d", p.lineNum)
	}
	if p.dir == "" {
		return fmt.Errorf("config: [include %s] not supported in string config", pattern)
	}
	glob := filepath.Join(p.dir, pattern)
	matches, err := filepath.Glob(glob)
	if err != nil {
		return fmt.Errorf("config: invalid include pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)
	if len(matches) == 0 && !strings.ContainsAny(glob, "*?[") {
		return fmt.Errorf("config: include file does not exist: %s", glob)
	}
	for _, m := range matches {
		if err := p.cfg.parseFile(m, p.visited); err != nil {
			return err
		}
	}
	return nil
}

// flush saves the section being parsed, if any.
func (p *parser) flush() {
	if p.section == "" {
		return
	}
	p.cfg.addSection(p.section, p.options)
	p.section = ""
	p.options = nil
	p.lastKey = ""
}

func (c *Config) addSection(name string, options map[string]string) {
	if existing, ok := c.sections[name]; ok {
		// Section seen again (e.g. from a SAVE_CONFIG block): merge options
		for k, v := range options {
			existing.options[strings.ToLower(k)] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// GetSection returns a Section by name, or an error if not found.
func (c *Config) GetSection(name string) (*Section, error) {
	sec, ok := c.sections[name]
	if !ok {
		return nil, ErrMissingSection(name)
	}
	return sec, nil
}

// GetSectionOptional returns a Section if it exists, or nil if not.
func (c *Config) GetSectionOptional(name string) *Section {
	return c.sections[name]
}

// HasSection checks if a section exists.
func (c *Config) HasSection(name string) bool {
	_, ok := c.sections[name]
	return ok
}

// GetSectionNames returns all section names in file order.
func (c *Config) GetSectionNames() []string {
	result := make([]string, len(c.order))
	copy(result, c.order)
	return result
}
