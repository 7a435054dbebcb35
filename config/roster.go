package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Roster lists chat authors that get special treatment.
//
//	allow:       always answered (matched ignoring case and whitespace)
//	ignored:     never answered while redeemed
//	blacklisted: never granted redeem tokens
type Roster struct {
	Allow       []string `yaml:"allow"`
	Ignored     []string `yaml:"ignored"`
	Blacklisted []string `yaml:"blacklisted"`
}

// LoadRoster reads a YAML roster file. A missing file yields an empty roster.
func LoadRoster(path string) (*Roster, error) {
	r := &Roster{}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	if err := yaml.Unmarshal(b, r); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	return r, nil
}

// WithOperator returns a copy whose allow-list includes the operator account.
func (r *Roster) WithOperator(operator string) *Roster {
	out := *r
	out.Allow = append([]string(nil), r.Allow...)
	if operator != "" {
		out.Allow = append(out.Allow, operator)
	}
	return &out
}

// Allowed reports whether author matches an allow-list entry. "Caesar LP", "caesarlp" and
// "CaesarLP_" all match the entry "caesarlp".
func (r *Roster) Allowed(author string) bool {
	a := foldName(author)
	for _, e := range r.Allow {
		if e = foldName(e); e != "" && strings.Contains(a, e) {
			return true
		}
	}
	return false
}

// IsIgnored reports an exact match on the ignore list.
func (r *Roster) IsIgnored(author string) bool { return contains(r.Ignored, author) }

// IsBlacklisted reports an exact match on the token blacklist.
func (r *Roster) IsBlacklisted(author string) bool { return contains(r.Blacklisted, author) }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v != "" && v == s {
			return true
		}
	}
	return false
}

func foldName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}
