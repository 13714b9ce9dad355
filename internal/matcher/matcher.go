// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package matcher resolves playlist channels to guide match keys.
package matcher

import (
	"strings"
	"sync"

	"github.com/ManuGH/tvguide/internal/epg"
	xglog "github.com/ManuGH/tvguide/internal/log"
	"github.com/ManuGH/tvguide/internal/metrics"
	"github.com/ManuGH/tvguide/internal/playlist"
)

// Rule names the waterfall step that produced a key.
type Rule string

const (
	RuleEPGName           Rule = "epg_name"
	RuleTvgID             Rule = "tvg_id"
	RuleTvgName           Rule = "tvg_name"
	RuleTvgNameUnderscore Rule = "tvg_name_underscore"
	RuleName              Rule = "name"
)

type identity struct {
	name, tvgID, tvgName, epgName string
}

type result struct {
	key   string
	rule  Rule
	guide *epg.Guide
}

// Matcher memoises channel → key resolutions for one guide generation.
// It is safe for concurrent use.
type Matcher struct {
	mu   sync.Mutex
	memo map[identity]result
}

// New returns an empty matcher.
func New() *Matcher {
	return &Matcher{memo: make(map[identity]result)}
}

// Resolve returns the match key of ch in g. The first rule that hits wins:
//
//  1. EPGName override present in the index
//  2. TvgID known as XMLTV channel id; its first display name present in the index
//  3. TvgName present in the index
//  4. TvgName with spaces replaced by underscores present in the index
//  5. the channel name, whether present or not
//
// The result is memoised per guide generation until Reset.
func (m *Matcher) Resolve(ch playlist.Channel, g *epg.Guide) string {
	key, _ := m.ResolveRule(ch, g)
	return key
}

// ResolveRule is Resolve and also reports the rule that matched.
func (m *Matcher) ResolveRule(ch playlist.Channel, g *epg.Guide) (string, Rule) {
	id := identity{name: ch.Name, tvgID: ch.TvgID, tvgName: ch.TvgName, epgName: ch.EPGName}

	m.mu.Lock()
	if m.memo == nil {
		m.memo = make(map[identity]result)
	}
	if r, ok := m.memo[id]; ok && r.guide == g {
		m.mu.Unlock()
		return r.key, r.rule
	}
	m.mu.Unlock()

	key, rule := resolve(ch, g)
	metrics.RecordMatch(string(rule))
	logger := xglog.WithComponent("matcher")
	logger.Debug().
		Str("event", "match.resolved").
		Str(xglog.FieldChannel, ch.Name).
		Str(xglog.FieldMatchKey, key).
		Str("rule", string(rule)).
		Msg("channel matched to guide key")

	m.mu.Lock()
	m.memo[id] = result{key: key, rule: rule, guide: g}
	m.mu.Unlock()
	return key, rule
}

// Reset drops all memoised keys. Call it whenever a new generation is published.
func (m *Matcher) Reset() {
	m.mu.Lock()
	m.memo = make(map[identity]result)
	m.mu.Unlock()
}

// Len returns the number of memoised channels.
func (m *Matcher) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.memo)
}

func resolve(ch playlist.Channel, g *epg.Guide) (string, Rule) {
	var (
		idx     epg.Index
		aliases epg.AliasTable
	)
	if g != nil {
		idx, aliases = g.Index, g.Aliases
	}

	if ch.EPGName != "" {
		if k := epg.Key(ch.EPGName); idx.Has(k) {
			return k, RuleEPGName
		}
	}
	if ch.TvgID != "" {
		if first, ok := aliases.First(ch.TvgID); ok {
			if k := epg.Key(first); idx.Has(k) {
				return k, RuleTvgID
			}
		}
	}
	if ch.TvgName != "" {
		if k := epg.Key(ch.TvgName); idx.Has(k) {
			return k, RuleTvgName
		}
		if k := epg.Key(strings.ReplaceAll(ch.TvgName, " ", "_")); idx.Has(k) {
			return k, RuleTvgNameUnderscore
		}
	}
	return epg.Key(ch.Name), RuleName
}
