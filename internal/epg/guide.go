// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package epg decodes XMLTV guides into the lookup structures used for
// channel matching, now-playing display and catchup browsing.
package epg

import (
	"sort"
	"strings"
	"time"

	unorm "golang.org/x/text/unicode/norm"
)

// Programme is one decoded guide entry. Start and Stop are epoch seconds with
// the configured EPG offset already applied. Start < Stop always holds.
type Programme struct {
	Start       int64  `json:"start"`
	Stop        int64  `json:"stop"`
	Title       string `json:"title"`
	Description string `json:"desc"`
	CatchupID   string `json:"catchup-id"`
}

// Covers reports whether now falls in [Start, Stop).
func (p Programme) Covers(now time.Time) bool {
	ts := now.Unix()
	return p.Start <= ts && ts < p.Stop
}

// Progress returns how far now is into the programme, in percent (0..100).
func (p Programme) Progress(now time.Time) int {
	if p.Stop <= p.Start {
		return 0
	}
	ts := now.Unix()
	switch {
	case ts <= p.Start:
		return 0
	case ts >= p.Stop:
		return 100
	}
	return int((ts - p.Start) * 100 / (p.Stop - p.Start))
}

// StartTime returns Start as a time.Time.
func (p Programme) StartTime() time.Time { return time.Unix(p.Start, 0) }

// StopTime returns Stop as a time.Time.
func (p Programme) StopTime() time.Time { return time.Unix(p.Stop, 0) }

// AliasTable maps an XMLTV channel id to its display names in document order.
type AliasTable map[string][]string

// First returns the first alias registered for id.
func (a AliasTable) First(id string) (string, bool) {
	names := a[id]
	if len(names) == 0 {
		return "", false
	}
	return names[0], true
}

// Index maps a match key (lower-cased alias) to its programmes ordered by Start.
type Index map[string][]Programme

// Has reports whether key is present, even with an empty list.
func (idx Index) Has(key string) bool {
	_, ok := idx[key]
	return ok
}

// Current returns the first programme of key that covers now.
func (idx Index) Current(key string, now time.Time) (Programme, bool) {
	for _, p := range idx[key] {
		if p.Covers(now) {
			return p, true
		}
	}
	return Programme{}, false
}

// Upcoming returns up to limit programmes of key starting after now.
func (idx Index) Upcoming(key string, now time.Time, limit int) []Programme {
	ts := now.Unix()
	var out []Programme
	for _, p := range idx[key] {
		if p.Start > ts {
			out = append(out, p)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// Archive returns the programmes of key that already ended and started within
// the last days days. These are the candidates for catchup playback.
func (idx Index) Archive(key string, now time.Time, days int) []Programme {
	ts := now.Unix()
	floor := now.AddDate(0, 0, -days).Unix()
	var out []Programme
	for _, p := range idx[key] {
		if p.Stop <= ts && p.Start >= floor {
			out = append(out, p)
		}
	}
	return out
}

// Guide is one decoded generation of guide data.
type Guide struct {
	Index   Index             `json:"programmes"`
	Aliases AliasTable        `json:"aliases"`
	Icons   map[string]string `json:"icons"`
}

// NewGuide returns an empty, usable guide.
func NewGuide() *Guide {
	return &Guide{
		Index:   make(Index),
		Aliases: make(AliasTable),
		Icons:   make(map[string]string),
	}
}

// Sort orders every programme list by Start. The sort is stable so entries
// with equal Start keep their source order.
func (g *Guide) Sort() {
	if g == nil {
		return
	}
	for _, list := range g.Index {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Start < list[j].Start })
	}
}

// Icon returns the channel icon recorded for key.
func (g *Guide) Icon(key string) string {
	if g == nil {
		return ""
	}
	return g.Icons[key]
}

// Stats summarises a guide for logging and status display.
type Stats struct {
	Channels   int `json:"channels"`
	Keys       int `json:"keys"`
	Programmes int `json:"programmes"`
}

// Stats counts native channels, match keys and programme entries.
func (g *Guide) Stats() Stats {
	if g == nil {
		return Stats{}
	}
	s := Stats{Channels: len(g.Aliases), Keys: len(g.Index)}
	for _, list := range g.Index {
		s.Programmes += len(list)
	}
	return s
}

// Key turns a channel name into the match key used by Index.
func Key(name string) string {
	return strings.ToLower(unorm.NFC.String(name))
}
