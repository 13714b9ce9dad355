// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFresh(t *testing.T) {
	now := testNow
	ts := now.Unix()

	tests := []struct {
		name string
		idx  Index
		want bool
	}{
		{name: "empty index", idx: Index{}, want: false},
		{name: "nil index", idx: nil, want: false},
		{name: "live programme", idx: Index{"a": {{Start: ts - 10, Stop: ts + 10}}}, want: true},
		{name: "only past", idx: Index{"a": {{Start: ts - 100, Stop: ts - 10}}}, want: false},
		{name: "only future", idx: Index{"a": {{Start: ts + 10, Stop: ts + 100}}}, want: false},
		{name: "stop is exclusive", idx: Index{"a": {{Start: ts - 10, Stop: ts}}}, want: false},
		{name: "start is inclusive", idx: Index{"a": {{Start: ts, Stop: ts + 1}}}, want: true},
		{
			name: "one live channel among empty ones",
			idx:  Index{"a": nil, "b": {{Start: ts - 100, Stop: ts - 50}}, "c": {{Start: ts - 1, Stop: ts + 1}}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFresh(tt.idx, now))
		})
	}
}

func TestGuide_SortIsStable(t *testing.T) {
	g := NewGuide()
	g.Index["a"] = []Programme{
		{Start: 30, Stop: 40, Title: "third"},
		{Start: 10, Stop: 20, Title: "first"},
		{Start: 10, Stop: 15, Title: "first-overlap"},
		{Start: 20, Stop: 30, Title: "second"},
	}
	g.Sort()

	var titles []string
	for _, p := range g.Index["a"] {
		titles = append(titles, p.Title)
	}
	assert.Equal(t, []string{"first", "first-overlap", "second", "third"}, titles)
}

func TestIndex_CurrentTakesFirstMatch(t *testing.T) {
	ts := testNow.Unix()
	idx := Index{"a": {
		{Start: ts - 200, Stop: ts - 100, Title: "past"},
		{Start: ts - 50, Stop: ts + 50, Title: "live"},
		{Start: ts - 10, Stop: ts + 10, Title: "overlap"},
	}}

	p, ok := idx.Current("a", testNow)
	require.True(t, ok)
	assert.Equal(t, "live", p.Title)

	_, ok = idx.Current("missing", testNow)
	assert.False(t, ok)
}

func TestIndex_UpcomingAndArchive(t *testing.T) {
	ts := testNow.Unix()
	idx := Index{"a": {
		{Start: ts - 3*86400, Stop: ts - 3*86400 + 60, Title: "too old"},
		{Start: ts - 7200, Stop: ts - 3600, Title: "earlier"},
		{Start: ts - 60, Stop: ts + 60, Title: "live"},
		{Start: ts + 60, Stop: ts + 120, Title: "next"},
		{Start: ts + 120, Stop: ts + 180, Title: "later"},
	}}

	up := idx.Upcoming("a", testNow, 1)
	require.Len(t, up, 1)
	assert.Equal(t, "next", up[0].Title)

	archive := idx.Archive("a", testNow, 2)
	require.Len(t, archive, 1)
	assert.Equal(t, "earlier", archive[0].Title)
}

func TestProgramme_Progress(t *testing.T) {
	ts := testNow.Unix()
	p := Programme{Start: ts - 30, Stop: ts + 90}
	assert.Equal(t, 25, p.Progress(testNow))
	assert.Equal(t, 0, p.Progress(testNow.Add(-time.Hour)))
	assert.Equal(t, 100, p.Progress(testNow.Add(time.Hour)))
	assert.Equal(t, 0, Programme{}.Progress(testNow))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "das erste hd", Key("Das Erste HD"))
	// Decomposed and composed forms collapse to the same key.
	assert.Equal(t, Key("\u00d6sterreich"), Key("O\u0308sterreich"))
}

func TestGuide_Stats(t *testing.T) {
	g, err := Decode([]byte(sampleXMLTV), testOptions())
	require.NoError(t, err)
	s := g.Stats()
	assert.Equal(t, 2, s.Channels)
	assert.Equal(t, 3, s.Keys)
	assert.Equal(t, 5, s.Programmes)
}
