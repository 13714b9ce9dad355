// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"reflect"
	"sort"
)

// ChangeSummary describes the result of comparing two AppConfigs.
type ChangeSummary struct {
	ChangedFields   []string // Field paths that changed, sorted
	RestartRequired bool     // True if any changed field cannot be applied live
	// InvalidatesCache is true when the change alters what the cached guide
	// was built from.
	InvalidatesCache bool
}

var (
	restartFields = map[string]struct{}{
		"DataDir":        {},
		"LogFile":        {},
		"API.ListenAddr": {},
		"EPG.InProcess":  {},
	}
	cacheFields = map[string]struct{}{
		"EPG.Source":        {},
		"EPG.OffsetHours":   {},
		"EPG.Timezone":      {},
		"Catchup.Enabled":   {},
		"Playlist.Identity": {},
		// The channel export decides the playlist identity when none is pinned.
		"Playlist.ChannelsFile": {},
	}
)

// Diff compares two configurations field by field.
func Diff(old, next AppConfig) ChangeSummary {
	var s ChangeSummary
	s.compareStruct("", reflect.ValueOf(old), reflect.ValueOf(next))
	sort.Strings(s.ChangedFields)
	return s
}

// Changed reports whether any field differs.
func (s ChangeSummary) Changed() bool { return len(s.ChangedFields) > 0 }

func (s *ChangeSummary) compareStruct(prefix string, oldVal, nextVal reflect.Value) {
	t := oldVal.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}
		ov, nv := oldVal.Field(i), nextVal.Field(i)
		if ov.Kind() == reflect.Struct {
			s.compareStruct(path, ov, nv)
			continue
		}
		if !reflect.DeepEqual(ov.Interface(), nv.Interface()) {
			s.record(path)
		}
	}
}

func (s *ChangeSummary) record(path string) {
	s.ChangedFields = append(s.ChangedFields, path)
	if _, ok := restartFields[path]; ok {
		s.RestartRequired = true
	}
	if _, ok := cacheFields[path]; ok {
		s.InvalidatesCache = true
	}
}
