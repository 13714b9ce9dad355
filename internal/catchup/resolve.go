// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catchup

import (
	"regexp"
	"strings"

	xglog "github.com/ManuGH/tvguide/internal/log"
	"github.com/ManuGH/tvguide/internal/metrics"
)

var (
	// host / channel / list type + stream type (mpegts|.m3u8) / query
	flussonicRe = regexp.MustCompile(`^(https?://[^/]+)/(.*)/([^/]*)(mpegts|\.m3u8)(\?.+=.+)?$`)
	// host / channel / anything without a query / query
	flussonicLooseRe = regexp.MustCompile(`^(https?://[^/]+)/(.*)/([^?]*)(\?.+=.+)?$`)
	// host / [live/] user / password / stream id / extension
	xtreamRe = regexp.MustCompile(`^(https?://[^/]+)/(?:live/)?([^/]+)/([^/]+)/([^/.]+)(\.m3u8?|\.ts?)?$`)
)

// Resolve returns the archive URL for the programme window [start, end] on a
// channel streaming from streamURL. cfg is expected to be normalized.
func (r *Resolver) Resolve(streamURL string, cfg Config, start, end, catchupID string) string {
	var (
		tmpl    string
		outcome = "template"
	)
	switch {
	case cfg.Mode == ModeDefault:
		tmpl = cfg.Source
	case cfg.Mode == ModeAppend:
		metrics.RecordCatchupResolve(string(cfg.Mode), outcome)
		return streamURL + r.Format(start, end, catchupID, cfg.Source)
	case cfg.Mode == ModeShift:
		sep := "?"
		if strings.Contains(streamURL, "?") {
			sep = "&"
		}
		metrics.RecordCatchupResolve(string(cfg.Mode), outcome)
		return streamURL + r.Format(start, end, catchupID, sep+"utc={utc}&lutc={lutc}")
	case cfg.Mode.flussonic():
		tmpl, outcome = flussonicTemplate(streamURL, cfg.Mode)
	case cfg.Mode == ModeXC:
		tmpl, outcome = xtreamTemplate(streamURL)
	default:
		logger := xglog.WithComponent("catchup")
		logger.Debug().
			Str("event", "catchup.unknown_mode").
			Str(xglog.FieldMode, string(cfg.Mode)).
			Msg("unknown catchup mode, stream url returned unchanged")
		metrics.RecordCatchupResolve(string(cfg.Mode), "unchanged")
		return streamURL
	}
	metrics.RecordCatchupResolve(string(cfg.Mode), outcome)
	return r.Format(start, end, catchupID, tmpl)
}

// flussonicTemplate rewrites a Flussonic live URL into its archive template.
// URLs that cannot be decomposed are returned as the template unchanged.
func flussonicTemplate(streamURL string, mode Mode) (string, string) {
	if m := flussonicRe.FindStringSubmatch(streamURL); m != nil {
		host, channel, listType, streamType, query := m[1], m[2], m[3], m[4], m[5]
		switch {
		case streamType == "mpegts":
			return host + "/" + channel + "/timeshift_abs-${start}.ts" + query, "rebuilt"
		case listType == "index":
			return host + "/" + channel + "/timeshift_rel-{offset:1}.m3u8" + query, "rebuilt"
		default:
			return host + "/" + channel + "/" + listType + "-timeshift_rel-{offset:1}.m3u8" + query, "rebuilt"
		}
	}
	if m := flussonicLooseRe.FindStringSubmatch(streamURL); m != nil {
		host, channel, query := m[1], m[2], m[4]
		switch mode {
		case ModeFlussonicTS, ModeFS:
			return host + "/" + channel + "/timeshift_abs-${start}.ts" + query, "rebuilt"
		default:
			return host + "/" + channel + "/timeshift_rel-{offset:1}.m3u8" + query, "rebuilt"
		}
	}
	return streamURL, "fallback"
}

// xtreamTemplate rewrites an Xtream Codes live URL into its timeshift template.
func xtreamTemplate(streamURL string) (string, string) {
	m := xtreamRe.FindStringSubmatch(streamURL)
	if m == nil {
		return streamURL, "fallback"
	}
	host, user, pass, id, ext := m[1], m[2], m[3], m[4], m[5]
	if ext == "" {
		ext = ".ts"
	}
	return host + "/timeshift/" + user + "/" + pass + "/{duration:60}/{Y}-{m}-{d}:{H}-{M}/" + id + ext, "rebuilt"
}
