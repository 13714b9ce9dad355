// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catchup

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	xglog "github.com/ManuGH/tvguide/internal/log"
)

// TimeLayout is the format of the start/end times handed to the resolver.
// Single digit fields are accepted on input.
const TimeLayout = "02.01.2006 15:04:05"

const parseLayout = "2.1.2006 15:4:5"

// testMarker as start time returns templates untouched (diagnostic passthrough).
const testMarker = "TEST"

var (
	durationDivisorRe = regexp.MustCompile(`\$?\{duration:(\d+)\}`)
	offsetDivisorRe   = regexp.MustCompile(`\$?\{offset:(\d+)\}`)
	specifierRe       = regexp.MustCompile(`\$?\{(utc|start|lutc|now|timestamp|utcend|end):([YmdHMS](?:-?[YmdHMS]?){0,5})\}`)
	nowSpecifierRe    = regexp.MustCompile(`\$?\{(lutc|now|timestamp):([YmdHMS](?:-?[YmdHMS]?){0,5})\}`)
)

// Resolver substitutes catchup placeholders and builds archive URLs.
// The zero value uses time.Now and time.Local.
type Resolver struct {
	// Now returns the current time; nil means time.Now.
	Now func() time.Time
	// Location is the zone start/end strings are interpreted in; nil means time.Local.
	Location *time.Location
}

// NewResolver returns a resolver on the wall clock and local zone.
func NewResolver() *Resolver {
	return &Resolver{Now: time.Now, Location: time.Local}
}

func (r *Resolver) now() time.Time {
	if r == nil || r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Resolver) location() *time.Location {
	if r == nil || r.Location == nil {
		return time.Local
	}
	return r.Location
}

// Time renders t in the resolver's zone using TimeLayout, ready for Resolve.
func (r *Resolver) Time(t time.Time) string {
	return t.In(r.location()).Format(TimeLayout)
}

// window is the resolved time context of one catchup request.
type window struct {
	start    int64
	duration int64
	now      int64
	// date parts of the start string as written: Y m d H M S
	parts [6]string
}

func (w window) end() int64    { return w.start + w.duration }
func (w window) offset() int64 { return w.now - w.start }

func (r *Resolver) window(start, end string) (window, error) {
	loc := r.location()
	st, err := time.ParseInLocation(parseLayout, strings.TrimSpace(start), loc)
	if err != nil {
		return window{}, fmt.Errorf("parse start time %q: %w", start, err)
	}
	et, err := time.ParseInLocation(parseLayout, strings.TrimSpace(end), loc)
	if err != nil {
		return window{}, fmt.Errorf("parse end time %q: %w", end, err)
	}

	w := window{
		start:    st.Unix(),
		duration: et.Unix() - st.Unix(),
		now:      r.now().Unix(),
	}
	fields := strings.Fields(strings.TrimSpace(start))
	date := strings.Split(fields[0], ".")
	clock := strings.Split(fields[1], ":")
	w.parts = [6]string{date[2], date[1], date[0], clock[0], clock[1], clock[2]}
	return w, nil
}

// Format substitutes every supported placeholder in tmpl for the archive
// window [start, end]. start and end use TimeLayout. Tokens are brace
// delimited with an optional leading '$':
//
//	{utc} {start} {s}            start, epoch seconds
//	{lutc} {now} {timestamp}     current time, epoch seconds
//	{utcend} {end}               start + duration, epoch seconds
//	{duration} {duration:N}      length in seconds, optionally divided by N
//	{offset} {offset:N}          now - start, optionally divided by N
//	{Y} {m} {d} {H} {M} {S}      components of the start time
//	{catchup-id}                 programme catchup id
//	{utc:Ymd-HMS} ...            composite date format of start/now/end
//
// If start is "TEST" the template is returned unchanged.
func (r *Resolver) Format(start, end, catchupID, tmpl string) string {
	if start == testMarker {
		return tmpl
	}
	logger := xglog.WithComponent("catchup")

	w, err := r.window(start, end)
	if err != nil {
		logger.Warn().Err(err).Str("event", "catchup.bad_window").Msg("cannot parse catchup window, template left as is")
		return tmpl
	}

	out := replaceToken(tmpl, "offset", "{offset:1}")

	startStr := strconv.FormatInt(w.start, 10)
	nowStr := strconv.FormatInt(w.now, 10)
	endStr := strconv.FormatInt(w.end(), 10)
	for _, sub := range []struct{ token, value string }{
		{"utc", startStr},
		{"start", startStr},
		{"s", startStr},
		{"lutc", nowStr},
		{"now", nowStr},
		{"timestamp", nowStr},
		{"utcend", endStr},
		{"end", endStr},
		{"Y", w.parts[0]},
		{"m", w.parts[1]},
		{"d", w.parts[2]},
		{"H", w.parts[3]},
		{"M", w.parts[4]},
		{"S", w.parts[5]},
		{"duration", strconv.FormatInt(w.duration, 10)},
		{"catchup-id", catchupID},
	} {
		out = replaceToken(out, sub.token, sub.value)
	}

	out = replaceDivisors(out, durationDivisorRe, w.duration)
	out = replaceDivisors(out, offsetDivisorRe, w.offset())

	loc := r.location()
	out = specifierRe.ReplaceAllStringFunc(out, func(tok string) string {
		m := specifierRe.FindStringSubmatch(tok)
		var ts int64
		switch m[1] {
		case "utc", "start":
			ts = w.start
		case "lutc", "now", "timestamp":
			ts = w.now
		default:
			ts = w.end()
		}
		return formatSpecifier(m[2], time.Unix(ts, 0).In(loc))
	})

	logger.Debug().
		Str("event", "catchup.formatted").
		Str("template", tmpl).
		Str("result", out).
		Msg("catchup placeholders substituted")
	return out
}

// NowURL substitutes only the current-time tokens (lutc, now, timestamp and
// their composite date formats). It is applied to live URLs before playback.
func (r *Resolver) NowURL(u string) string {
	now := r.now()
	nowStr := strconv.FormatInt(now.Unix(), 10)
	out := u
	for _, token := range []string{"lutc", "now", "timestamp"} {
		out = replaceToken(out, token, nowStr)
	}
	local := now.In(r.location())
	return nowSpecifierRe.ReplaceAllStringFunc(out, func(tok string) string {
		m := nowSpecifierRe.FindStringSubmatch(tok)
		return formatSpecifier(m[2], local)
	})
}

// replaceToken replaces "${token}" and "{token}" with value.
func replaceToken(s, token, value string) string {
	s = strings.ReplaceAll(s, "${"+token+"}", value)
	return strings.ReplaceAll(s, "{"+token+"}", value)
}

// replaceDivisors substitutes every {name:N} and ${name:N} occurrence with
// value/N. Each match is replaced as a whole so a bare token never rewrites
// the inside of its $-prefixed form. A zero divisor leaves the token in place.
func replaceDivisors(s string, re *regexp.Regexp, value int64) string {
	warned := make(map[string]struct{})
	return re.ReplaceAllStringFunc(s, func(tok string) string {
		m := re.FindStringSubmatch(tok)
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n == 0 {
			if _, ok := warned[tok]; !ok {
				warned[tok] = struct{}{}
				logger := xglog.WithComponent("catchup")
				logger.Warn().
					Str("event", "catchup.bad_divisor").
					Str("token", tok).
					Msg("unusable divisor in catchup template")
			}
			return tok
		}
		return strconv.FormatInt(value/n, 10)
	})
}

// formatSpecifier expands a composite format such as "Ymd-HMS" for t.
func formatSpecifier(spec string, t time.Time) string {
	var b strings.Builder
	for _, c := range spec {
		switch c {
		case 'Y':
			fmt.Fprintf(&b, "%04d", t.Year())
		case 'm':
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case 'd':
			fmt.Fprintf(&b, "%02d", t.Day())
		case 'H':
			fmt.Fprintf(&b, "%02d", t.Hour())
		case 'M':
			fmt.Fprintf(&b, "%02d", t.Minute())
		case 'S':
			fmt.Fprintf(&b, "%02d", t.Second())
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
