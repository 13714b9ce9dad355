// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
	"golang.org/x/net/html/charset"
)

// ErrUnparseable is returned when the payload is neither XMLTV nor gzip/xz
// compressed XMLTV.
var ErrUnparseable = errors.New("epg: payload is not parseable XMLTV")

var errNoRoot = errors.New("no <tv> root element")

// xmlChannel is the subset of an XMLTV <channel> element we read.
type xmlChannel struct {
	ID           string    `xml:"id,attr"`
	DisplayNames []xmlText `xml:"display-name"`
	Icons        []xmlIcon `xml:"icon"`
}

type xmlIcon struct {
	Src *string `xml:"src,attr"`
}

// xmlProgramme is the subset of an XMLTV <programme> element we read.
type xmlProgramme struct {
	Start     string    `xml:"start,attr"`
	Stop      string    `xml:"stop,attr"`
	Channel   string    `xml:"channel,attr"`
	CatchupID string    `xml:"catchup-id,attr"`
	Titles    []xmlText `xml:"title"`
	Descs     []xmlText `xml:"desc"`
}

type xmlText struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

type document struct {
	channels   []xmlChannel
	programmes []xmlProgramme
}

// DecodeOptions controls time shifting and retention during Decode.
type DecodeOptions struct {
	// OffsetHours is added to every programme time and to the retention window.
	OffsetHours float64
	// RetentionDays is how many past days are kept for catchup browsing.
	RetentionDays int
	// Now anchors the retention window. Zero means time.Now().
	Now time.Time
	// Location is the local zone the window is computed in. Nil means time.Local.
	Location *time.Location
}

// Window returns the exclusive retention bounds in epoch seconds: entries are
// kept when Start > lower and Stop < upper.
func (o DecodeOptions) Window() (lower, upper int64) {
	loc := o.Location
	if loc == nil {
		loc = time.Local
	}
	now := o.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)

	days := o.RetentionDays
	if days < 0 {
		days = 0
	}
	offset := offsetSeconds(o.OffsetHours)

	from := now.AddDate(0, 0, -days)
	to := now.AddDate(0, 0, 1)
	lower = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc).Unix() + offset
	upper = time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, loc).Unix() + offset
	return lower, upper
}

func offsetSeconds(hours float64) int64 {
	return int64(math.Round(hours * 3600))
}

// Decode parses an XMLTV payload into a Guide. The payload may be plain XML,
// gzip or xz compressed; the forms are tried in that order.
//
// Malformed programmes (bad times, unknown channel, Start >= Stop) are skipped
// without failing the decode. The returned guide is not sorted; call Sort
// before publishing it.
func Decode(raw []byte, opts DecodeOptions) (*Guide, error) {
	doc, err := parseAny(raw)
	if err != nil {
		return nil, err
	}
	return build(doc, opts), nil
}

func parseAny(raw []byte) (*document, error) {
	doc, rawErr := parseDocument(bytes.NewReader(raw))
	if rawErr == nil {
		return doc, nil
	}

	var gzErr error
	if zr, err := gzip.NewReader(bytes.NewReader(raw)); err != nil {
		gzErr = err
	} else {
		doc, gzErr = parseDocument(zr)
		_ = zr.Close()
		if gzErr == nil {
			return doc, nil
		}
	}

	var xzErr error
	if xr, err := xz.NewReader(bytes.NewReader(raw)); err != nil {
		xzErr = err
	} else {
		doc, xzErr = parseDocument(xr)
		if xzErr == nil {
			return doc, nil
		}
	}

	return nil, fmt.Errorf("%w (xml: %v; gzip: %v; xz: %v)", ErrUnparseable, rawErr, gzErr, xzErr)
}

// parseDocument streams the document and collects channel and programme
// elements. Channels may appear after the programmes referencing them, so
// the two lists are resolved later in build.
func parseDocument(r io.Reader) (*document, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	dec.Entity = xml.HTMLEntity

	doc := &document{}
	sawRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "tv":
			sawRoot = true
		case "channel":
			var ch xmlChannel
			if err := dec.DecodeElement(&ch, &se); err != nil {
				return nil, err
			}
			doc.channels = append(doc.channels, ch)
		case "programme":
			var p xmlProgramme
			if err := dec.DecodeElement(&p, &se); err != nil {
				return nil, err
			}
			doc.programmes = append(doc.programmes, p)
		}
	}
	if !sawRoot {
		return nil, errNoRoot
	}
	return doc, nil
}

func build(doc *document, opts DecodeOptions) *Guide {
	g := NewGuide()

	for _, ch := range doc.channels {
		id := strings.TrimSpace(ch.ID)
		for _, dn := range ch.DisplayNames {
			alias := strings.TrimSpace(dn.Value)
			if alias == "" {
				continue
			}
			g.Aliases[id] = append(g.Aliases[id], alias)
			for _, icon := range ch.Icons {
				if icon.Src != nil {
					g.Icons[Key(alias)] = strings.TrimSpace(*icon.Src)
				}
			}
		}
	}

	offset := offsetSeconds(opts.OffsetHours)
	lower, upper := opts.Window()

	for _, xp := range doc.programmes {
		aliases, ok := g.Aliases[strings.TrimSpace(xp.Channel)]
		if !ok {
			continue
		}
		start, okStart := parseTimestamp(xp.Start)
		stop, okStop := parseTimestamp(xp.Stop)
		keep := okStart && okStop
		p := Programme{}
		if keep {
			p.Start = start.Unix() + offset
			p.Stop = stop.Unix() + offset
			keep = p.Start < p.Stop && p.Start > lower && p.Stop < upper
		}
		if keep {
			p.Title = firstText(xp.Titles)
			p.Description = firstText(xp.Descs)
			p.CatchupID = xp.CatchupID
		}
		for _, alias := range aliases {
			key := Key(alias)
			list, seen := g.Index[key]
			if !seen {
				g.Index[key] = nil
			}
			if keep {
				g.Index[key] = append(list, p)
			}
		}
	}
	return g
}

var timestampLayouts = []string{
	"20060102150405 -0700",
	"20060102150405 -07:00",
	"20060102150405",
}

// parseTimestamp parses an XMLTV date. A missing zone is read as UTC.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstText(texts []xmlText) string {
	if len(texts) == 0 {
		return ""
	}
	return texts[0].Value
}
