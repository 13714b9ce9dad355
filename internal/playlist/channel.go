// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playlist holds the channel identities handed over by the external
// playlist loader and renders them back as an M3U playlist.
package playlist

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/tvguide/internal/catchup"
)

// Channel is one playlist entry as far as guide matching and catchup care.
type Channel struct {
	Name    string         `json:"name"`
	TvgID   string         `json:"tvg_id,omitempty"`
	TvgName string         `json:"tvg_name,omitempty"`
	EPGName string         `json:"epg_name,omitempty"`
	Group   string         `json:"group,omitempty"`
	Logo    string         `json:"logo,omitempty"`
	URL     string         `json:"url"`
	Catchup catchup.Config `json:"catchup"`
}

// rawChannel is the on-disk shape of a channel export. Attribute names follow
// the M3U EXTINF attributes they were read from.
type rawChannel struct {
	Name          string `yaml:"name"`
	TvgID         string `yaml:"tvg-id"`
	TvgName       string `yaml:"tvg-name"`
	EPGName       string `yaml:"epg-name"`
	Group         string `yaml:"group-title"`
	Logo          string `yaml:"tvg-logo"`
	URL           string `yaml:"url"`
	Catchup       string `yaml:"catchup"`
	CatchupSource string `yaml:"catchup-source"`
	CatchupDays   int    `yaml:"catchup-days"`
}

type document struct {
	Channels []rawChannel `yaml:"channels"`
}

// LoadChannels reads a channel export (YAML or JSON). The file holds either a
// list of channels or a mapping with a "channels" list. Catchup settings are
// normalized once here.
func LoadChannels(path string) ([]Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channels %s: %w", path, err)
	}
	return ParseChannels(data)
}

// ParseChannels decodes a channel export held in memory.
func ParseChannels(data []byte) ([]Channel, error) {
	raws, err := decodeRaw(data)
	if err != nil {
		return nil, err
	}

	out := make([]Channel, 0, len(raws))
	for i, r := range raws {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, fmt.Errorf("channel %d: name is required", i)
		}
		out = append(out, Channel{
			Name:    name,
			TvgID:   strings.TrimSpace(r.TvgID),
			TvgName: strings.TrimSpace(r.TvgName),
			EPGName: strings.TrimSpace(r.EPGName),
			Group:   r.Group,
			Logo:    r.Logo,
			URL:     strings.TrimSpace(r.URL),
			Catchup: catchup.Normalize(catchup.Config{
				Mode:   catchup.Mode(r.Catchup),
				Source: strings.TrimSpace(r.CatchupSource),
				Days:   r.CatchupDays,
			}),
		})
	}
	return out, nil
}

func decodeRaw(data []byte) ([]rawChannel, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	docErr := dec.Decode(&doc)
	if docErr == nil {
		return doc.Channels, nil
	}
	if errors.Is(docErr, io.EOF) {
		return nil, nil
	}

	var list []rawChannel
	dec = yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("decode channels: %w", docErr)
	}
	return list, nil
}

// CatchupConfigs returns the catchup configuration of every channel.
func CatchupConfigs(channels []Channel) []catchup.Config {
	out := make([]catchup.Config, len(channels))
	for i, ch := range channels {
		out[i] = ch.Catchup
	}
	return out
}

// Identity fingerprints a channel list. It is used as the playlist identity
// of the guide cache when none is configured.
func Identity(channels []Channel) string {
	h := sha256.New()
	for _, ch := range channels {
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\n", ch.Name, ch.TvgID, ch.TvgName, ch.EPGName, ch.URL)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Find returns the channel with the given name.
func Find(channels []Channel, name string) (Channel, bool) {
	for _, ch := range channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return Channel{}, false
}
