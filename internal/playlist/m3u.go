// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playlist

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// KeyFunc returns the guide match key of a channel.
type KeyFunc func(Channel) string

// WriteM3U renders channels as an extended M3U playlist. tvg-id carries the
// guide key returned by key so players can join the playlist to the served
// guide; catchup attributes are written in their normalized form.
func WriteM3U(w io.Writer, channels []Channel, key KeyFunc) error {
	buf := &bytes.Buffer{}
	buf.WriteString("#EXTM3U\n")
	for _, ch := range channels {
		tvgID := ch.TvgID
		if key != nil {
			tvgID = key(ch)
		}
		buf.WriteString("#EXTINF:-1")
		writeAttr(buf, "tvg-id", tvgID)
		writeAttr(buf, "tvg-name", ch.TvgName)
		writeAttr(buf, "tvg-logo", ch.Logo)
		writeAttr(buf, "group-title", ch.Group)
		if ch.Catchup.Mode != "" {
			writeAttr(buf, "catchup", string(ch.Catchup.Mode))
			writeAttr(buf, "catchup-source", ch.Catchup.Source)
			writeAttr(buf, "catchup-days", strconv.Itoa(ch.Catchup.Days))
		}
		fmt.Fprintf(buf, ",%s\n", oneLine(ch.Name))
		buf.WriteString(oneLine(ch.URL) + "\n")
	}
	_, err := io.Copy(w, buf)
	return err
}

func writeAttr(buf *bytes.Buffer, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(buf, ` %s="%s"`, name, strings.ReplaceAll(oneLine(value), `"`, "'"))
}

func oneLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
