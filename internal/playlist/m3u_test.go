// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playlist

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tvguide/internal/catchup"
)

func TestWriteM3UTable(t *testing.T) {
	tests := []struct {
		name     string
		channels []Channel
		key      KeyFunc
		expect   []string
	}{
		{
			name: "catchup attributes",
			channels: []Channel{{
				Name: "ORF1 HD", TvgID: "orf1.at", Group: "AT", Logo: "http://p/ORF1.png", URL: "http://s/1",
				Catchup: catchup.Config{Mode: catchup.ModeXC, Days: 7},
			}},
			expect: []string{
				`#EXTINF:-1 tvg-id="orf1.at" tvg-logo="http://p/ORF1.png" group-title="AT" catchup="xc" catchup-days="7",ORF1 HD`,
				"http://s/1",
			},
		},
		{
			name:     "key function overrides tvg-id",
			channels: []Channel{{Name: "B", TvgID: "b.id", URL: "http://s/b"}},
			key:      func(Channel) string { return "das erste" },
			expect:   []string{`#EXTINF:-1 tvg-id="das erste",B`},
		},
		{
			name:     "quotes and newlines are neutralised",
			channels: []Channel{{Name: "Bad\nName", TvgName: `Say "hi"`, URL: "http://s/c"}},
			expect:   []string{`#EXTINF:-1 tvg-name="Say 'hi'",Bad Name`},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteM3U(&buf, tc.channels, tc.key))
			out := buf.String()
			assert.True(t, strings.HasPrefix(out, "#EXTM3U\n"))
			for _, want := range tc.expect {
				assert.Contains(t, out, want)
			}
			assert.Equal(t, len(tc.channels), strings.Count(out, "#EXTINF:"))
		})
	}
}

func FuzzWriteM3U(f *testing.F) {
	f.Add("Channel 1", "ch1", "Group1", "http://stream1", "xc")
	f.Add("Test & <Special>", "test-id", "Default", "http://example.com/stream", "")
	f.Add("Unicode Тест", "unicode-1", "Интер", "rtsp://stream", "flussonic")

	f.Fuzz(func(t *testing.T, name, tvgID, group, url, mode string) {
		chs := []Channel{{Name: name, TvgID: tvgID, Group: group, URL: url, Catchup: catchup.Config{Mode: catchup.Mode(mode)}}}
		var buf bytes.Buffer
		if err := WriteM3U(&buf, chs, nil); err != nil {
			t.Fatalf("WriteM3U failed: %v", err)
		}
		out := buf.String()
		if !strings.HasPrefix(out, "#EXTM3U\n") {
			t.Fatalf("missing header: %q", out)
		}
		// header + EXTINF + URL
		if n := strings.Count(out, "\n"); n != 3 {
			t.Fatalf("expected 3 lines, got %d: %q", n, out)
		}
	})
}
