/*
Copyright 2021 The Feedwire Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package feed

import (
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>X &amp; Friends</title>
    <link>https://x.test/</link>
    <description>things</description>
    <image><url>https://x.test/logo.png</url><title>X</title></image>
    <item>
      <title>First</title>
      <link>https://x.test/1</link>
      <guid>g1</guid>
      <description>hello</description>
      <pubDate>Mon, 01 Jan 2024 00:00:00 GMT</pubDate>
      <enclosure url="https://x.test/1.jpg" type="image/jpeg" length="1"/>
    </item>
    <item>
      <title>No guid</title>
      <link>https://x.test/2</link>
      <description>world</description>
    </item>
  </channel>
</rss>`

const sampleAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom X</title>
  <logo>https://x.test/atom.png</logo>
  <link rel="alternate" type="text/html" href="https://x.test/"/>
  <entry>
    <title>Entry</title>
    <id>tag:x.test,2024:1</id>
    <link rel="alternate" type="text/html" href="https://x.test/e1"/>
    <published>2024-01-02T03:04:05Z</published>
    <summary>sum</summary>
  </entry>
</feed>`

const sampleRDF = `<?xml version="1.0" encoding="UTF-8"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns="http://purl.org/rss/1.0/"
         xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel rdf:about="https://r.test/">
    <title>RDF X</title>
    <link>https://r.test/</link>
  </channel>
  <item rdf:about="https://r.test/1">
    <title>One</title>
    <link>https://r.test/1</link>
    <description>d</description>
    <dc:date>2024-02-03T00:00:00Z</dc:date>
  </item>
</rdf:RDF>`

func TestParseRSS(t *testing.T) {
	f, err := parseFeed([]byte(sampleRSS), "https://x.test/rss")
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if f.Kind != KindRSS {
		t.Errorf("kind = %s, want RSS", f.Kind)
	}
	if f.Name != "X & Friends" {
		t.Errorf("name = %q", f.Name)
	}
	if f.Link != "https://x.test/" {
		t.Errorf("link = %q", f.Link)
	}
	if f.Image != "https://x.test/logo.png" {
		t.Errorf("image = %q", f.Image)
	}
	if len(f.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(f.Items))
	}

	first := f.Items[0]
	if first.GUID != "g1" || first.Title != "First" || first.Content != "hello" {
		t.Errorf("first item = %+v", first)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !first.PubDate.Equal(want) {
		t.Errorf("first pub date = %v, want %v", first.PubDate, want)
	}
	if first.ImageLink != "https://x.test/1.jpg" {
		t.Errorf("first image link = %q", first.ImageLink)
	}

	// Items without a GUID fall back to their link.
	if f.Items[1].GUID != "https://x.test/2" {
		t.Errorf("second item GUID = %q, want its link", f.Items[1].GUID)
	}
}

func TestParseAtom(t *testing.T) {
	f, err := parseFeed([]byte(sampleAtom), "https://x.test/atom")
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if f.Kind != KindAtom {
		t.Errorf("kind = %s, want ATOM", f.Kind)
	}
	if f.Name != "Atom X" || f.Link != "https://x.test/" || f.Image != "https://x.test/atom.png" {
		t.Errorf("feed header = %+v", f)
	}
	if len(f.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(f.Items))
	}
	it := f.Items[0]
	if it.GUID != "tag:x.test,2024:1" || it.Title != "Entry" || it.Content != "sum" {
		t.Errorf("item = %+v", it)
	}
	if want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC); !it.PubDate.Equal(want) {
		t.Errorf("pub date = %v, want %v", it.PubDate, want)
	}
}

func TestParseRDF(t *testing.T) {
	f, err := parseFeed([]byte(sampleRDF), "https://r.test/rdf")
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if f.Kind != KindRDF {
		t.Errorf("kind = %s, want RDF", f.Kind)
	}
	if f.Name != "RDF X" {
		t.Errorf("name = %q", f.Name)
	}
	if len(f.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(f.Items))
	}
	if f.Items[0].GUID != "https://r.test/1" {
		t.Errorf("item GUID = %q", f.Items[0].GUID)
	}
}

func TestParseGarbage(t *testing.T) {
	if _, err := parseFeed([]byte("<html><body>not a feed</body></html>"), "https://x.test/"); err == nil {
		t.Fatal("parseFeed accepted an HTML page")
	}
}

func TestParseFeedLinkFallback(t *testing.T) {
	const noLink = `<?xml version="1.0"?><rss version="2.0"><channel>
<title>T</title><description>d</description>
<item><guid>g</guid><title>i</title><description>c</description></item>
</channel></rss>`
	f, err := parseFeed([]byte(noLink), "https://fallback.test/rss")
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if f.Link != "https://fallback.test/rss" {
		t.Errorf("link = %q, want the fetch URL", f.Link)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"Mon, 01 Jan 2024 10:00:00 GMT", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-01-01T10:00:00Z", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseDate(tt.in)
		if err != nil {
			t.Errorf("parseDate(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := parseDate("not a date"); err == nil {
		t.Error("parseDate accepted garbage")
	}
	if _, err := parseDate("", "  "); err == nil {
		t.Error("parseDate accepted empty input")
	}
}
