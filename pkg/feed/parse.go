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
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"feedwire.org/pkg/feed/atom"
	"feedwire.org/pkg/feed/rdf"
	"feedwire.org/pkg/feed/rss"
)

// parseFeed parses body as Atom, then RSS, then RDF, normalizing the
// first format that decodes.
func parseFeed(body []byte, feedURL string) (*Feed, error) {
	f, atomErr := parseAtom(body)
	if f == nil {
		var rssErr error
		f, rssErr = parseRSS(body)
		if f == nil {
			var rdfErr error
			f, rdfErr = parseRDF(body)
			if f == nil {
				return nil, fmt.Errorf("feed: could not parse %s (atom: %v; rss: %v; rdf: %v)",
					feedURL, atomErr, rssErr, rdfErr)
			}
		}
	}
	return parseFix(f, feedURL)
}

func xmlDecoder(body []byte) *xml.Decoder {
	d := xml.NewDecoder(bytes.NewReader(body))
	d.CharsetReader = charset.NewReaderLabel
	return d
}

func parseAtom(body []byte) (*Feed, error) {
	var a atom.Feed
	if err := xmlDecoder(body).Decode(&a); err != nil {
		return nil, err
	}
	f := &Feed{
		Kind:  KindAtom,
		Name:  a.Title,
		Image: a.Logo,
	}
	fb, err := url.Parse(a.XMLBase)
	if err != nil {
		fb, _ = url.Parse("")
	}
	if len(a.Link) > 0 {
		f.Link = findBestAtomLink(a.Link)
		if l, err := fb.Parse(f.Link); err == nil {
			f.Link = l.String()
		}
	}
	for _, e := range a.Entry {
		eb, err := fb.Parse(e.XMLBase)
		if err != nil {
			eb = fb
		}
		it := Item{
			GUID:  e.ID,
			Title: atomTitle(e.Title),
		}
		if t, err := parseDate(string(e.Published), string(e.Updated)); err == nil {
			it.PubDate = t
		}
		if e.Content != nil {
			if len(strings.TrimSpace(e.Content.Body)) != 0 {
				it.Content = e.Content.Body
			} else if len(e.Content.InnerXML) != 0 {
				it.Content = e.Content.InnerXML
			}
		} else if e.Summary != nil {
			it.Content = e.Summary.Body
		}
		if len(e.Link) > 0 {
			link := findBestAtomLink(e.Link)
			if l, err := eb.Parse(link); err == nil {
				link = l.String()
			}
			if it.GUID == "" {
				it.GUID = link
			}
		}
		f.Items = append(f.Items, it)
	}
	return f, nil
}

func parseRSS(body []byte) (*Feed, error) {
	var r rss.RSS
	d := xmlDecoder(body)
	d.DefaultSpace = "DefaultSpace"
	if err := d.Decode(&r); err != nil {
		return nil, err
	}
	f := &Feed{
		Kind: KindRSS,
		Name: r.Title,
		Link: r.BaseLink(),
	}
	if r.Image != nil {
		f.Image = r.Image.URL
	}
	for _, i := range r.Items {
		it := Item{
			Title: html.UnescapeString(i.Title),
		}
		if i.Content != "" {
			it.Content = i.Content
		} else {
			it.Content = i.Description
		}
		if i.Guid != nil {
			it.GUID = i.Guid.Guid
		}
		if it.GUID == "" {
			it.GUID = i.Link
		}
		if t, err := parseDate(i.PubDate, i.Date, i.Published); err == nil {
			it.PubDate = t
		}
		if i.Enclosure != nil && strings.HasPrefix(i.Enclosure.Type, "image/") {
			it.ImageLink = i.Enclosure.Url
		} else if i.Media != nil && strings.HasPrefix(i.Media.Type, "image/") {
			it.ImageLink = i.Media.URL
		}
		f.Items = append(f.Items, it)
	}
	return f, nil
}

func parseRDF(body []byte) (*Feed, error) {
	var rd rdf.RDF
	if err := xmlDecoder(body).Decode(&rd); err != nil {
		return nil, err
	}
	f := &Feed{Kind: KindRDF}
	if rd.Channel != nil {
		f.Name = rd.Channel.Title
		f.Link = rd.Channel.Link
	}
	for _, i := range rd.Item {
		it := Item{
			GUID:  i.About,
			Title: html.UnescapeString(i.Title),
		}
		if len(i.Description) > 0 {
			it.Content = html.UnescapeString(i.Description)
		} else if len(i.Content) > 0 {
			it.Content = html.UnescapeString(i.Content)
		}
		if it.GUID == "" {
			it.GUID = i.Link
		}
		if t, err := parseDate(i.Date); err == nil {
			it.PubDate = t
		}
		f.Items = append(f.Items, it)
	}
	return f, nil
}

func atomTitle(t *atom.Text) string {
	if t == nil {
		return ""
	}
	return html.UnescapeString(t.Body)
}

func findBestAtomLink(links []atom.Link) string {
	getScore := func(l atom.Link) int {
		switch {
		case l.Rel == "hub":
			return 0
		case l.Rel == "alternate" && l.Type == "text/html":
			return 5
		case l.Type == "text/html":
			return 4
		case l.Rel == "self":
			return 2
		case l.Rel == "":
			return 3
		default:
			return 1
		}
	}
	var bestlink string
	bestscore := -1
	for _, l := range links {
		if score := getScore(l); score > bestscore {
			bestlink = l.Href
			bestscore = score
		}
	}
	return bestlink
}

// parseFix normalizes a parsed feed: trims and resolves links against
// feedURL, unescapes the title, and drops items that end up with no
// usable GUID. The feed's Link is forced to feedURL when the document
// did not declare one.
func parseFix(f *Feed, feedURL string) (*Feed, error) {
	f.Link = strings.TrimSpace(f.Link)
	f.Name = html.UnescapeString(strings.TrimSpace(f.Name))
	if f.Link == "" {
		f.Link = feedURL
	}
	base, _ := url.Parse(feedURL)

	items := f.Items[:0]
	for _, it := range f.Items {
		it.GUID = strings.TrimSpace(it.GUID)
		if it.GUID == "" {
			if it.Title == "" {
				continue
			}
			it.GUID = it.Title
		}
		if base != nil && it.ImageLink != "" {
			if l, err := base.Parse(it.ImageLink); err == nil {
				it.ImageLink = l.String()
			}
		}
		items = append(items, it)
	}
	f.Items = items
	return f, nil
}

var dateFormats = []string{
	"01/02/2006",
	"02 Jan 2006 15:04:05 MST",
	"02 Jan 2006",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04Z",
	"2 Jan 2006 15:04:05 MST",
	"2 January 2006",
	"Jan 2, 2006",
	"Mon, 02 Jan 2006 15:04:05",
	"Mon, 02 Jan 2006 15:04:05 -0700",
	"Mon, 02 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04:05 UT",
	"Mon, 02 Jan 2006 15:04 MST",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05 UT",
	"Mon, 2 Jan 2006",
	"Monday, 2 January 2006 15:04:05 MST",
	time.ANSIC,
	time.RFC1123,
	time.RFC1123Z,
	time.RFC3339,
	time.RFC822,
	time.RFC822Z,
	time.RFC850,
	time.RubyDate,
	time.UnixDate,
}

// parseDate tries the candidate strings in order against the known
// feed date formats, returning the first parse that succeeds.
func parseDate(ds ...string) (t time.Time, err error) {
	for _, d := range ds {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		for _, f := range dateFormats {
			if t, err = time.Parse(f, d); err == nil {
				return
			}
		}
	}
	err = fmt.Errorf("could not parse dates: %v", strings.Join(ds, ", "))
	return
}
