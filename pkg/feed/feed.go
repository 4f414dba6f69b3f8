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

// Package feed implements the HTTP feed collector: fetching and
// parsing RSS, Atom, and RDF feeds, autodiscovering feed URLs from
// HTML pages, and a crawl loop draining scrape requests from a
// channel.
package feed // import "feedwire.org/pkg/feed"

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"go4.org/syncutil"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Kind is the wire format a feed was parsed from.
type Kind string

const (
	KindRSS  Kind = "RSS"
	KindAtom Kind = "ATOM"
	KindRDF  Kind = "RDF"
)

// A Feed is one parsed feed document.
type Feed struct {
	Link  string // the feed's own URL
	Kind  Kind
	Name  string
	Image string // optional channel image/logo URL
	Items []Item
}

// An Item is one entry of a feed. GUID is never empty after parsing:
// items without an upstream id fall back to their link, then title.
type Item struct {
	Title     string
	Content   string
	PubDate   time.Time
	GUID      string
	ImageLink string // optional
}

// A Request asks the collector to crawl one feed origin. A zero Kind
// means the format is not known in advance.
type Request struct {
	Kind   Kind
	Origin string
}

// A Result is the outcome of crawling one origin. Exactly one of Feed
// and Err is set.
type Result struct {
	Origin string
	Feed   *Feed
	Err    error
}

// A ResultHandler consumes crawl results. Process may block; the
// collector calls it from multiple goroutines.
type ResultHandler interface {
	Process(ctx context.Context, res Result)
}

// RequestError reports a failure to retrieve a URL (network error or
// non-200 status). Discovery treats it as "nothing there", not as a
// fault.
type RequestError struct {
	URL string
	Err error
}

func (e *RequestError) Error() string { return fmt.Sprintf("feed: fetching %s: %v", e.URL, e.Err) }

func (e *RequestError) Unwrap() error { return e.Err }

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 8 << 20

// A Collector fetches and parses feeds. The zero value is not usable;
// call NewCollector.
type Collector struct {
	client *http.Client
	gate   *syncutil.Gate // bounds concurrent fetches in Run
}

// NewCollector returns a Collector fetching through client, or
// http.DefaultClient if client is nil.
func NewCollector(client *http.Client) *Collector {
	if client == nil {
		client = http.DefaultClient
	}
	return &Collector{
		client: client,
		gate:   syncutil.NewGate(5),
	}
}

func (c *Collector) get(ctx context.Context, urlstr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", urlstr, nil)
	if err != nil {
		return nil, &RequestError{URL: urlstr, Err: err}
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, &RequestError{URL: urlstr, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, &RequestError{URL: urlstr, Err: fmt.Errorf("status %s", res.Status)}
	}
	return io.ReadAll(io.LimitReader(res.Body, maxBodySize))
}

// Fetch retrieves and parses the feed at urlstr.
func (c *Collector) Fetch(ctx context.Context, urlstr string) (*Feed, error) {
	body, err := c.get(ctx, urlstr)
	if err != nil {
		return nil, err
	}
	return parseFeed(body, urlstr)
}

// DetectFeeds finds the feeds reachable from urlstr: either urlstr
// itself parses as a feed, or it is an HTML page whose alternate links
// are fetched and parsed. Unretrievable or unparsable candidates are
// skipped; the result may be empty.
func (c *Collector) DetectFeeds(ctx context.Context, urlstr string) ([]*Feed, error) {
	body, err := c.get(ctx, urlstr)
	if err != nil {
		return nil, err
	}
	if f, err := parseFeed(body, urlstr); err == nil {
		return []*Feed{f}, nil
	}
	base, err := url.Parse(urlstr)
	if err != nil {
		return nil, err
	}
	var feeds []*Feed
	for _, href := range discoverFeedLinks(body) {
		u, err := base.Parse(href)
		if err != nil {
			continue
		}
		f, err := c.Fetch(ctx, u.String())
		if err != nil {
			log.Printf("feed: skipping discovered %s: %v", u, err)
			continue
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

// discoverFeedLinks returns the hrefs of RSS/Atom alternate links in
// an HTML document, in document order.
func discoverFeedLinks(body []byte) []string {
	var hrefs []string
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		if z.Next() == html.ErrorToken {
			return hrefs
		}
		t := z.Token()
		if t.DataAtom != atom.Link {
			continue
		}
		if t.Type != html.StartTagToken && t.Type != html.SelfClosingTagToken {
			continue
		}
		attrs := make(map[string]string)
		for _, a := range t.Attr {
			attrs[a.Key] = a.Val
		}
		if attrs["rel"] == "alternate" && attrs["href"] != "" &&
			(attrs["type"] == "application/rss+xml" || attrs["type"] == "application/atom+xml") {
			hrefs = append(hrefs, attrs["href"])
		}
	}
}

// Run drains batches of scrape requests from sources until the channel
// closes or ctx is done, crawling each origin and handing the outcome
// to h. Fetches within and across batches run concurrently, gated.
func (c *Collector) Run(ctx context.Context, sources <-chan []Request, h ResultHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-sources:
			if !ok {
				return
			}
			for _, req := range batch {
				req := req
				c.gate.Start()
				go func() {
					defer c.gate.Done()
					f, err := c.Fetch(ctx, req.Origin)
					h.Process(ctx, Result{Origin: req.Origin, Feed: f, Err: err})
				}()
			}
		}
	}
}
