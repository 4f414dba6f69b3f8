/*
Copyright 2022 The Feedwire Authors

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

// Package httputil provides HTTP test helpers for the feed collector.
package httputil // import "feedwire.org/internal/httputil"

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// NewFakeTransport takes a map of URL to function generating a response
// and returns an http.RoundTripper that does HTTP requests out of that.
func NewFakeTransport(urls map[string]func() *http.Response) http.RoundTripper {
	return fakeTransport(urls)
}

type fakeTransport map[string]func() *http.Response

func (m fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	urls := req.URL.String()
	fn, ok := m[urls]
	if !ok {
		return nil, fmt.Errorf("unexpected FakeTransport URL requested: %s", urls)
	}
	return fn(), nil
}

// StringResponder returns an HTTP response generator serving body with
// a 200 status.
func StringResponder(body string) func() *http.Response {
	return func() *http.Response {
		return &http.Response{
			StatusCode: 200,
			Status:     "200 OK",
			Body:       io.NopCloser(strings.NewReader(body)),
		}
	}
}

// NotFoundResponder returns an HTTP response generator serving a 404.
func NotFoundResponder() func() *http.Response {
	return func() *http.Response {
		return &http.Response{
			StatusCode: 404,
			Status:     "404 Not Found",
			Body:       io.NopCloser(strings.NewReader("not found")),
		}
	}
}
