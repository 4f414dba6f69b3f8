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

package ingest

import (
	"errors"
	"fmt"

	"feedwire.org/pkg/model"
)

var (
	// ErrSourceNotFound reports an update whose source is unknown
	// and could not be registered.
	ErrSourceNotFound = errors.New("ingest: source not found")

	// ErrSourceCreation reports a source row that came back from
	// storage in an inconsistent state (e.g. duplicated).
	ErrSourceCreation = errors.New("ingest: source creation failed")
)

// NotSupportedError reports content that the pipeline deliberately
// does not ingest (service messages, polls, invoices, ...).
type NotSupportedError struct {
	Kind string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("ingest: content kind %s not supported", e.Kind)
}

// KindConflictError reports an operation requested for a source kind
// that no configured provider serves.
type KindConflictError struct {
	Kind model.SourceKind
}

func (e *KindConflictError) Error() string {
	return fmt.Sprintf("ingest: no provider for source kind %s", e.Kind)
}
