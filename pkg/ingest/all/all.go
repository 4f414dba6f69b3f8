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

// Package all builds an Aggregator from configuration, wiring up
// every provider enabled there.
package all // import "feedwire.org/pkg/ingest/all"

import (
	"errors"

	"go4.org/jsonconfig"

	"feedwire.org/pkg/chat"
	"feedwire.org/pkg/feed"
	"feedwire.org/pkg/ingest"
	"feedwire.org/pkg/ingest/telegram"
	"feedwire.org/pkg/ingest/web"
	"feedwire.org/pkg/storage"
)

// A ClientFactory constructs the chat collector client from its
// parsed configuration. The concrete client lives outside this
// repository; the embedding application supplies the factory.
type ClientFactory func(chat.Config) (chat.Client, error)

// Build constructs the Aggregator described by conf, of the form
//
//	{
//	  "http": {"enabled": true, "sleepSecs": 60, "scrapeSourceSecsInterval": 1800},
//	  "telegram": {"enabled": true, "apiId": ..., "apiHash": "...", ...}
//	}
//
// Omitted or disabled sections leave that provider out. newClient is
// only required when the telegram section is enabled; it receives that
// section's client knobs (api id/hash, phone, database directory, ...).
func Build(conf jsonconfig.Obj, store storage.Storage, newClient ClientFactory) (*ingest.Aggregator, error) {
	httpConf := conf.OptionalObject("http")
	tgConf := conf.OptionalObject("telegram")
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	var providers []ingest.SourceProvider

	if len(httpConf) != 0 {
		enabled := httpConf.OptionalBool("enabled", true)
		cfg := web.Config{
			SleepSecs:          httpConf.OptionalInt("sleepSecs", 0),
			ScrapeIntervalSecs: httpConf.OptionalInt("scrapeSourceSecsInterval", 0),
		}
		if err := httpConf.Validate(); err != nil {
			return nil, err
		}
		if enabled {
			providers = append(providers, web.New(cfg, store, feed.NewCollector(nil)))
		}
	}

	if len(tgConf) != 0 {
		enabled := tgConf.OptionalBool("enabled", true)
		chatCfg := chat.Config{
			APIID:                int64(tgConf.OptionalInt("apiId", 0)),
			APIHash:              tgConf.OptionalString("apiHash", ""),
			PhoneNumber:          tgConf.OptionalString("phone", ""),
			DatabaseDirectory:    tgConf.OptionalString("databaseDirectory", ""),
			LogVerbosityLevel:    tgConf.OptionalInt("logVerbosityLevel", 0),
			MaxDownloadQueueSize: tgConf.OptionalInt("maxDownloadQueueSize", 0),
		}
		cfg := telegram.Config{
			FilesDirectory:               tgConf.OptionalString("filesDirectory", ""),
			LogDownloadStateSecsInterval: tgConf.OptionalInt("logDownloadStateSecsInterval", 0),
		}
		if err := tgConf.Validate(); err != nil {
			return nil, err
		}
		if enabled {
			if newClient == nil {
				return nil, errors.New("ingest/all: telegram enabled but no chat client factory provided")
			}
			client, err := newClient(chatCfg)
			if err != nil {
				return nil, err
			}
			providers = append(providers, telegram.New(cfg, store, client))
		}
	}

	return ingest.New(store, providers...)
}
