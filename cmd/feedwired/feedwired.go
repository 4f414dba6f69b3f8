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

// The feedwired daemon ingests content from configured sources into
// the store. Without flags it runs the aggregation loop until killed;
// the -search and -sync flags run a single operation instead.
//
// The chat provider needs a protocol client factory the embedding
// application supplies; this binary has none, so a config enabling
// telegram fails at startup.
package main // import "feedwire.org/cmd/feedwired"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go4.org/jsonconfig"

	"feedwire.org/pkg/ingest/all"
	"feedwire.org/pkg/model"
	"feedwire.org/pkg/storage/sqlstorage"
)

var (
	flagConfig   = flag.String("configfile", "feedwire-config.json", "Path to the configuration file.")
	flagSearch   = flag.String("search", "", "Search sources matching this query, print them, and exit.")
	flagSync     = flag.Int("sync", 0, "Backfill history this many seconds deep and exit.")
	flagSyncKind = flag.String("synckind", "", `Restrict -sync to one source kind ("WEB" or "TELEGRAM").`)
)

func main() {
	flag.Parse()
	log.SetPrefix("feedwired: ")

	conf, err := jsonconfig.ReadFile(*flagConfig)
	if err != nil {
		log.Fatalf("reading config: %v", err)
	}
	dbConf := conf.RequiredObject("db")
	ingestConf := conf.RequiredObject("ingest")
	if err := conf.Validate(); err != nil {
		log.Fatalf("invalid config %s: %v", *flagConfig, err)
	}

	store, err := sqlstorage.FromConfig(dbConf)
	if err != nil {
		log.Fatalf("opening storage: %v", err)
	}
	defer store.Close()

	agg, err := all.Build(ingestConf, store, nil)
	if err != nil {
		log.Fatalf("building aggregator: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *flagSearch != "":
		srcs, err := agg.SearchSource(ctx, *flagSearch)
		if err != nil {
			log.Fatalf("searching sources: %v", err)
		}
		for _, s := range srcs {
			fmt.Printf("%d\t%s\t%s\t%s\n", s.ID, s.Kind, s.Origin, s.Name)
		}
	case *flagSync > 0:
		var kind *model.SourceKind
		if *flagSyncKind != "" {
			k, err := model.ParseSourceKind(*flagSyncKind)
			if err != nil {
				log.Fatal(err)
			}
			kind = &k
		}
		if err := agg.Synchronize(ctx, *flagSync, kind); err != nil {
			log.Fatalf("synchronize: %v", err)
		}
	default:
		if err := agg.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("aggregator: %v", err)
		}
	}
}
