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

package all

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go4.org/jsonconfig"

	"feedwire.org/pkg/chat"
	"feedwire.org/pkg/ingest"
	"feedwire.org/pkg/model"
	"feedwire.org/pkg/storage/sqlstorage"
)

func newTestStore(t *testing.T) *sqlstorage.DB {
	t.Helper()
	store, err := sqlstorage.NewStorage(filepath.Join(t.TempDir(), "feedwire.db"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBuildWebOnly(t *testing.T) {
	agg, err := Build(jsonconfig.Obj{
		"http": map[string]interface{}{
			"enabled":                  true,
			"sleepSecs":                float64(30),
			"scrapeSourceSecsInterval": float64(600),
		},
	}, newTestStore(t), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// The telegram provider was not configured, so a targeted
	// synchronize must be refused.
	kind := model.KindTelegram
	err = agg.Synchronize(context.Background(), 3600, &kind)
	var kce *ingest.KindConflictError
	if !errors.As(err, &kce) {
		t.Fatalf("Synchronize error = %v, want *KindConflictError", err)
	}

	// The web provider is there and synchronizes as a no-op.
	kind = model.KindWeb
	if err := agg.Synchronize(context.Background(), 3600, &kind); err != nil {
		t.Errorf("Synchronize(WEB): %v", err)
	}
}

func TestBuildDisabledSection(t *testing.T) {
	agg, err := Build(jsonconfig.Obj{
		"http": map[string]interface{}{"enabled": false},
	}, newTestStore(t), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	kind := model.KindWeb
	err = agg.Synchronize(context.Background(), 10, &kind)
	var kce *ingest.KindConflictError
	if !errors.As(err, &kce) {
		t.Errorf("disabled section still built a provider (err=%v)", err)
	}
}

func TestBuildTelegramNeedsClient(t *testing.T) {
	_, err := Build(jsonconfig.Obj{
		"telegram": map[string]interface{}{
			"enabled": true,
			"apiId":   float64(1),
			"apiHash": "h",
		},
	}, newTestStore(t), nil)
	if err == nil {
		t.Fatal("Build accepted an enabled telegram section without a client")
	}
}

// The client factory must see the telegram section's parsed knobs,
// and its failure must fail the build.
func TestBuildTelegramClientFactoryConfig(t *testing.T) {
	var got chat.Config
	factoryErr := errors.New("no collector in tests")
	_, err := Build(jsonconfig.Obj{
		"telegram": map[string]interface{}{
			"apiId":             float64(42),
			"apiHash":           "h",
			"phone":             "+15550100",
			"databaseDirectory": "/tmp/tdlib",
			"filesDirectory":    "/tmp/files",
		},
	}, newTestStore(t), func(cfg chat.Config) (chat.Client, error) {
		got = cfg
		return nil, factoryErr
	})
	if !errors.Is(err, factoryErr) {
		t.Fatalf("Build error = %v, want the factory's", err)
	}
	if got.APIID != 42 || got.APIHash != "h" || got.PhoneNumber != "+15550100" || got.DatabaseDirectory != "/tmp/tdlib" {
		t.Errorf("factory received %+v", got)
	}
}

func TestBuildRejectsUnknownKeys(t *testing.T) {
	_, err := Build(jsonconfig.Obj{
		"http":  map[string]interface{}{"enabled": true},
		"bogus": "key",
	}, newTestStore(t), nil)
	if err == nil {
		t.Fatal("Build accepted a config with unknown keys")
	}
}
