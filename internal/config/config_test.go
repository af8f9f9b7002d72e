package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s != DefaultSettings() {
		t.Errorf("Load() = %+v, want defaults", s)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    func(Settings) bool
		wantErr bool
	}{
		{
			name:    "partial file keeps defaults",
			content: "requestTimeout: 5s\n",
			want: func(s Settings) bool {
				return s.RequestTimeout == 5*time.Second && s.Storage == StorageSQLite && s.Project == "default"
			},
		},
		{
			name:    "all keys",
			content: "requestTimeout: 1m\nautosaveDelay: 100ms\nstorage: json\nlisten: ':9000'\ndebug: true\nproject: work\n",
			want: func(s Settings) bool {
				return s.RequestTimeout == time.Minute &&
					s.AutosaveDelay == 100*time.Millisecond &&
					s.Storage == StorageJSON &&
					s.Listen == ":9000" &&
					s.Debug &&
					s.Project == "work"
			},
		},
		{name: "unknown storage", content: "storage: redis\n", wantErr: true},
		{name: "zero timeout", content: "requestTimeout: 0s\n", wantErr: true},
		{name: "malformed yaml", content: "storage: [\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			got, err := Load(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !tt.want(got) {
				t.Errorf("Load() = %+v", got)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	in := DefaultSettings()
	in.Debug = true
	in.Listen = "localhost:1234"

	if err := Save(path, in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestInitialize_HomeOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "home")
	t.Setenv(HomeEnv, dir)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if ConfigDir != dir {
		t.Errorf("ConfigDir = %q, want %q", ConfigDir, dir)
	}
	if DatabasePath != filepath.Join(dir, "inflight.db") {
		t.Errorf("DatabasePath = %q", DatabasePath)
	}
	if _, err := os.Stat(DocumentsDir); err != nil {
		t.Errorf("documents dir not created: %v", err)
	}
}
