package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
)

// benchTOML is a complete orbyt.toml fixture that passes Validate with no
// errors, used to benchmark the load-validate-resolve pipeline.
const benchTOML = `
[engine]
step_timeout = "2m"
workflow_timeout = "30m"
max_concurrency = 4

[logging]
level = "info"
format = "text"

[run.env]
REGION = "eu-west-1"

[estimates.core]
min = "1ms"
avg = "5ms"
max = "50ms"

[estimates.default]
min = "50ms"
avg = "500ms"
max = "5s"
`

// writeBenchConfig writes benchTOML to a temp file and returns the path.
func writeBenchConfig(b *testing.B) string {
	b.Helper()
	path := filepath.Join(b.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte(benchTOML), 0o600); err != nil {
		b.Fatal(err)
	}
	return path
}

func BenchmarkLoadFromFile(b *testing.B) {
	path := writeBenchConfig(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := LoadFromFile(path); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkValidate(b *testing.B) {
	var cfg Config
	md, err := toml.Decode(benchTOML, &cfg)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		vr := Validate(&cfg, &md)
		if vr.HasErrors() {
			b.Fatal("unexpected validation errors")
		}
	}
}

func BenchmarkResolve(b *testing.B) {
	defaults := NewDefaults()
	var file Config
	if _, err := toml.Decode(benchTOML, &file); err != nil {
		b.Fatal(err)
	}
	env := func(string) (string, bool) { return "", false }
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Resolve(defaults, &file, env, nil)
	}
}
