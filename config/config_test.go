package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

type testConfig struct {
	StringField  string        `env:"TEST_STRING"`
	IntField     int           `env:"TEST_INT"`
	Int64Field   int64         `env:"TEST_INT64"`
	BoolField    bool          `env:"TEST_BOOL"`
	DefaultField string        `env:"TEST_DEFAULT,default:defaultValue"`
	Timeout      time.Duration `env:"TEST_TIMEOUT" envDefault:"10s"`
	Scopes       []string      `env:"TEST_SCOPES"`
	NoTagField   string
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"TEST_STRING", "TEST_INT", "TEST_INT64", "TEST_BOOL", "TEST_DEFAULT", "TEST_TIMEOUT", "TEST_SCOPES"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected testConfig
		wantErr  bool
	}{
		{
			name: "all fields set from environment",
			envVars: map[string]string{
				"TEST_STRING":  "hello",
				"TEST_INT":     "42",
				"TEST_INT64":   "9223372036854775807",
				"TEST_BOOL":    "true",
				"TEST_TIMEOUT": "3s",
				"TEST_SCOPES":  "openid, email,,profile",
			},
			expected: testConfig{
				StringField:  "hello",
				IntField:     42,
				Int64Field:   9223372036854775807,
				BoolField:    true,
				DefaultField: "defaultValue",
				Timeout:      3 * time.Second,
				Scopes:       []string{"openid", "email", "profile"},
			},
		},
		{
			name: "override default value",
			envVars: map[string]string{
				"TEST_DEFAULT": "overridden",
			},
			expected: testConfig{
				DefaultField: "overridden",
				Timeout:      10 * time.Second,
			},
		},
		{
			name:    "invalid int value",
			envVars: map[string]string{"TEST_INT": "not-a-number"},
			wantErr: true,
		},
		{
			name:    "invalid bool value",
			envVars: map[string]string{"TEST_BOOL": "not-a-bool"},
			wantErr: true,
		},
		{
			name:    "invalid duration value",
			envVars: map[string]string{"TEST_TIMEOUT": "soon"},
			wantErr: true,
		},
		{
			name:    "empty environment leaves zero values",
			envVars: map[string]string{},
			expected: testConfig{
				DefaultField: "defaultValue",
				Timeout:      10 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := &testConfig{}
			err := Load(cfg, WithPrefix(""), WithFiles())

			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(*cfg, tt.expected) {
				t.Errorf("Load() = %+v, want %+v", *cfg, tt.expected)
			}
		})
	}
}

func TestLoadPrefix(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("SIGNIN_TEST_STRING", "prefixed")
	t.Setenv("TEST_STRING", "bare")

	cfg := &testConfig{}
	if err := Load(cfg, WithFiles()); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.StringField != "prefixed" {
		t.Errorf("StringField = %v, want %v", cfg.StringField, "prefixed")
	}
}

func TestLoadRequired(t *testing.T) {
	type requiredConfig struct {
		BaseURL string `env:"REQ_BASE_URL,required"`
		Secret  string `env:"REQ_SECRET,required"`
		Port    string `env:"REQ_PORT,required,default:8080"`
	}
	t.Setenv("REQ_BASE_URL", "")
	t.Setenv("REQ_SECRET", "")
	t.Setenv("REQ_PORT", "")

	err := Load(&requiredConfig{}, WithPrefix("APP_"), WithFiles())
	var missing *MissingError
	if !errors.As(err, &missing) {
		t.Fatalf("Load() error = %v, want *MissingError", err)
	}
	want := []string{"APP_REQ_BASE_URL", "APP_REQ_SECRET"}
	if !reflect.DeepEqual(missing.Names, want) {
		t.Errorf("MissingError.Names = %v, want %v", missing.Names, want)
	}
}

func TestLoadNestedStructs(t *testing.T) {
	type inner struct {
		Driver string `env:"DB_DRIVER,default:sqlite"`
	}
	type outer struct {
		Name     string `env:"NAME"`
		Database inner
	}
	t.Setenv("X_NAME", "signin")
	t.Setenv("X_DB_DRIVER", "postgres")

	var cfg outer
	if err := Load(&cfg, WithPrefix("X_"), WithFiles()); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Name != "signin" || cfg.Database.Driver != "postgres" {
		t.Errorf("Load() = %+v", cfg)
	}
}

func TestLoadDotenvFile(t *testing.T) {
	clearTestEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TEST_STRING=from-file\nTEST_INT=7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_INT", "9")
	t.Cleanup(func() { os.Unsetenv("TEST_STRING") })

	cfg := &testConfig{}
	if err := Load(cfg, WithPrefix(""), WithFiles(path, filepath.Join(t.TempDir(), "missing.env"))); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.StringField != "from-file" {
		t.Errorf("StringField = %v, want %v", cfg.StringField, "from-file")
	}
	if cfg.IntField != 9 {
		t.Errorf("IntField = %v, want environment value 9", cfg.IntField)
	}
}

func TestLoadRejectsNonPointer(t *testing.T) {
	if err := Load(testConfig{}); !errors.Is(err, ErrNotStructPointer) {
		t.Errorf("Load() error = %v, want ErrNotStructPointer", err)
	}
}

func TestComplexEnvTag(t *testing.T) {
	type complexConfig struct {
		Field1 string `env:"COMPLEX_FIELD1,default:value1"`
		Field2 string `env:"COMPLEX_FIELD2,default:value2,other:ignored"`
		Field3 string `env:"COMPLEX_FIELD3,something,default:value3"`
	}

	cfg := &complexConfig{}
	if err := Load(cfg, WithPrefix(""), WithFiles()); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Field1 != "value1" || cfg.Field2 != "value2" || cfg.Field3 != "value3" {
		t.Errorf("Load() = %+v", cfg)
	}
}

func TestUnsupportedFieldType(t *testing.T) {
	type unsupportedConfig struct {
		FloatField float64 `env:"TEST_FLOAT"`
	}
	t.Setenv("TEST_FLOAT", "3.14")

	cfg := &unsupportedConfig{}
	if err := Load(cfg, WithPrefix(""), WithFiles()); err != nil {
		t.Errorf("Load() should not error for unsupported types, got: %v", err)
	}
	if cfg.FloatField != 0 {
		t.Errorf("FloatField = %v, want %v", cfg.FloatField, 0)
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		name, value, want string
	}{
		{"SIGNIN_APP_SECRET", "abc", "****"},
		{"SIGNIN_GOOGLE_CLIENT_SECRET", "abc", "****"},
		{"SIGNIN_BASE_URL", "http://localhost", "http://localhost"},
		{"SIGNIN_SESSION_SIGNING_KEY", "", ""},
	}
	for _, tt := range tests {
		if got := mask(tt.name, tt.value); got != tt.want {
			t.Errorf("mask(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
