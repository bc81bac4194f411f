package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/nobletooth/offline/pkg/cache"
	_ "github.com/nobletooth/offline/pkg/port"
	_ "github.com/nobletooth/offline/pkg/storage"
	"github.com/nobletooth/offline/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// restoreFlags reverts the given flags once the test is done.
func restoreFlags(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		flagHolder := flag.Lookup(name)
		require.NotNilf(t, flagHolder, "Flag %s not found", name)
		utils.SetTestFlag(t, name, flagHolder.Value.String())
	}
}

func TestParseConfig(t *testing.T) {
	for _, testCase := range []struct {
		name     string
		config   string
		expected map[string]string
	}{
		{name: "empty", config: "", expected: map[string]string{}},
		{
			name:   "nested_fields",
			config: `logging { log_level: "debug" } cache { cache_warnings: true } server { address: ":7000" }`,
			expected: map[string]string{
				"log_level": "debug", "cache_warnings": "true", "address": ":7000",
			},
		},
		{
			name: "storage",
			config: `storage {
				store_quota_bytes: 1024
				snapshot_path: "/tmp/offline.pb"
				snapshot_interval { seconds: 90 nanos: 500000000 }
				enable_lookup_filter: false
				lookup_filter_capacity: 500
				lookup_filter_fp_rate: 0.05
			}`,
			expected: map[string]string{
				"store_quota_bytes":      "1024",
				"snapshot_path":          "/tmp/offline.pb",
				"snapshot_interval":      "1m30.5s",
				"enable_lookup_filter":   "false",
				"lookup_filter_capacity": "500",
				"lookup_filter_fp_rate":  "0.05",
			},
		},
		{name: "explicit_zero_value", config: `storage { store_quota_bytes: 0 }`,
			expected: map[string]string{"store_quota_bytes": "0"}},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			flags, err := parseConfig([]byte(testCase.config))
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, flags)
		})
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	for _, testCase := range []struct {
		name   string
		config string
	}{
		{name: "unknown_field", config: `logging { verbosity: 3 }`},
		{name: "wrong_type", config: `storage { store_quota_bytes: "big" }`},
		{name: "leaf_at_root", config: `log_level: "debug"`},
		{name: "invalid_duration", config: `storage { snapshot_interval { seconds: 1 nanos: -1 } }`},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := parseConfig([]byte(testCase.config))
			assert.Error(t, err)
		})
	}
}

func TestInitFlags_AppliesConfigFile(t *testing.T) {
	restoreFlags(t, "log_level", "cache_warnings", "snapshot_interval")
	configPath := filepath.Join(t.TempDir(), "config.txtpb")
	require.NoError(t, os.WriteFile(configPath, []byte(`
		logging { log_level: "warn" }
		cache { cache_warnings: true }
		storage { snapshot_interval { seconds: 30 } }
	`), 0o644))
	utils.SetTestFlag(t, "config_file", configPath)

	InitFlags()
	assert.Equal(t, "warn", flag.Lookup("log_level").Value.String())
	assert.Equal(t, "true", flag.Lookup("cache_warnings").Value.String())
	assert.Equal(t, "30s", flag.Lookup("snapshot_interval").Value.String())
}

func TestInitFlags_MissingConfigFile(t *testing.T) {
	restoreFlags(t, "log_level")
	utils.SetTestFlag(t, "config_file", filepath.Join(t.TempDir(), "missing.txtpb"))
	utils.SetTestFlag(t, "log_level", "error")
	InitFlags()
	assert.Equal(t, "error", flag.Lookup("log_level").Value.String())
}

func TestGetDefinedFlags(t *testing.T) {
	definedFlags, err := getDefinedFlags(configDescriptor)
	require.NoError(t, err)
	for _, name := range []string{"log_level", "log_handler_type", "store_quota_bytes", "snapshot_path",
		"snapshot_interval", "enable_lookup_filter", "lookup_filter_capacity", "lookup_filter_fp_rate",
		"cache_warnings", "address"} {
		assert.Containsf(t, definedFlags, name, "Expected %s in the config schema", name)
	}
	assert.Len(t, definedFlags, 10)
}

func TestCollectUnregisteredFlags(t *testing.T) {
	assert.Empty(t, CollectUnregisteredFlags())

	if flag.Lookup("config_test_only_flag") == nil {
		flag.Bool("config_test_only_flag", false, "Registered to check unregistered flags are reported.")
	}
	errs := CollectUnregisteredFlags()
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "config_test_only_flag")
}
