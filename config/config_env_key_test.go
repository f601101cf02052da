package config

import "testing"

func TestCanonicalizeEnvKey_UsesExistingCamelCaseKeys(t *testing.T) {
	existing := map[string]any{
		"postgres": map[string]any{
			"sslMode": "disable",
			"master": map[string]any{
				"userName": "user",
			},
		},
		"registry": map[string]any{
			"adminToken":     "",
			"allowedOrigins": "",
		},
		"watcher": map[string]any{
			"pollPeriod": "15m",
		},
	}

	tests := []struct {
		envKey string
		want   string
	}{
		{envKey: "POSTGRES_SSLMODE", want: "postgres.sslMode"},
		{envKey: "POSTGRES_MASTER_USERNAME", want: "postgres.master.userName"},
		{envKey: "REGISTRY_ADMINTOKEN", want: "registry.adminToken"},
		{envKey: "REGISTRY_ALLOWEDORIGINS", want: "registry.allowedOrigins"},
		{envKey: "WATCHER_POLLPERIOD", want: "watcher.pollPeriod"},
		{envKey: "NEW_FEATURE_FLAG", want: "new.feature.flag"},
	}

	for _, tt := range tests {
		t.Run(tt.envKey, func(t *testing.T) {
			if got := canonicalizeEnvKey(tt.envKey, existing); got != tt.want {
				t.Fatalf("canonicalizeEnvKey(%q) = %q, want %q", tt.envKey, got, tt.want)
			}
		})
	}
}

func TestAllowedOriginList(t *testing.T) {
	cfg := &RegistryConfig{AllowedOrigins: "https://spot.utilitarian.io, http://localhost:8788 ,"}

	got := cfg.AllowedOriginList()
	want := []string{"https://spot.utilitarian.io", "http://localhost:8788"}
	if len(got) != len(want) {
		t.Fatalf("AllowedOriginList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("AllowedOriginList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
