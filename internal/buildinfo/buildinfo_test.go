package buildinfo

import (
	"strings"
	"testing"
)

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "HelloClaw/"+Version) {
		t.Errorf("UserAgent() = %q, want HelloClaw/%s prefix", ua, Version)
	}
}

func TestInfoKeys(t *testing.T) {
	info := Info()
	for _, key := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch", "uptime"} {
		if _, ok := info[key]; !ok {
			t.Errorf("Info() missing key %q", key)
		}
	}
}
