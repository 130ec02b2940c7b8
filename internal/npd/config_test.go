package npd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mikey-austin/np_relay/pkg/np"
)

func TestLoadConfig(t *testing.T) {
	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, "extra.yaml"), []byte(""+
		"stations:\n"+
		"  - id: rock\n"+
		"    base_url: http://rock.example:8010\n"+
		"    protocol: shoutcast2\n"), 0o600); err != nil {
		t.Fatalf("write stations: %v", err)
	}
	path := filepath.Join(tmp, "npd.toml")
	data := []byte("" +
		"stations_file = \"extra.yaml\"\n" +
		"\n" +
		"[server]\n" +
		"environment = \"production\"\n" +
		"\n" +
		"[relay]\n" +
		"enabled = true\n" +
		"interval_ms = 30000\n" +
		"\n" +
		"[upstream]\n" +
		"enabled = true\n" +
		"base_url = \"https://central.example\"\n" +
		"\n" +
		"[modules.embedded_mqtt]\n" +
		"enabled = true\n" +
		"allow_anonymous = true\n" +
		"\n" +
		"[aliases]\n" +
		"smooth = \"jazz\"\n" +
		"\n" +
		"[[stations]]\n" +
		"id = \"jazz\"\n" +
		"base_url = \"http://jazz.example:8000\"\n" +
		"protocol = \"icecast\"\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AZURACAST_BASE_URL", "")
	t.Setenv("AZURACAST_API_KEY", "from-env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Relay.Enabled || cfg.Relay.IntervalMS != 30000 {
		t.Fatalf("expected relay settings, got %+v", cfg.Relay)
	}
	if cfg.Upstream.BaseURL != "https://central.example" || cfg.Upstream.APIKey != "from-env" {
		t.Fatalf("expected env override for api key only, got %+v", cfg.Upstream)
	}
	if !cfg.Modules.EmbeddedMQTT.Enabled || cfg.MQTT.TopicBase != np.BaseTopic {
		t.Fatalf("unexpected mqtt settings %+v %+v", cfg.Modules.EmbeddedMQTT, cfg.MQTT)
	}
	if cfg.Aliases["smooth"] != "jazz" {
		t.Fatalf("expected alias")
	}
	if len(cfg.Stations) != 2 || cfg.Stations[0].ID != "jazz" || cfg.Stations[1].ProtocolHint != np.Shoutcast2 {
		t.Fatalf("unexpected stations %+v", cfg.Stations)
	}
}

func TestLoadConfigRejectsDuplicateStations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "npd.toml")
	data := "[[stations]]\nid = \"a\"\nbase_url = \"http://a\"\n[[stations]]\nid = \"a\"\nbase_url = \"http://b\"\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected duplicate station error")
	}
}

func TestLoadOptionalConfigMissing(t *testing.T) {
	t.Setenv("AZURACAST_BASE_URL", "https://env.example")
	cfg, err := LoadOptionalConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Upstream.BaseURL != "https://env.example" || cfg.Aliases == nil {
		t.Fatalf("expected defaults with env applied, got %+v", cfg)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected strict load to fail")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("default config path: %v", err)
	}
	if path != "/tmp/xdg/np/npd.toml" {
		t.Fatalf("unexpected path %s", path)
	}
}
