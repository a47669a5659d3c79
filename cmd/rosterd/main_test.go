package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))

	directory := filepath.Join(dir, "directory.toml")
	if err := os.WriteFile(directory, []byte(`
[[shared]]
name = "Staff"
members = ["alice@example.com", "dave@example.com"]
`), 0600); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "conf", "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	cfg := `
[general]
domain = "example.com"
data_dir = "` + filepath.Join(dir, "data") + `"

[logging]
level = "error"

[dynamic]
directory = "` + directory + `"

[ui]
theme = "plain"
`
	if err := os.WriteFile(path, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReplayAndDump(t *testing.T) {
	cfg := writeConfig(t)

	if _, err := run(t, "", "--config", cfg, "account", "add", "alice@example.com", "--password", "secret"); err != nil {
		t.Fatalf("account add: %v", err)
	}
	out, err := run(t, "", "--config", cfg, "account", "list")
	if err != nil {
		t.Fatalf("account list: %v", err)
	}
	if strings.TrimSpace(out) != "alice@example.com" {
		t.Fatalf("account list = %q", out)
	}

	stream := `<stream>
<presence><show>away</show></presence>
<iq type='set' id='s1'><query xmlns='jabber:iq:roster'><item jid='bob@example.com' name='Bob'><group>Friends</group></item></query></iq>
<iq type='get' id='g1'><query xmlns='jabber:iq:roster'/></iq>
<iq type='set' id='a1'><query xmlns='jabber:iq:roster'><item jid='carol@example.com' type='anon'/></query></iq>
</stream>`
	out, err = run(t, stream, "--config", cfg, "replay", "--user", "alice", "--password", "secret", "--resource", "cli")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	for _, want := range []string{
		`id="s1" type="result"`,
		`id="g1" type="result"`,
		`id="dr-1" type="set"`,
		`dave@example.com`,
		`<show>away</show>`,
		`to="carol@example.com"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("replay output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "", "--config", cfg, "dump", "--owner", "alice@example.com")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	for _, want := range []string{"bob@example.com", "Friends", "carol@example.com", "both", "2 items"} {
		if !strings.Contains(out, want) {
			t.Fatalf("dump output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "", "--config", cfg, "dump", "--all")
	if err != nil {
		t.Fatalf("dump --all: %v", err)
	}
	if !strings.Contains(out, "alice@example.com") {
		t.Fatalf("dump --all output:\n%s", out)
	}
}

func TestReplayAnswersMalformedItems(t *testing.T) {
	cfg := writeConfig(t)
	if _, err := run(t, "", "--config", cfg, "account", "add", "alice@example.com", "-p", "secret"); err != nil {
		t.Fatal(err)
	}

	stream := `<stream>
<iq type='set' id='m1'><query xmlns='jabber:iq:roster'><item name='nobody'/></query></iq>
<iq type='get' id='m2' from='@'><query xmlns='jabber:iq:roster'/></iq>
<iq type='get' id='g1'><query xmlns='jabber:iq:roster'/></iq>
</stream>`
	out, err := run(t, stream, "--config", cfg, "replay", "-u", "alice", "-p", "secret")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	for _, want := range []string{`id="m1" type="error"`, `bad-request`, `id="g1" type="result"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("replay output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, `id="m2"`) {
		t.Fatalf("stanza with invalid sender was answered:\n%s", out)
	}
}

func TestReplayRejectsBadPassword(t *testing.T) {
	cfg := writeConfig(t)
	if _, err := run(t, "", "--config", cfg, "account", "add", "alice@example.com", "-p", "secret"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "", "--config", cfg, "replay", "-u", "alice", "-p", "nope"); err == nil {
		t.Fatal("expected login failure")
	}
}

func TestFeatures(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "", "--config", cfg, "features")
	if err != nil {
		t.Fatalf("features: %v", err)
	}
	for _, want := range []string{"jabber:iq:roster", "jabber:iq:roster-dynamic", "urn:xmpp:features:rosterver"} {
		if !strings.Contains(out, want) {
			t.Fatalf("features output missing %q:\n%s", want, out)
		}
	}
}
