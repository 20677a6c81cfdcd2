package transport

import "testing"

func TestConfigURLDefaults(t *testing.T) {
	cfg := Config{Host: "speakers.local"}
	want := "ws://speakers.local:8927/sendspin"
	if got := cfg.URL(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConfigURLTLSAndCustomPath(t *testing.T) {
	cfg := Config{Host: "speakers.local", Port: 9443, Path: "/stream", TLS: true}
	want := "wss://speakers.local:9443/stream"
	if got := cfg.URL(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteScheme(t *testing.T) {
	cases := map[string]string{
		"http://host/path":  "ws://host/path",
		"https://host/path": "wss://host/path",
		"ws://host/path":    "ws://host/path",
		"wss://host/path":   "wss://host/path",
	}
	for in, want := range cases {
		if got := RewriteScheme(in); got != want {
			t.Errorf("RewriteScheme(%q) = %q, want %q", in, got, want)
		}
	}
}
