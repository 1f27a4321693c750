package server

import (
	"testing"
	"time"
)

func TestDefaultServerConfig(t *testing.T) {
	c := DefaultServerConfig()
	if c.Address == "" {
		t.Error("default address is empty")
	}
	if c.WSPath == "" {
		t.Error("default ws path is empty")
	}
	if c.ConnConfig == nil {
		t.Fatal("default conn config is nil")
	}
	if c.ConnConfig.HandshakeTimeout != 10*time.Second {
		t.Errorf("handshake timeout = %v, want 10s", c.ConnConfig.HandshakeTimeout)
	}
}

func TestFillDefaultsPreservesSetFields(t *testing.T) {
	c := &ServerConfig{
		Address: ":9999",
		ConnConfig: &ConnConfig{
			SendQueueSize: 8,
		},
	}
	c.fillDefaults()

	if c.Address != ":9999" {
		t.Errorf("address = %q, want :9999", c.Address)
	}
	if c.ConnConfig.SendQueueSize != 8 {
		t.Errorf("send queue size = %d, want 8", c.ConnConfig.SendQueueSize)
	}
	if c.ConnConfig.ReadTimeout == 0 {
		t.Error("unset read timeout not filled")
	}
	if c.WSPath == "" {
		t.Error("unset ws path not filled")
	}
}

func TestConnStateString(t *testing.T) {
	cases := map[ConnState]string{
		StateConnecting:  "Connecting",
		StateHandshaking: "Handshaking",
		StateJoined:      "Joined",
		StateClosed:      "Closed",
		ConnState(99):    "Unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
