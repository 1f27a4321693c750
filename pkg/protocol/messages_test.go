package protocol

import (
	"reflect"
	"testing"
)

func TestClientHelloRoundTrip(t *testing.T) {
	ch := &ClientHello{Token: "bearer-token-xyz", SessionID: "room-42"}
	got, err := DecodeClientHello(EncodeClientHello(ch))
	if err != nil {
		t.Fatalf("DecodeClientHello() error = %v", err)
	}
	if got.Token != ch.Token || got.SessionID != ch.SessionID {
		t.Errorf("got %+v, want %+v", got, ch)
	}
}

func TestClientHelloEmptyFields(t *testing.T) {
	// Empty token and session id must decode cleanly; the gateway decides
	// what they mean, not the codec.
	got, err := DecodeClientHello(EncodeClientHello(&ClientHello{}))
	if err != nil {
		t.Fatalf("DecodeClientHello() error = %v", err)
	}
	if got.Token != "" || got.SessionID != "" {
		t.Errorf("got %+v, want empty fields", got)
	}
}

func TestClientHelloTruncated(t *testing.T) {
	data := EncodeClientHello(&ClientHello{Token: "token", SessionID: "session"})
	if _, err := DecodeClientHello(data[:3]); err == nil {
		t.Error("DecodeClientHello() on truncated input should fail")
	}
}

func TestConnectedRoundTrip(t *testing.T) {
	c := &Connected{UserID: "user-1", SessionID: "room-42"}
	got, err := DecodeConnected(EncodeConnected(c))
	if err != nil {
		t.Fatalf("DecodeConnected() error = %v", err)
	}
	if *got != *c {
		t.Errorf("got %+v, want %+v", got, c)
	}
}

func TestControlPingPong(t *testing.T) {
	ct, pp := NewPing(1234567890)
	data := EncodeControl(ct, pp)

	gotCT, payload, err := DecodeControl(data)
	if err != nil {
		t.Fatalf("DecodeControl() error = %v", err)
	}
	if gotCT != ControlPing {
		t.Errorf("control type = %v, want Ping", gotCT)
	}
	gotPP, ok := payload.(*PingPong)
	if !ok || gotPP.Timestamp != 1234567890 {
		t.Errorf("payload = %#v", payload)
	}
}

func TestControlClose(t *testing.T) {
	ct, cm := NewClose(CloseGoingAway, "bye")
	gotCT, payload, err := DecodeControl(EncodeControl(ct, cm))
	if err != nil {
		t.Fatalf("DecodeControl() error = %v", err)
	}
	if gotCT != ControlClose {
		t.Errorf("control type = %v, want Close", gotCT)
	}
	gotCM, ok := payload.(*CloseMessage)
	if !ok || gotCM.Reason != CloseGoingAway || gotCM.Message != "bye" {
		t.Errorf("payload = %#v", payload)
	}
}

func TestControlUnknownType(t *testing.T) {
	if _, _, err := DecodeControl([]byte{0x7F}); err == nil {
		t.Error("DecodeControl() with unknown type should fail")
	}
}

func TestErrorMessageRoundTrip(t *testing.T) {
	em := &ErrorMessage{Code: ErrCodeInvalidUpdate, Message: "delta failed to decode"}
	got, err := DecodeError(EncodeError(em))
	if err != nil {
		t.Fatalf("DecodeError() error = %v", err)
	}
	if *got != *em {
		t.Errorf("got %+v, want %+v", got, em)
	}
}

func TestRoomsListingRoundTrip(t *testing.T) {
	rl := &RoomsListing{Rooms: map[string][]string{
		"room-a": {"conn-2", "conn-1"},
		"room-b": {"conn-3"},
		"empty":  {},
	}}

	got, err := DecodeRoomsListing(EncodeRoomsListing(rl))
	if err != nil {
		t.Fatalf("DecodeRoomsListing() error = %v", err)
	}

	want := map[string][]string{
		"room-a": {"conn-1", "conn-2"}, // sorted on encode
		"room-b": {"conn-3"},
		"empty":  {},
	}
	if !reflect.DeepEqual(got.Rooms, want) {
		t.Errorf("got %v, want %v", got.Rooms, want)
	}
}

func TestRoomsListingDeterministic(t *testing.T) {
	rl := &RoomsListing{Rooms: map[string][]string{
		"b": {"y", "x"},
		"a": {"z"},
	}}
	first := EncodeRoomsListing(rl)
	for i := 0; i < 10; i++ {
		if string(EncodeRoomsListing(rl)) != string(first) {
			t.Fatal("encoding is not deterministic across runs")
		}
	}
}
