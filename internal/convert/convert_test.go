package convert

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestVardictSkipsZeroValues(t *testing.T) {
	v := Vardict{}.
		String("handle_token", "acapture_1").
		String("restore_token", "").
		Uint32("types", 3).
		Uint32("persist_mode", 0).
		Bool("multiple", false).
		Bool("ignored", true)

	if len(v) != 3 {
		t.Fatalf("len = %d, want 3: %v", len(v), v)
	}
	if got, _ := StringOf(v, "handle_token"); got != "acapture_1" {
		t.Fatalf("handle_token = %q", got)
	}
	if got, _ := Uint32Of(v, "types"); got != 3 {
		t.Fatalf("types = %d", got)
	}
	if v["types"].Signature().String() != "u" || v["ignored"].Signature().String() != "b" {
		t.Fatalf("signatures = %s %s", v["types"].Signature(), v["ignored"].Signature())
	}
}

func TestLookups(t *testing.T) {
	results := map[string]dbus.Variant{
		"session_handle": dbus.MakeVariant(dbus.ObjectPath("/org/freedesktop/portal/desktop/session/1_42/t")),
		"size":           dbus.MakeVariant([]any{int32(640), int32(480)}),
		"short":          dbus.MakeVariant([]any{int32(1)}),
		"count":          dbus.MakeVariant("not a number"),
	}

	if s, ok := StringOf(results, "session_handle"); !ok || s != "/org/freedesktop/portal/desktop/session/1_42/t" {
		t.Fatalf("StringOf(object path) = %q, %v", s, ok)
	}
	if p, ok := Int32PairOf(results, "size"); !ok || p != [2]int32{640, 480} {
		t.Fatalf("Int32PairOf = %v, %v", p, ok)
	}
	if _, ok := Int32PairOf(results, "short"); ok {
		t.Fatal("Int32PairOf accepted a one-element struct")
	}
	if _, ok := Uint32Of(results, "count"); ok {
		t.Fatal("Uint32Of accepted a string")
	}
	if _, ok := StringOf(results, "absent"); ok {
		t.Fatal("StringOf found an absent key")
	}
}
