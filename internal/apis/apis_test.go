package apis

import "testing"

func TestRequestAndSessionPaths(t *testing.T) {
	b := &Bus{sender: ":1.342"}

	if got, want := b.RequestPath("acapture_ab"), "/org/freedesktop/portal/desktop/request/1_342/acapture_ab"; string(got) != want {
		t.Fatalf("RequestPath = %s, want %s", got, want)
	}
	if got, want := b.SessionPath("acapture_cd"), "/org/freedesktop/portal/desktop/session/1_342/acapture_cd"; string(got) != want {
		t.Fatalf("SessionPath = %s, want %s", got, want)
	}
}
