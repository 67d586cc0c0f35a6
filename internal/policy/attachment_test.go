package policy

import "testing"

func TestCheckAttachment(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		size        int64
		wantAllowed bool
		wantKind    string
	}{
		{"png", "image/png", 10, true, "image"},
		{"jpeg with params", "image/jpeg; charset=binary", 10, true, "image"},
		{"voice note", "audio/ogg", 10, true, "audio"},
		{"pdf", "application/pdf", 10, true, "file"},
		{"text", "text/plain; charset=utf-8", 10, true, "text"},
		{"executable", "application/x-msdownload", 10, false, ""},
		{"empty", "image/png", 0, false, ""},
		{"too big", "image/png", 2048, false, ""},
		{"garbage type", ";;;", 10, false, ""},
	}
	for _, tc := range cases {
		got := CheckAttachment(tc.contentType, tc.size, 1024)
		if got.Allowed != tc.wantAllowed || got.Kind != tc.wantKind {
			t.Fatalf("%s: CheckAttachment() = %+v, want allowed=%v kind=%q", tc.name, got, tc.wantAllowed, tc.wantKind)
		}
		if !got.Allowed && got.Reason == "" {
			t.Fatalf("%s: rejected attachment should carry a reason", tc.name)
		}
	}
}
