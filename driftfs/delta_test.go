package driftfs

import (
	"bytes"
	"testing"
)

func TestDeltaRuns(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
		want []writeRun
	}{
		{
			name: "identical",
			old:  "hello",
			new:  "hello",
			want: nil,
		},
		{
			name: "all changed",
			old:  "aaaa",
			new:  "bbbb",
			want: []writeRun{{off: 0, data: []byte("bbbb")}},
		},
		{
			name: "middle run",
			old:  "aXXa",
			new:  "aYYa",
			want: []writeRun{{off: 1, data: []byte("YY")}},
		},
		{
			name: "two runs",
			old:  "aXaaXa",
			new:  "aYaaYa",
			want: []writeRun{{off: 1, data: []byte("Y")}, {off: 4, data: []byte("Y")}},
		},
		{
			name: "extending write",
			old:  "ab",
			new:  "abcd",
			want: []writeRun{{off: 2, data: []byte("cd")}},
		},
		{
			name: "change plus extension",
			old:  "ab",
			new:  "xbcd",
			want: []writeRun{{off: 0, data: []byte("x")}, {off: 2, data: []byte("cd")}},
		},
		{
			name: "empty old",
			old:  "",
			new:  "new",
			want: []writeRun{{off: 0, data: []byte("new")}},
		},
		{
			name: "trailing unchanged",
			old:  "Xbc",
			new:  "Ybc",
			want: []writeRun{{off: 0, data: []byte("Y")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deltaRuns([]byte(tt.old), []byte(tt.new))
			if len(got) != len(tt.want) {
				t.Fatalf("got %d runs, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i].off != tt.want[i].off || !bytes.Equal(got[i].data, tt.want[i].data) {
					t.Errorf("run %d: got {%d %q}, want {%d %q}",
						i, got[i].off, got[i].data, tt.want[i].off, tt.want[i].data)
				}
			}
		})
	}
}

func TestDeltaRunsCopiesData(t *testing.T) {
	src := []byte("abcd")
	runs := deltaRuns([]byte("aXcd"), src)
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	src[1] = 'Z'
	if !bytes.Equal(runs[0].data, []byte("b")) {
		t.Errorf("run data aliased the source buffer: %q", runs[0].data)
	}
}
