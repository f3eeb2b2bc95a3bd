package svn

import "testing"

func TestDetectEncoding(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		fallback string
		want     string
	}{
		{name: "utf8 bom", input: []byte{0xEF, 0xBB, 0xBF, 'a'}, want: "utf-8"},
		{name: "utf16le bom", input: []byte{0xFF, 0xFE, 'a', 0}, want: "utf-16le"},
		{name: "utf16be bom", input: []byte{0xFE, 0xFF, 0, 'a'}, want: "utf-16be"},
		{name: "ascii", input: []byte("At revision 42."), want: "utf-8"},
		{name: "valid utf8", input: []byte("Grüße"), want: "utf-8"},
		{name: "empty uses utf8", input: nil, fallback: "windows-1252", want: "utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectEncoding(tt.input, tt.fallback); got != tt.want {
				t.Errorf("DetectEncoding() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		encoding string
		want     string
		wantErr  bool
	}{
		{name: "utf8 strips bom", input: []byte{0xEF, 0xBB, 0xBF, 'h', 'i'}, encoding: "utf-8", want: "hi"},
		{name: "empty name is utf8", input: []byte("plain"), encoding: "", want: "plain"},
		{name: "windows-1252", input: []byte{'n', 0xE4, 'h'}, encoding: "windows-1252", want: "näh"},
		{name: "utf16le", input: []byte{'o', 0, 'k', 0}, encoding: "utf-16le", want: "ok"},
		{name: "unknown", input: []byte("x"), encoding: "no-such-charset", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.input, tt.encoding)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Decode() = %q, want %q", got, tt.want)
			}
		})
	}
}
