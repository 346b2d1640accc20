package formatting_test

import (
	"errors"
	"testing"

	"github.com/rhinocodelab/idms-v3/pkg/formatting"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n         int64
		precision int
		want      string
	}{
		{0, 1, "0 B"},
		{512, 1, "512 B"},
		{1024, 0, "1 KB"},
		{1536, 1, "1.5 KB"},
		{25 * 1024 * 1024, 1, "25.0 MB"},
		{3 * 1024 * 1024 * 1024, -2, "3 GB"},
	}

	for _, tt := range tests {
		if got := formatting.FormatBytes(tt.n, tt.precision); got != tt.want {
			t.Errorf("FormatBytes(%d, %d) = %q, want %q", tt.n, tt.precision, got, tt.want)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"4096", 4096, false},
		{"25MB", 25 * 1024 * 1024, false},
		{"25 mb", 25 * 1024 * 1024, false},
		{"1.5KB", 1536, false},
		{"2GB", 2 * 1024 * 1024 * 1024, false},
		{"", 0, true},
		{"-1MB", 0, true},
		{"10XB", 0, true},
		{"MB", 0, true},
		{"16EB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := formatting.ParseBytes(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseBytes(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

type verdict struct {
	DocumentType     string  `json:"document_type"`
	CriticalityLevel string  `json:"criticality_level"`
	Confidence       float64 `json:"confidence"`
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bare", `{"document_type":"invoice","criticality_level":"high","confidence":0.9}`},
		{"fenced", "```json\n{\"document_type\":\"invoice\",\"criticality_level\":\"high\",\"confidence\":0.9}\n```"},
		{"fenced without language", "```\n{\"document_type\":\"invoice\",\"criticality_level\":\"high\",\"confidence\":0.9}\n```"},
		{"embedded in prose", `Here is the result: {"document_type":"invoice","criticality_level":"high","confidence":0.9} Thanks.`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatting.ParseJSON[verdict](tt.content)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			want := verdict{DocumentType: "invoice", CriticalityLevel: "high", Confidence: 0.9}
			if got != want {
				t.Errorf("got %+v, want %+v", got, want)
			}
		})
	}
}

func TestParseJSONFailure(t *testing.T) {
	_, err := formatting.ParseJSON[verdict]("the document looks like an invoice")
	if !errors.Is(err, formatting.ErrParseFailed) {
		t.Errorf("err = %v, want ErrParseFailed", err)
	}
}
