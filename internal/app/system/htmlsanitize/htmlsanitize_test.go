package htmlsanitize_test

import (
	"testing"

	"github.com/dalemusser/centerhub/internal/app/system/htmlsanitize"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "IES Rosalía de Castro", "IES Rosalía de Castro"},
		{"ampersand kept", "Arts & Crafts", "Arts & Crafts"},
		{"tags stripped", "<b>4ESO</b>-B", "4ESO-B"},
		{"script removed", "Chess<script>alert('x')</script>", "Chess"},
		{"whitespace collapsed", "  Robotics \n Club  ", "Robotics Club"},
		{"only markup", "<img src=x onerror=alert(1)>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := htmlsanitize.PlainText(tt.in); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsPlainText(t *testing.T) {
	if !htmlsanitize.IsPlainText("Robotics") {
		t.Error("expected plain name to be plain text")
	}
	if htmlsanitize.IsPlainText("<i>Robotics</i>") {
		t.Error("expected markup not to be plain text")
	}
}
