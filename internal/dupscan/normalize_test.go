package dupscan

import "testing"

func TestNormalizeStripsCommentsAndDocstrings(t *testing.T) {
	code := `def render(self):
    """Render the widget."""
    # compute the value
    return 1
`
	got := Normalize(code)
	want := "def render(self):\nreturn 1"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}

func TestNormalizeBlankLinesCollapse(t *testing.T) {
	code := "a = 1\n\n\nb = 2\n"
	got := Normalize(code)
	want := "a = 1\nb = 2"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	if got := Normalize(""); got != "" {
		t.Errorf("Normalize(\"\") = %q, want empty", got)
	}
}
