package version

import (
	"testing"

	"github.com/fatih/color"
)

func withVersion(t *testing.T, v string) {
	t.Helper()
	orig := Version
	Version = v
	t.Cleanup(func() { Version = orig })
}

func TestVersion_DefaultValue(t *testing.T) {
	if Version == "" {
		t.Error("Version should have a default value")
	}
}

func TestString(t *testing.T) {
	cases := map[string]string{
		"1.2.3":         "1.2.3",
		"v1.2.3":        "1.2.3",
		" 0.1.0-dev\n":  "0.1.0-dev",
		"2.0.0-alpha+7": "2.0.0-alpha+7",
	}
	for in, want := range cases {
		withVersion(t, in)
		if got := String(); got != want {
			t.Errorf("String() with Version=%q = %q, want %q", in, got, want)
		}
	}
}

func TestColored(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	cases := map[string]string{
		"1.2.3":            "1.2.3",
		"0.1.0-dev":        "0.1.0-dev",
		"1.2.3-rc.1+b.123": "1.2.3-rc.1+b.123",
		"nightly":          "nightly",
	}
	for in, want := range cases {
		withVersion(t, in)
		if got := Colored(); got != want {
			t.Errorf("Colored() with Version=%q = %q, want %q", in, got, want)
		}
	}
}

func TestColoredAddsEscapes(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = prev })

	withVersion(t, "1.2.3")
	if got := Colored(); got == "1.2.3" {
		t.Fatalf("Colored() = %q, want color escapes", got)
	}
}
