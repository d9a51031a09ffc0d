package provider

import "testing"

func TestShellJoin_QuotesArgumentsWithSpaces(t *testing.T) {
	got := shellJoin([]string{"echo", "hello world"})
	want := `echo 'hello world'`
	if got != want {
		t.Fatalf("shellJoin() = %q, want %q", got, want)
	}
}

func TestShellJoin_QuotesShellMetacharacters(t *testing.T) {
	got := shellJoin([]string{"sh", "-c", "rm -rf / ; echo pwned"})
	want := `sh -c 'rm -rf / ; echo pwned'`
	if got != want {
		t.Fatalf("shellJoin() = %q, want %q", got, want)
	}
}
