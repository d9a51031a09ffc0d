package provider

import shellquote "github.com/kballard/go-shellquote"

// shellJoin quotes argv into a single shell command line safe to hand to
// `/bin/bash -c`, preventing injection when an argument contains spaces or
// shell metacharacters.
func shellJoin(argv []string) string {
	return shellquote.Join(argv...)
}
