package base

import (
	"bytes"
	"flag"
	"fmt"
	"strings"
)

// FlagSet wraps flag.FlagSet to render help text for a command.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet creates a FlagSet.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	return &FlagSet{FlagSet: f}
}

// Help returns the formatted flag documentation.
func (f *FlagSet) Help() string {
	var buf bytes.Buffer

	first := true
	f.VisitAll(func(fl *flag.Flag) {
		if first {
			buf.WriteString("\n\nOptions:\n")
			first = false
		}
		fmt.Fprintf(&buf, "\n  -%s", fl.Name)
		if fl.DefValue != "" && fl.DefValue != "false" {
			fmt.Fprintf(&buf, "=%s", fl.DefValue)
		}
		buf.WriteString("\n")
		for _, line := range strings.Split(fl.Usage, "\n") {
			fmt.Fprintf(&buf, "      %s\n", line)
		}
	})

	return strings.TrimRight(buf.String(), "\n")
}
