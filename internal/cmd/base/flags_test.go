package base

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagSet_Help(t *testing.T) {
	f := NewFlagSet(flag.NewFlagSet("test", flag.ContinueOnError))

	var config string
	var verbose bool
	f.StringVar(&config, "config", "banlist.hcl", "Path to the config file")
	f.BoolVar(&verbose, "verbose", false, "Print more")

	help := f.Help()
	assert.Contains(t, help, "Options:")
	assert.Contains(t, help, "-config=banlist.hcl")
	assert.Contains(t, help, "      Path to the config file")
	assert.Contains(t, help, "-verbose\n")
	assert.NotContains(t, help, "-verbose=false")
}

func TestFlagSet_HelpEmpty(t *testing.T) {
	f := NewFlagSet(flag.NewFlagSet("test", flag.ContinueOnError))
	assert.Empty(t, f.Help())
}
