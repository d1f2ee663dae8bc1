package cli

import (
	"flag"
	"reflect"
	"testing"
)

func TestMapValue(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var creds map[string]string
	fsMapVar(fs, &creds, "creds", nil, "")
	if err := fs.Parse([]string{"-creds", "user1:pass1;user2:pa:ss2"}); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"user1": "pass1", "user2": "pa:ss2"}
	if !reflect.DeepEqual(creds, want) {
		t.Fatalf("creds = %v; want %v", creds, want)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	fsMapVar(fs, &creds, "creds", nil, "")
	if err := fs.Parse([]string{"-creds", "nopass"}); err == nil {
		t.Fatal("Parse() err = nil; want invalid map entry")
	}
}

func TestCommands(t *testing.T) {
	cmd := New("v1", "", "")
	var names []string
	for _, c := range cmd.Subcommands {
		names = append(names, c.Name)
	}
	want := []string{"version", "serve", "generate", "status"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("subcommands = %v; want %v", names, want)
	}
	for _, c := range cmd.Subcommands[1:] {
		if c.FlagSet.Lookup("config") == nil || c.FlagSet.Lookup("debug") == nil {
			t.Errorf("%s is missing the config or debug flag", c.Name)
		}
	}
}
