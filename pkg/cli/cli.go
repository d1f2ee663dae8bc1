package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/igolaizola/musegen/pkg/cmd/generate"
	"github.com/igolaizola/musegen/pkg/cmd/status"
	"github.com/igolaizola/musegen/pkg/cmd/web"
	"github.com/igolaizola/musegen/pkg/poll"
	"github.com/igolaizola/musegen/pkg/prediction"
	"github.com/igolaizola/musegen/pkg/replicate"
	"github.com/peterbourgon/ff/ffyaml"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

func New(version, commit, date string) *ffcli.Command {
	fs := flag.NewFlagSet("musegen", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "musegen [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(version, commit, date),
			newServeCommand(),
			newGenerateCommand(),
			newStatusCommand(),
		},
	}
}

func newVersionCommand(version, commit, date string) *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "musegen version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

func newServeCommand() *ffcli.Command {
	cmd := "serve"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &web.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.Proxy, "proxy", "", "proxy to use for upstream requests")

	fs.StringVar(&cfg.Addr, "addr", ":1337", "address to listen on")
	fs.StringVar(&cfg.KeyEnv, "key-env", prediction.DefaultKeyEnv, "environment variable holding the upstream api key")
	fs.StringVar(&cfg.UpstreamURL, "upstream", replicate.DefaultBaseURL, "upstream prediction api base url")
	fs.BoolVar(&cfg.Open, "open", false, "open the web ui in the browser")
	fsMapVar(fs, &cfg.Credentials, "creds", nil, "basic auth credentials (semicolon separated) Example: user1:pass1;user2:pass2")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("musegen %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("MUSEGEN"),
		},
		ShortHelp: fmt.Sprintf("musegen %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return web.Serve(ctx, cfg)
		},
	}
}

func newGenerateCommand() *ffcli.Command {
	cmd := "generate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &generate.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.Proxy, "proxy", "", "proxy to use")
	fs.StringVar(&cfg.Server, "server", "", "musegen server url (empty calls the upstream directly)")
	fs.StringVar(&cfg.KeyEnv, "key-env", prediction.DefaultKeyEnv, "environment variable holding the upstream api key")
	fs.StringVar(&cfg.UpstreamURL, "upstream", replicate.DefaultBaseURL, "upstream prediction api base url")
	fs.DurationVar(&cfg.Interval, "interval", poll.DefaultInterval, "wait time between status checks")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", poll.DefaultMaxAttempts, "maximum number of status checks")

	fs.StringVar(&cfg.Prompt, "prompt", "", "music description (empty reads prompts from stdin)")
	fs.IntVar(&cfg.Duration, "duration", prediction.DefaultDuration, "clip duration in seconds (5-30)")
	fs.StringVar(&cfg.Input, "input", "", "csv or json with prompts (fields: prompt,duration)")
	fs.StringVar(&cfg.Output, "output", "", "output folder for the mp3 files (empty doesn't download)")
	fs.IntVar(&cfg.Limit, "limit", 0, "limit the number of input prompts (0 means no limit)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("musegen %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("MUSEGEN"),
		},
		ShortHelp: fmt.Sprintf("musegen %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return generate.Run(ctx, cfg)
		},
	}
}

func newStatusCommand() *ffcli.Command {
	cmd := "status"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &status.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.Proxy, "proxy", "", "proxy to use")
	fs.StringVar(&cfg.Server, "server", "", "musegen server url (empty calls the upstream directly)")
	fs.StringVar(&cfg.KeyEnv, "key-env", prediction.DefaultKeyEnv, "environment variable holding the upstream api key")
	fs.StringVar(&cfg.UpstreamURL, "upstream", replicate.DefaultBaseURL, "upstream prediction api base url")

	fs.StringVar(&cfg.ID, "id", "", "prediction id")
	fs.StringVar(&cfg.Format, "format", "yaml", "output format (yaml, json)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("musegen %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("MUSEGEN"),
		},
		ShortHelp: fmt.Sprintf("musegen %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			if cfg.ID == "" && len(args) > 0 {
				cfg.ID = args[0]
			}
			return status.Run(ctx, cfg)
		},
	}
}

type mapValue struct {
	v *map[string]string
}

func (m *mapValue) String() string {
	if m.v == nil {
		return ""
	}
	return fmt.Sprintf("%v", map[string]string(*m.v))
}

func (m *mapValue) Set(value string) error {
	if m.v == nil {
		return errors.New("nil map reference")
	}
	pairs := strings.Split(value, ";")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid map entry: %s", pair)
		}
		(*m.v)[parts[0]] = parts[1]
	}
	return nil
}

func fsMapVar(fs *flag.FlagSet, p *map[string]string, name string, value map[string]string, usage string) {
	if value == nil {
		value = make(map[string]string)
	}
	*p = value
	fs.Var(&mapValue{p}, name, usage)
}
