package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	gnarklog "github.com/consensys/gnark/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vocdoni/wispy/api/client"
	"github.com/vocdoni/wispy/config"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/member"
	"github.com/vocdoni/wispy/types"
	"github.com/vocdoni/wispy/zk"
)

func main() {
	// a missing .env file is fine, the flags have defaults
	_ = godotenv.Load()
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the global flags shared by every command.
type app struct {
	out            io.Writer
	relayURL       string
	credentialPath string
	backend        string
	proveTimeout   time.Duration
	logLevel       string
	asJSON         bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:          "wispy",
		Short:        "Anonymous member client of a wispy group",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			log.Init(a.logLevel, "stderr", nil)
			gnarklog.Set(*log.Logger())
		},
	}
	root.SetOut(out)
	root.SetErr(out)

	pf := root.PersistentFlags()
	pf.StringVar(&a.relayURL, "relay", config.Env("RELAY", config.DefaultRelayURL), "URL of the relay API")
	pf.StringVar(&a.credentialPath, "credential", config.Env("CREDENTIAL", config.DefaultCredentialPath()), "path of the credential file")
	pf.StringVar(&a.backend, "backend", config.Env("BACKEND", ""), "proof backend, defaults to the one of the relay")
	pf.DurationVar(&a.proveTimeout, "timeout", config.EnvDuration("PROVE_TIMEOUT", config.DefaultProveTimeout), "timeout of a proof generation")
	pf.StringVar(&a.logLevel, "log.level", config.Env("LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")
	pf.BoolVar(&a.asJSON, "json", false, "print results as JSON")

	root.AddCommand(a.commands()...)
	return root
}

func (a *app) client() (*client.HTTPclient, error) {
	cli, err := client.New(a.relayURL)
	if err != nil {
		return nil, fmt.Errorf("could not reach relay %s: %w", a.relayURL, err)
	}
	return cli, nil
}

// proofBackend returns the backend to prove with. Groth16 keys are
// downloaded from the relay.
func (a *app) proofBackend(ctx context.Context, cli *client.HTTPclient) (zk.Backend, error) {
	name := a.backend
	if name == "" {
		info, err := cli.Info(ctx)
		if err != nil {
			return nil, err
		}
		name = info.Backend
	}
	switch name {
	case zk.SolverName:
		return zk.NewSolverBackend(), nil
	case zk.Groth16Name:
		return zk.NewGroth16Backend(cli.RemoteKeys()), nil
	}
	return nil, fmt.Errorf("%w: unknown proof backend %q", types.ErrValidation, name)
}

// session opens the member session the commands act on.
func (a *app) session(ctx context.Context) (*member.Member, error) {
	cli, err := a.client()
	if err != nil {
		return nil, err
	}
	backend, err := a.proofBackend(ctx, cli)
	if err != nil {
		return nil, err
	}
	return member.Open(ctx, cli, backend, a.credentialPath, a.proveTimeout)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format+"\n", args...)
}

// print writes v as JSON when requested, or the text otherwise.
func (a *app) print(v any, text string) error {
	if !a.asJSON {
		a.printf("%s", text)
		return nil
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printAck(ack *types.Ack) error {
	text := fmt.Sprintf("%s accepted", ack.Kind)
	if ack.MessageID != "" {
		text += fmt.Sprintf(", message %s", ack.MessageID)
	}
	if ack.PollID != "" {
		text += fmt.Sprintf(", poll %s", ack.PollID)
	}
	if ack.Warning != "" {
		text += fmt.Sprintf(" (warning: %s)", ack.Warning)
	}
	return a.print(ack, text)
}
