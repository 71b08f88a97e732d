package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	gnarklog "github.com/consensys/gnark/logger"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/vocdoni/wispy/circuits"
	"github.com/vocdoni/wispy/config"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/service"
)

func main() {
	// a missing .env file is fine, the flags have defaults
	_ = godotenv.Load()

	def := config.DefaultRelay()
	cfg := &config.Relay{}
	flag.StringVar(&cfg.Host, "host", config.Env("HOST", def.Host), "API listen host")
	flag.IntVar(&cfg.Port, "port", config.EnvInt("PORT", def.Port), "API listen port")
	flag.StringVar(&cfg.DataDir, "datadir", config.Env("DATADIR", def.DataDir), "directory of the relay database")
	flag.StringVar(&cfg.LogLevel, "log.level", config.Env("LOG_LEVEL", def.LogLevel), "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogOutput, "log.output", config.Env("LOG_OUTPUT", def.LogOutput), "log output (stdout, stderr or a file path)")
	flag.StringVar(&cfg.GroupID, "group", config.Env("GROUP", ""), "messaging group served by the relay")
	flag.StringVar(&cfg.Backend, "backend", config.Env("BACKEND", def.Backend), "proof backend (groth16 or solver)")
	flag.StringVar(&cfg.Transport.Kind, "transport", config.Env("TRANSPORT", def.Transport.Kind), "transport (signal-cli, webhook or loopback)")
	flag.StringVar(&cfg.Transport.URL, "transport.url", config.Env("TRANSPORT_URL", ""), "signal-cli JSON-RPC or webhook URL")
	flag.StringVar(&cfg.Transport.Account, "transport.account", config.Env("TRANSPORT_ACCOUNT", ""), "signal account the relay sends from")
	flag.DurationVar(&cfg.Transport.Timeout, "transport.timeout", config.EnvDuration("TRANSPORT_TIMEOUT", def.Transport.Timeout), "timeout of a delivery")
	flag.IntVar(&cfg.RootWindow, "rootWindow", config.EnvInt("ROOT_WINDOW", def.RootWindow), "number of recent membership roots accepted")
	flag.IntVar(&cfg.BulletinWindow, "bulletinWindow", config.EnvInt("BULLETIN_WINDOW", def.BulletinWindow), "number of recent bulletin roots accepted")
	flag.DurationVar(&cfg.MaxClockSkew, "maxClockSkew", config.EnvDuration("MAX_CLOCK_SKEW", def.MaxClockSkew), "accepted message timestamp skew, negative disables the check")
	flag.DurationVar(&cfg.SettleInterval, "settleInterval", config.EnvDuration("SETTLE_INTERVAL", def.SettleInterval), "period of the reputation settlement")
	flag.DurationVar(&cfg.RedeliverInterval, "redeliverInterval", config.EnvDuration("REDELIVER_INTERVAL", def.RedeliverInterval), "period of the outbox redelivery")
	flag.StringVar(&cfg.BanPolicy, "banPolicy", config.Env("BAN_POLICY", def.BanPolicy), "ban enforcement policy (majority or quorum:N)")
	flag.StringVar(&cfg.Badges, "badges", config.Env("BADGES", ""), "badges as id:minReputation,...")
	flag.DurationVar(&cfg.ArtifactsTimeout, "artifactsTimeout", config.EnvDuration("ARTIFACTS_TIMEOUT", def.ArtifactsTimeout), "timeout to load the circuit keys")
	artifactsDir := flag.String("artifactsDir", config.Env("ARTIFACTS_DIR", circuits.BaseDir), "directory of the circuit keys")
	flag.Parse()

	log.Init(cfg.LogLevel, cfg.LogOutput, nil)
	gnarklog.Set(*log.Logger())
	circuits.BaseDir = *artifactsDir

	srv := service.NewRelay(cfg)
	if err := srv.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	host, port := srv.HostPort()
	log.Infow("relay ready", "host", host, "port", port, "datadir", cfg.DataDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Infow("shutting down")
	srv.Stop()
}
