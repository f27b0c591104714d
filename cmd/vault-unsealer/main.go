package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/Napuu/quorum-vault-auto-unsealer/common"
	"github.com/Napuu/quorum-vault-auto-unsealer/pkg/config"
	"github.com/Napuu/quorum-vault-auto-unsealer/pkg/kubernetes"
	"github.com/Napuu/quorum-vault-auto-unsealer/pkg/metrics"
	"github.com/Napuu/quorum-vault-auto-unsealer/pkg/server"
	"github.com/Napuu/quorum-vault-auto-unsealer/pkg/unsealer"
	"github.com/Napuu/quorum-vault-auto-unsealer/pkg/vault"
)

var flags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:    "primary-addr",
		Value:   config.DefaultPrimaryAddr,
		Usage:   "address of the unsealed node serving the unseal key shares",
		EnvVars: []string{"VAULT_ADDR"},
	},
	&cli.StringFlag{
		Name:    "target-addrs",
		Value:   "",
		Usage:   "comma-separated addresses of the nodes to keep unsealed",
		EnvVars: []string{"VAULT_UNSEAL_TARGETS"},
	},
	&cli.Int64Flag{
		Name:    "poll-interval-ms",
		Value:   config.DefaultPollInterval.Milliseconds(),
		Usage:   "milliseconds between two sweeps over all targets",
		EnvVars: []string{"POLL_INTERVAL_MS"},
	},
	&cli.StringFlag{
		Name:    "auth-role",
		Value:   config.DefaultAuthRole,
		Usage:   "Kubernetes auth role used to log in to the primary node",
		EnvVars: []string{"VAULT_AUTH_ROLE"},
	},
	&cli.StringFlag{
		Name:    "vault-namespace",
		Value:   "",
		Usage:   "namespace the unseal key secret lives in, empty for root",
		EnvVars: []string{"VAULT_NAMESPACE"},
	},
	&cli.StringFlag{
		Name:    "keys-path",
		Value:   config.DefaultKeysPath,
		Usage:   "KV v2 path of the unseal key shares on the primary node",
		EnvVars: []string{"UNSEAL_KEYS_PATH"},
	},
	&cli.StringFlag{
		Name:    "jwt-path",
		Value:   config.DefaultJWTPath,
		Usage:   "file the service-account JWT is mounted at",
		EnvVars: []string{"VAULT_JWT_PATH"},
	},
	&cli.BoolFlag{
		Name:    "tls-skip-verify",
		Value:   false,
		Usage:   "disable TLS certificate validation on outbound calls",
		EnvVars: []string{"VAULT_SKIP_VERIFY"},
	},
	&cli.BoolFlag{
		Name:    "discover-pods",
		Value:   false,
		Usage:   "discover additional targets from cluster pods each sweep",
		EnvVars: []string{"DISCOVER_PODS"},
	},
	&cli.StringFlag{
		Name:    "pod-namespace",
		Value:   config.DefaultPodNamespace,
		Usage:   "namespace to discover target pods in",
		EnvVars: []string{"POD_NAMESPACE"},
	},
	&cli.StringFlag{
		Name:    "pod-label-selector",
		Value:   config.DefaultPodLabelSelector,
		Usage:   "label selector matching target pods",
		EnvVars: []string{"POD_LABEL_SELECTOR"},
	},
	&cli.StringFlag{
		Name:    "pod-scheme",
		Value:   config.DefaultPodScheme,
		Usage:   "scheme for addresses built from discovered pods",
		EnvVars: []string{"POD_SCHEME"},
	},
	&cli.StringFlag{
		Name:    "pod-port",
		Value:   config.DefaultPodPort,
		Usage:   "API port of discovered pods",
		EnvVars: []string{"VAULT_PORT"},
	},
	&cli.StringFlag{
		Name:    "listen-addr",
		Value:   config.DefaultListenAddr,
		Usage:   "address to listen on for health and readiness checks",
		EnvVars: []string{"LISTEN_ADDR"},
	},
	&cli.StringFlag{
		Name:    "metrics-addr",
		Value:   config.DefaultMetricsAddr,
		Usage:   "address to listen on for Prometheus metrics, empty to disable",
		EnvVars: []string{"METRICS_ADDR"},
	},
	&cli.BoolFlag{
		Name:    "log-json",
		Value:   false,
		Usage:   "log in JSON format",
		EnvVars: []string{"LOG_JSON"},
	},
	&cli.BoolFlag{
		Name:    "log-debug",
		Value:   false,
		Usage:   "log debug messages",
		EnvVars: []string{"LOG_DEBUG"},
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: "vault-unsealer",
		Usage: "add 'service' tag to logs",
	},
	&cli.BoolFlag{
		Name:  "pprof",
		Value: false,
		Usage: "enable pprof debug endpoint",
	},
}

func main() {
	app := &cli.App{
		Name:  "vault-unsealer",
		Usage: "keep sealed cluster nodes unsealed with key shares from a trusted primary",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			cfg := &config.Config{
				PrimaryAddr:    cCtx.String("primary-addr"),
				Targets:        config.ParseTargets(cCtx.String("target-addrs")),
				PollInterval:   time.Duration(cCtx.Int64("poll-interval-ms")) * time.Millisecond,
				AuthRole:       cCtx.String("auth-role"),
				VaultNamespace: cCtx.String("vault-namespace"),
				KeysPath:       cCtx.String("keys-path"),
				JWTPath:        cCtx.String("jwt-path"),
				TLSSkipVerify:  cCtx.Bool("tls-skip-verify"),

				DiscoverPods:     cCtx.Bool("discover-pods"),
				PodNamespace:     cCtx.String("pod-namespace"),
				PodLabelSelector: cCtx.String("pod-label-selector"),
				PodScheme:        cCtx.String("pod-scheme"),
				PodPort:          cCtx.String("pod-port"),

				ListenAddr:  cCtx.String("listen-addr"),
				MetricsAddr: cCtx.String("metrics-addr"),
			}

			logger := common.SetupLogger(&common.LoggingOpts{
				Debug:   cCtx.Bool("log-debug"),
				JSON:    cCtx.Bool("log-json"),
				Service: cCtx.String("log-service"),
				Version: common.Version,
			})

			if cCtx.Bool("log-uid") {
				id := uuid.Must(uuid.NewRandom())
				logger = logger.With("uid", id.String())
			}

			if err := cfg.Validate(); err != nil {
				logger.Error("invalid configuration", "err", err)
				return err
			}
			if len(cfg.Targets) == 0 && !cfg.DiscoverPods {
				logger.Warn("no unseal targets configured and pod discovery disabled, sweeps will be no-ops")
			}

			dialer := vault.NewDialer(cfg.TLSSkipVerify)
			creds := vault.NewFileCredentialSource(afero.NewOsFs(), cfg.JWTPath,
				logger.With("component", "credentials"))
			keySource := vault.NewKeySource(vault.KeySourceConfig{
				PrimaryAddr: cfg.PrimaryAddr,
				AuthRole:    cfg.AuthRole,
				Namespace:   cfg.VaultNamespace,
				KeysPath:    cfg.KeysPath,
			}, dialer, creds)

			driver := unsealer.NewDriver(keySource, func(addr string) (unsealer.Node, error) {
				return dialer.Dial(addr)
			}, logger.With("component", "driver"))

			var discover unsealer.DiscoverFunc
			if cfg.DiscoverPods {
				k8sClient, err := kubernetes.NewClient(kubernetes.DiscoveryConfig{
					Namespace:     cfg.PodNamespace,
					LabelSelector: cfg.PodLabelSelector,
					Scheme:        cfg.PodScheme,
					Port:          cfg.PodPort,
				}, logger.With("component", "discovery"))
				if err != nil {
					logger.Error("failed to create Kubernetes client", "err", err)
					return err
				}
				discover = k8sClient.DiscoverTargets
			}
			resolver := unsealer.NewTargetResolver(cfg.Targets, discover,
				logger.With("component", "resolver"))

			registry := metrics.NewRegistry()
			m := metrics.New(registry)
			var metricsSrv *metrics.Server
			if cfg.MetricsAddr != "" {
				metricsSrv = metrics.NewServer(cfg.MetricsAddr, registry)
			}

			scheduler := unsealer.NewScheduler(driver, unsealer.SchedulerConfig{
				Interval: cfg.PollInterval,
				Resolver: resolver,
				Metrics:  m,
				Log:      logger.With("component", "scheduler"),
			})

			srv := server.New(&server.Config{
				ListenAddr:  cfg.ListenAddr,
				MetricsAddr: cfg.MetricsAddr,
				EnablePprof: cCtx.Bool("pprof"),
				Log:         logger,
			}, resolver, dialer, metricsSrv)

			srv.RunInBackground()

			ctx, cancel := context.WithCancel(context.Background())
			schedulerDone := make(chan struct{})
			go func() {
				scheduler.Run(ctx)
				close(schedulerDone)
			}()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("shutdown signal received")

			cancel()
			<-schedulerDone
			srv.Shutdown()
			logger.Info("shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
