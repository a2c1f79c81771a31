package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/attestia/diploma-registry-backend/common"
	"github.com/attestia/diploma-registry-backend/cryptoutils"
	"github.com/attestia/diploma-registry-backend/eventlog"
	"github.com/attestia/diploma-registry-backend/httpserver"
	"github.com/attestia/diploma-registry-backend/interfaces"
	"github.com/attestia/diploma-registry-backend/keyescrow"
	"github.com/attestia/diploma-registry-backend/registry"
)

var flags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Value: "127.0.0.1:8090",
		Usage: "address to listen on for Prometheus metrics",
	},
	&cli.Uint64Flag{
		Name:  "chain-id",
		Value: 1,
		Usage: "chain ID bound into the signing domain",
	},
	&cli.StringFlag{
		Name:     "registry-address",
		Required: true,
		Usage:    "registry contract address bound into the signing domain. 40-char hex string",
	},
	&cli.StringFlag{
		Name:     "admin",
		Required: true,
		Usage:    "governance admin address. 40-char hex string",
	},
	&cli.StringSliceFlag{
		Name:  "issuer",
		Usage: "issuer address to allow-list at startup (repeatable)",
	},
	&cli.Uint64Flag{
		Name:  "approval-threshold",
		Value: 2,
		Usage: "number of issuer approvals required to execute a governance proposal",
	},
	&cli.BoolFlag{
		Name:  "require-revoke-signature",
		Value: true,
		Usage: "require a signature over the revocation payload in addition to caller authorization",
	},
	&cli.StringSliceFlag{
		Name:  "escrow-custodian",
		Usage: "custodian address for the archival document key escrow (repeatable)",
	},
	&cli.IntFlag{
		Name:  "escrow-threshold",
		Value: 2,
		Usage: "number of custodian shares required to unlock the archival key escrow",
	},
	&cli.StringFlag{
		Name:  "eventlog-path",
		Value: "registry-events.db",
		Usage: "path to the SQLite event log database",
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: "diploma-registry",
		Usage: "add 'service' tag to logs",
	},
	&cli.BoolFlag{
		Name:  "pprof",
		Value: false,
		Usage: "enable pprof debug endpoint",
	},
	&cli.Int64Flag{
		Name:  "drain-seconds",
		Value: 45,
		Usage: "seconds to wait in drain HTTP request",
	},
}

func main() {
	app := &cli.App{
		Name:  "registry-server",
		Usage: "Serve the diploma certificate registry API",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")
			metricsAddr := cCtx.String("metrics-addr")
			chainID := cCtx.Uint64("chain-id")
			logJSON := cCtx.Bool("log-json")
			logDebug := cCtx.Bool("log-debug")
			logUID := cCtx.Bool("log-uid")
			logService := cCtx.String("log-service")
			enablePprof := cCtx.Bool("pprof")
			drainDuration := time.Duration(cCtx.Int64("drain-seconds")) * time.Second

			logger := common.SetupLogger(&common.LoggingOpts{
				Debug:   logDebug,
				JSON:    logJSON,
				Service: logService,
				Version: common.Version,
			})

			if logUID {
				id := uuid.Must(uuid.NewRandom())
				logger = logger.With("uid", id.String())
			}

			registryAddr, err := interfaces.NewAddressFromHex(cCtx.String("registry-address"))
			if err != nil {
				logger.Error("Invalid registry address", "err", err)
				return err
			}

			admin, err := interfaces.NewAddressFromHex(cCtx.String("admin"))
			if err != nil {
				logger.Error("Invalid admin address", "err", err)
				return err
			}

			store := registry.NewStore()
			for _, raw := range cCtx.StringSlice("issuer") {
				issuer, err := interfaces.NewAddressFromHex(raw)
				if err != nil {
					logger.Error("Invalid issuer address", "issuer", raw, "err", err)
					return err
				}
				if err := store.AddIssuer(issuer); err != nil {
					logger.Error("Failed to allow-list issuer", "issuer", raw, "err", err)
					return err
				}
				logger.Info("Allow-listed issuer", "issuer", issuer.String())
			}

			processor, err := registry.NewProcessor(store, registry.Config{
				Domain:                 cryptoutils.DefaultDomain(chainID, registryAddr),
				Admin:                  admin,
				ApprovalThreshold:      cCtx.Uint64("approval-threshold"),
				RequireRevokeSignature: cCtx.Bool("require-revoke-signature"),
			}, logger)
			if err != nil {
				logger.Error("Failed to create transaction processor", "err", err)
				return err
			}

			events, err := eventlog.NewSqliteLog(cCtx.String("eventlog-path"), logger)
			if err != nil {
				logger.Error("Failed to open event log", "err", err)
				return err
			}
			defer events.Close()

			handler := httpserver.NewHandler(processor, events, logger)

			// With custodians configured, the archival document key starts
			// locked and custodians submit signed shares over the API to
			// unlock it.
			if rawCustodians := cCtx.StringSlice("escrow-custodian"); len(rawCustodians) > 0 {
				custodians := make([]interfaces.Address, 0, len(rawCustodians))
				for _, raw := range rawCustodians {
					custodian, err := interfaces.NewAddressFromHex(raw)
					if err != nil {
						logger.Error("Invalid escrow custodian address", "custodian", raw, "err", err)
						return err
					}
					custodians = append(custodians, custodian)
				}

				escrow, err := keyescrow.NewRecovery(custodians, cCtx.Int("escrow-threshold"))
				if err != nil {
					logger.Error("Failed to configure key escrow", "err", err)
					return err
				}
				handler.WithEscrow(escrow)
				logger.Info("Archival key escrow locked, awaiting custodian shares",
					"custodians", len(custodians),
					"threshold", cCtx.Int("escrow-threshold"))
			}

			cfg := &httpserver.HTTPServerConfig{
				ListenAddr:               listenAddr,
				MetricsAddr:              metricsAddr,
				Log:                      logger,
				EnablePprof:              enablePprof,
				DrainDuration:            drainDuration,
				GracefulShutdownDuration: 30 * time.Second,
				ReadTimeout:              60 * time.Second,
				WriteTimeout:             30 * time.Second,
			}

			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit

			logger.Info("Shutting down")
			server.Shutdown()
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
