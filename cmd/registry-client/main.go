package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"

	"github.com/attestia/diploma-registry-backend/api/clients"
	"github.com/attestia/diploma-registry-backend/common"
	"github.com/attestia/diploma-registry-backend/cryptoutils"
	"github.com/attestia/diploma-registry-backend/docpipeline"
	"github.com/attestia/diploma-registry-backend/httpserver"
	"github.com/attestia/diploma-registry-backend/interfaces"
	"github.com/attestia/diploma-registry-backend/storage"
)

var flagServerAddr = &cli.StringFlag{
	Name:  "registry-server-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "Registry server address",
}
var flagChainID = &cli.Uint64Flag{
	Name:  "chain-id",
	Value: 1,
	Usage: "chain ID bound into the signing domain",
}
var flagRegistryAddr = &cli.StringFlag{
	Name:     "registry-address",
	Required: true,
	Usage:    "registry contract address bound into the signing domain. 40-char hex string",
}
var flagIssuerKey = &cli.StringFlag{
	Name:    "issuer-key",
	Usage:   "hex-encoded issuer ECDSA private key",
	EnvVars: []string{"REGISTRY_ISSUER_KEY"},
}
var flagDocument = &cli.StringFlag{
	Name:  "document",
	Usage: "path to the diploma document file",
}
var flagPassphrase = &cli.StringFlag{
	Name:    "passphrase",
	Usage:   "if provided, the document is encrypted before upload",
	EnvVars: []string{"REGISTRY_DOC_PASSPHRASE"},
}
var flagStorage = &cli.StringSliceFlag{
	Name:  "storage",
	Usage: "storage backend URI to replicate documents to (repeatable)",
	Value: cli.NewStringSlice("file://./registry-documents"),
}
var flagIssuedAt = &cli.Uint64Flag{
	Name:  "issued-at",
	Usage: "issuance timestamp (unix seconds); 0 means now",
}
var flagCertID = &cli.StringFlag{
	Name:     "certificate-id",
	Required: true,
	Usage:    "certificate ID. 64-char hex string",
}
var flagReason = &cli.StringFlag{
	Name:     "reason",
	Required: true,
	Usage:    "revocation reason (1-256 bytes)",
}
var flagCaller = &cli.StringFlag{
	Name:     "caller",
	Required: true,
	Usage:    "caller address. 40-char hex string",
}

func main() {
	app := &cli.App{
		Name:  "registry-client",
		Usage: "Issue, revoke and verify diploma certificates",
		Flags: []cli.Flag{
			flagServerAddr,
			flagChainID,
			flagRegistryAddr,
		},
		Commands: []*cli.Command{
			{
				Name:   "issue",
				Usage:  "Ingest a document and issue a certificate for it",
				Flags:  []cli.Flag{flagIssuerKey, flagDocument, flagPassphrase, flagStorage, flagIssuedAt},
				Action: runIssue,
			},
			{
				Name:   "revoke",
				Usage:  "Revoke an active certificate",
				Flags:  []cli.Flag{flagIssuerKey, flagCertID, flagReason},
				Action: runRevoke,
			},
			{
				Name:   "status",
				Usage:  "Print the lifecycle status of a certificate",
				Flags:  []cli.Flag{flagCertID},
				Action: runStatus,
			},
			{
				Name:   "get",
				Usage:  "Print the full certificate record",
				Flags:  []cli.Flag{flagCertID},
				Action: runGet,
			},
			{
				Name:   "issuers",
				Usage:  "Print the issuer allow-list",
				Action: runIssuers,
			},
			{
				Name:  "propose",
				Usage: "Propose an issuer allow-list change (admin only)",
				Flags: []cli.Flag{
					flagCaller,
					&cli.StringFlag{Name: "action", Required: true, Usage: "add or rotate"},
					&cli.StringFlag{Name: "issuer", Usage: "issuer to rotate out (for rotate)"},
					&cli.StringFlag{Name: "new-issuer", Required: true, Usage: "issuer to add or rotate in"},
				},
				Action: runPropose,
			},
			{
				Name:   "approve",
				Usage:  "Approve a governance proposal as an issuer",
				Flags:  []cli.Flag{flagCaller, &cli.Uint64Flag{Name: "proposal-id", Required: true}},
				Action: runApprove,
			},
			{
				Name:   "execute",
				Usage:  "Execute a governance proposal at threshold (admin only)",
				Flags:  []cli.Flag{flagCaller, &cli.Uint64Flag{Name: "proposal-id", Required: true}},
				Action: runExecute,
			},
			{
				Name:   "fetch",
				Usage:  "Fetch a certified document from storage and verify it against the certificate",
				Flags:  []cli.Flag{flagCertID, flagPassphrase, flagStorage, &cli.StringFlag{Name: "out", Usage: "write the document to this path instead of stdout"}},
				Action: runFetch,
			},
			{
				Name:   "set-threshold",
				Usage:  "Set the governance approval threshold (admin only)",
				Flags:  []cli.Flag{flagCaller, &cli.Uint64Flag{Name: "threshold", Required: true}},
				Action: runSetThreshold,
			},
			{
				Name:   "events",
				Usage:  "Replay the audit log",
				Flags:  []cli.Flag{&cli.Uint64Flag{Name: "after", Usage: "replay events after this sequence"}},
				Action: runEvents,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) *clients.RegistryClient {
	return clients.NewRegistryClient(cCtx.String(flagServerAddr.Name))
}

func signingDomain(cCtx *cli.Context) (cryptoutils.SigningDomain, error) {
	registryAddr, err := interfaces.NewAddressFromHex(cCtx.String(flagRegistryAddr.Name))
	if err != nil {
		return cryptoutils.SigningDomain{}, fmt.Errorf("could not parse registry address: %w", err)
	}
	return cryptoutils.DefaultDomain(cCtx.Uint64(flagChainID.Name), registryAddr), nil
}

func runIssue(cCtx *cli.Context) error {
	domain, err := signingDomain(cCtx)
	if err != nil {
		return err
	}

	key, err := crypto.HexToECDSA(cCtx.String(flagIssuerKey.Name))
	if err != nil {
		return fmt.Errorf("could not parse issuer key: %w", err)
	}

	document, err := os.ReadFile(cCtx.String(flagDocument.Name))
	if err != nil {
		return fmt.Errorf("could not read document: %w", err)
	}

	logger := common.SetupLogger(&common.LoggingOpts{Service: "registry-client"})

	locations := make([]interfaces.StorageBackendLocation, 0)
	for _, uri := range cCtx.StringSlice(flagStorage.Name) {
		locations = append(locations, interfaces.StorageBackendLocation(uri))
	}

	factory := storage.NewStorageBackendFactory(logger)
	backend, err := factory.CreateMultiBackend(locations)
	if err != nil {
		return fmt.Errorf("could not create storage backend: %w", err)
	}

	pipeline := docpipeline.NewPipeline(backend, logger)
	stored, err := pipeline.Ingest(context.Background(), document, []byte(cCtx.String(flagPassphrase.Name)))
	if err != nil {
		return fmt.Errorf("could not ingest document: %w", err)
	}

	salt, err := cryptoutils.NewSalt()
	if err != nil {
		return fmt.Errorf("could not generate salt: %w", err)
	}

	issuedAt := cCtx.Uint64(flagIssuedAt.Name)
	if issuedAt == 0 {
		issuedAt = uint64(time.Now().Unix())
	}

	req, err := clients.BuildSignedIssueRequest(domain, key, stored.DocHash, interfaces.Salt(salt), issuedAt, stored.StorageURI)
	if err != nil {
		return err
	}

	cert, err := newClient(cCtx).Issue(req)
	if err != nil {
		return err
	}

	return printJSON(cert)
}

func runRevoke(cCtx *cli.Context) error {
	domain, err := signingDomain(cCtx)
	if err != nil {
		return err
	}

	key, err := crypto.HexToECDSA(cCtx.String(flagIssuerKey.Name))
	if err != nil {
		return fmt.Errorf("could not parse issuer key: %w", err)
	}

	certID, err := interfaces.NewCertificateIDFromHex(cCtx.String(flagCertID.Name))
	if err != nil {
		return fmt.Errorf("could not parse certificate ID: %w", err)
	}

	req, err := clients.BuildSignedRevokeRequest(domain, key, certID, cCtx.String(flagReason.Name))
	if err != nil {
		return err
	}

	cert, err := newClient(cCtx).Revoke(certID.String(), req)
	if err != nil {
		return err
	}

	return printJSON(cert)
}

func runStatus(cCtx *cli.Context) error {
	status, err := newClient(cCtx).Status(cCtx.String(flagCertID.Name))
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}

func runGet(cCtx *cli.Context) error {
	cert, err := newClient(cCtx).Certificate(cCtx.String(flagCertID.Name))
	if err != nil {
		return err
	}
	return printJSON(cert)
}

func runIssuers(cCtx *cli.Context) error {
	issuers, err := newClient(cCtx).Issuers()
	if err != nil {
		return err
	}
	for _, issuer := range issuers {
		fmt.Println(issuer)
	}
	return nil
}

func runPropose(cCtx *cli.Context) error {
	proposal, err := newClient(cCtx).Propose(httpserver.ProposalRequest{
		Caller:    cCtx.String(flagCaller.Name),
		Action:    cCtx.String("action"),
		Issuer:    cCtx.String("issuer"),
		NewIssuer: cCtx.String("new-issuer"),
	})
	if err != nil {
		return err
	}
	return printJSON(proposal)
}

func runApprove(cCtx *cli.Context) error {
	proposal, err := newClient(cCtx).ApproveProposal(cCtx.Uint64("proposal-id"), cCtx.String(flagCaller.Name))
	if err != nil {
		return err
	}
	return printJSON(proposal)
}

func runExecute(cCtx *cli.Context) error {
	proposal, err := newClient(cCtx).ExecuteProposal(cCtx.Uint64("proposal-id"), cCtx.String(flagCaller.Name))
	if err != nil {
		return err
	}
	return printJSON(proposal)
}

func runFetch(cCtx *cli.Context) error {
	cert, err := newClient(cCtx).Certificate(cCtx.String(flagCertID.Name))
	if err != nil {
		return err
	}

	docHash, err := interfaces.NewDocHashFromHex(cert.DocHash)
	if err != nil {
		return fmt.Errorf("could not parse certificate document hash: %w", err)
	}

	logger := common.SetupLogger(&common.LoggingOpts{Service: "registry-client"})

	locations := make([]interfaces.StorageBackendLocation, 0)
	for _, uri := range cCtx.StringSlice(flagStorage.Name) {
		locations = append(locations, interfaces.StorageBackendLocation(uri))
	}

	factory := storage.NewStorageBackendFactory(logger)
	backend, err := factory.CreateMultiBackend(locations)
	if err != nil {
		return fmt.Errorf("could not create storage backend: %w", err)
	}

	pipeline := docpipeline.NewPipeline(backend, logger)
	document, err := pipeline.Retrieve(context.Background(), cert.StorageURI, docHash, []byte(cCtx.String(flagPassphrase.Name)))
	if err != nil {
		return fmt.Errorf("could not retrieve document: %w", err)
	}

	if out := cCtx.String("out"); out != "" {
		return os.WriteFile(out, document, 0644)
	}
	_, err = os.Stdout.Write(document)
	return err
}

func runSetThreshold(cCtx *cli.Context) error {
	if err := newClient(cCtx).SetThreshold(cCtx.String(flagCaller.Name), cCtx.Uint64("threshold")); err != nil {
		return err
	}
	fmt.Println("threshold updated")
	return nil
}

func runEvents(cCtx *cli.Context) error {
	events, err := newClient(cCtx).Events(cCtx.Uint64("after"))
	if err != nil {
		return err
	}
	return printJSON(events)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
