// Package storage provides a content-addressed storage system with pluggable backends.
//
// The storage package offers a unified interface for storing and retrieving
// diploma documents and certificate metadata identified by SHA-256 hash across
// multiple storage backends:
//
//   - File system storage for local development and testing
//   - S3-compatible storage for cloud deployments
//   - IPFS storage for decentralized content
//   - Vault storage for documents gated by Vault policies
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/diploma-registry/documents/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - ipfs://ipfs.example.com:5001/
//   - vault://vault.example.com:8200/secret/diplomas
//
// # Content Addressing
//
// Content is stored and retrieved using content addressing, where the content
// identifier is the SHA-256 hash of the data. Different content types
// (documents and metadata) are stored in separate namespaces.
//
// Note that the storage content ID is distinct from the keccak-256 document
// hash that is bound into a certificate. The docpipeline package maintains
// the mapping between the two.
//
// # Vault Storage
//
// The VaultBackend stores content in HashiCorp Vault's KV v2 secret engine
// with path format: {mount}/data/{path}/{type}/{content_id}. It authenticates
// with a Vault token, taken from the VAULT_TOKEN environment variable when
// the URI doesn't carry one.
//
// # Multi-Backend Example
//
//	factory := storage.NewStorageBackendFactory(logger)
//	locations := []interfaces.StorageBackendLocation{
//	    "file:///var/lib/diploma-registry/",
//	    "s3://diploma-archive/certs/?region=eu-central-1",
//	    "vault://vault.example.com:8200/secret/diplomas",
//	}
//	multiBackend, err := factory.CreateMultiBackend(locations)
package storage
