// Package catalog publishes songs and albums whose binary payloads live in
// object storage while their metadata lives in a catalog repository.
//
// It exposes a single Service interface that orchestrates validation, asset
// upload and catalog mutation. Repository implementations (memory, Postgres,
// MongoDB) and blob stores (memory, filesystem, S3) are provided under
// subpackages.
//
// Referential Integrity
//
// A Song may reference an Album through AlbumID; the Album lists its songs in
// Album.Songs. The two sides are kept in agreement by the Service alone. No
// multi-document transaction is assumed: every operation orders its steps so
// that a failure leaves a recoverable state, and compensates (deletes the
// just-created record, discards uploaded blobs) when a later step fails.
package catalog
