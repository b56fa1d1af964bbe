// Package docstore defines the single-document storage contract used to
// persist the ban list.
//
// A Store holds exactly one document at a fixed location. Every read returns
// the content together with an opaque revision, and every write must present
// the revision it was based on. A write whose revision no longer matches the
// stored document is rejected with ErrConflict instead of being merged.
//
// # Adapters
//
//   - github: file in a GitHub repository, revision is the blob SHA
//   - s3: object in an S3-compatible bucket, revision is the ETag
//   - local: file on any afero filesystem, revision is a SHA-256 digest
//   - database: row in a SQL table, revision is a version counter
package docstore
