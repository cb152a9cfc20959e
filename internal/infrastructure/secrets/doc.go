// Package secrets encrypts and decrypts credential values stored in the
// printrelay configuration file.
//
// Values are AES encrypted with github.com/firdasafridi/gocrypt. The key is
// supplied out of band (PRINTRELAY_CREDENTIALS_KEY) as 64 hex characters, for
// example from `openssl rand -hex 32`. Ciphertext is produced by
// `printrelay encrypt-secret`.
package secrets
