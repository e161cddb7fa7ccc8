// Package secrets defines the encrypt/decrypt oracle the core depends on for
// at-rest partner passwords and other sensitive configuration values. Salt
// and key material lifecycle are outside the core's concern: a concrete
// Oracle must decrypt identically on every cluster instance sharing the same
// key material (spec §6 "cluster-safe secret material").
package secrets

import "context"

// Oracle turns plaintext into an opaque, storable token and back. The core
// never inspects a token's internal structure.
type Oracle interface {
	Encrypt(ctx context.Context, plaintext string) (token string, err error)
	Decrypt(ctx context.Context, token string) (plaintext string, err error)
}
