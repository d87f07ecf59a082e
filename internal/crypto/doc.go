// Package crypto exposes the minimal primitives used by sealpost.
//
// Contents
//
//   - X25519 key generation and Diffie–Hellman (GenerateX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - Sealed boxes for mail: ephemeral X25519 + HKDF-SHA256 +
//     ChaCha20-Poly1305 (Seal, Open)
//   - Secret boxes for stored documents: XChaCha20-Poly1305 with a random
//     nonce (SealSecret, OpenSecret)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Key types are the fixed-size arrays defined in internal/domain. Callers
// should treat returned secrets as sensitive and rely on Wipe when practical.
package crypto
