// Package keymanager owns a user's long-term key pair.
//
// The key pair (X25519 for encryption, Ed25519 for signing) is kept as a
// keypair document in the user's encrypted store and its public half is
// published to the provider's key directory, signed. Mail is sealed to a
// recipient's published X25519 key and opened with the local private key.
package keymanager
