// Package krypto holds the cryptographic primitives of the sign-in service:
// AES-GCM sealing of provider tokens, HKDF key derivation from the application
// secret and random token generation for OAuth state and PKCE verifiers.
//
// Keys for separate purposes are never shared:
//
//	encKey, err := krypto.KeyFor(cfg.TokenEncryptionKey, cfg.AppSecret, krypto.PurposeTokenEncryption, 32)
//	tokens, err := krypto.NewTokenCipher(encKey)
//	sealed, err := tokens.EncryptToken(accessToken)
package krypto
