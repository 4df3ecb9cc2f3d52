// Package auth provides authentication and authorisation for rxcore.
//
// It implements a flat three-role model (admin, doctor, patient) with:
//   - bcrypt password hashing
//   - HS256 access and refresh tokens signed with separate secrets
//   - server-side refresh token records, stored as SHA-256 digests
//   - single-use refresh tokens: rotation consumes the presented token and
//     stores its replacement in one transaction
//
// Access tokens are validated by signature and expiry only. A refresh must
// pass both the signature check and the store check; a token can be
// cryptographically valid yet already consumed or logged out.
//
// Route authorisation is an exact role match via RoleSet. No role implies
// another.
package auth
