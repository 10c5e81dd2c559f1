// Package auth implements request authentication and session authorization
// for the wordnest API: it issues, verifies, refreshes, and (via account
// status) revokes bearer credentials, enforces password policy, and gates
// route access by role.
//
// Tokens are self-contained HMAC-signed JWTs. There is no server-side session
// store, so a token cannot be revoked before its natural expiry; operations
// that need stronger guarantees (VerifyToken, RefreshToken) re-read the
// account on every call so a suspended or deleted account is rejected even
// while its token is still cryptographically valid.
package auth
