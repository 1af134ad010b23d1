// Package auth resolves which player is making a request.
//
// Two Authenticator implementations exist:
//   - TokenAuthenticator verifies HS256 JWTs signed with a shared secret.
//     The token subject is the player ID. Used when UNO_JWT_SECRET is set.
//   - HeaderAuthenticator trusts the X-Player-ID header. Meant for local
//     development and tests.
//
// Tokens for development can be minted with `unoctl token`.
package auth
