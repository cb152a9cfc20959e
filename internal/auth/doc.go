// Package auth issues and validates the bearer tokens that protect the
// printrelay HTTP API.
//
// Tokens are HS256 JWTs signed with security.jwt.secret. There is no user
// store: an operator mints a token with "printrelay token" and hands it to
// whatever drives the API (a dashboard, a script, the printer host).
//
//	token, err := auth.GenerateToken("octoprint-host", secret, 30*24*time.Hour)
//	claims, err := auth.ParseToken(token, secret)
package auth
