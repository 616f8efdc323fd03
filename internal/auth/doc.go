// Package auth provides token verification for agentgate.
//
// # Authentication
//
// Credentialed agent types and admin API clients authenticate with JWT
// tokens signed with HS256 using the configured jwt_secret. The verifier
// extracts the subject claim as the caller identity.
//
// Agent types listed in agents.credentialed_types must present a token
// before the protocol handshake runs; other types connect without one.
//
// # Usage
//
//	verifier := auth.NewJWTVerifier(secret)
//	subject, err := verifier.Verify(tokenString)
//
// Token generation is also exposed for operator tooling:
//
//	token, err := verifier.Generate("agent-1", time.Hour)
package auth
