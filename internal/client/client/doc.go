// Package client contains client-side building blocks for the authctl CLI.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface) for the
//     auth server: Register, Login, Logout, email verification, session
//     management, profile and Ping.
//  2. A concrete HTTP implementation (see HTTPClient) that injects the access
//     token, transparently refreshes it when the server answers
//     "token_expired", and retries requests that failed on the network.
//  3. Local persistence bootstrap utilities (InitDatabase, RunMigrations) that
//     open an SQLite database and apply embedded goose migrations.
//
// # Error Handling
//
// Non-2xx answers are returned as *APIError. Common conditions can be matched
// with errors.Is: ErrUnavailable, ErrUnauthorized, ErrNotLoggedIn.
//
// Concurrency & Contexts
//
// HTTPClient is safe for concurrent use. All operations accept
// context.Context and honor cancellation and timeouts.
package client
