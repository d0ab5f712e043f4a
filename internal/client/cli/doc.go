// Package cli provides the interactive authctl command-line client.
//
// It wires configuration, the local session store, the auth API client, and
// an interactive REPL. Typical flow: resume the saved session (or prompt for
// credentials), start a background connectivity watcher, and execute user
// commands.
//
// Key features:
//   - Register, verify email, resend the verification code
//   - Login / Logout (one session or all of them)
//   - List and revoke active sessions
//   - Show and edit the profile, list users, delete the account
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher, and runREPL for details.
package cli
