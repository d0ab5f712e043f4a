package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Verify(ctx context.Context) error
	Resend(ctx context.Context) error
	Available(ctx context.Context, args []string) error
	Profile(ctx context.Context) error
	UpdateProfile(ctx context.Context) error
	Users(ctx context.Context, args []string) error
	Sessions(ctx context.Context) error
	Revoke(ctx context.Context, args []string) error
	RevokeOthers(ctx context.Context) error
	Logout(ctx context.Context, everywhere bool) error
	DeleteAccount(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the authctl CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Always:
//	  - help                  show available commands
//	  - verify                confirm an email with the mailed code
//	  - resend                mail a new verification code
//	  - check <login> [email] check whether a login or email is taken
//	  - exit | quit           leave the program
//
//	Not logged in:
//	  - register              create an account
//	  - login                 authenticate
//
//	Logged in:
//	  - profile               show the signed-in user
//	  - update                change email, age or description
//	  - users [page] [filter] list users
//	  - sessions              list active sessions
//	  - revoke <id>           end one session
//	  - revoke-others         end every session but this one
//	  - logout [all]          end this session, or all of them
//	  - delete-account        delete the user
//
// Any errors returned by command handlers are ignored here; handlers
// report their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("authctl %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: profile, update, users, sessions, revoke, revoke-others, verify, resend, check, logout, delete-account, exit")
			} else {
				printlnFn("Available commands: register, login, verify, resend, check, exit")
			}

		case "verify":
			_ = a.Verify(ctx)

		case "resend":
			_ = a.Resend(ctx)

		case "check":
			_ = a.Available(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		case "register", "login":
			if a.isLoggedIn() {
				printlnFn("Already logged in, use logout first")
				continue
			}
			if cmd == "register" {
				_ = a.Register(ctx)
			} else {
				_ = a.Login(ctx)
			}

		case "profile", "update", "users", "sessions", "revoke", "revoke-others", "logout", "delete-account":
			if !a.isLoggedIn() {
				printlnFn("Please log in first")
				continue
			}
			switch cmd {
			case "profile":
				_ = a.Profile(ctx)
			case "update":
				_ = a.UpdateProfile(ctx)
			case "users":
				_ = a.Users(ctx, args)
			case "sessions":
				_ = a.Sessions(ctx)
			case "revoke":
				_ = a.Revoke(ctx, args)
			case "revoke-others":
				_ = a.RevokeOthers(ctx)
			case "logout":
				_ = a.Logout(ctx, len(args) > 0 && args[0] == "all")
			case "delete-account":
				_ = a.DeleteAccount(ctx)
			}

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
