package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn bool

	calls []string
	args  [][]string
	all   bool
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, name)
	f.args = append(f.args, args)
	return nil
}

func (f *fakeExec) isLoggedIn() bool                    { return f.loggedIn }
func (f *fakeExec) Register(ctx context.Context) error  { return f.record("register", nil) }
func (f *fakeExec) Verify(ctx context.Context) error    { return f.record("verify", nil) }
func (f *fakeExec) Resend(ctx context.Context) error    { return f.record("resend", nil) }
func (f *fakeExec) Profile(ctx context.Context) error   { return f.record("profile", nil) }
func (f *fakeExec) Sessions(ctx context.Context) error  { return f.record("sessions", nil) }
func (f *fakeExec) UpdateProfile(context.Context) error { return f.record("update", nil) }
func (f *fakeExec) RevokeOthers(context.Context) error  { return f.record("revoke-others", nil) }
func (f *fakeExec) DeleteAccount(context.Context) error { return f.record("delete-account", nil) }
func (f *fakeExec) Available(_ context.Context, args []string) error {
	return f.record("check", args)
}
func (f *fakeExec) Users(_ context.Context, args []string) error  { return f.record("users", args) }
func (f *fakeExec) Revoke(_ context.Context, args []string) error { return f.record("revoke", args) }
func (f *fakeExec) Login(ctx context.Context) error {
	f.loggedIn = true
	return f.record("login", nil)
}
func (f *fakeExec) Logout(_ context.Context, everywhere bool) error {
	f.loggedIn = false
	f.all = everywhere
	return f.record("logout", nil)
}

func silencePrintln(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSpace(fmt.Sprintln(a...)))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func run(t *testing.T, exec *fakeExec, lines ...string) []string {
	t.Helper()
	out := silencePrintln(t)
	sc := bufio.NewScanner(strings.NewReader(strings.Join(lines, "\n")))
	runREPL(context.Background(), exec, func() string { return "status" }, sc)
	return *out
}

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	exec := &fakeExec{}

	run(t, exec,
		"help",
		"login",
		"help",
		"profile",
		"sessions",
		"revoke 12",
		"users 2 al",
		"revoke-others",
		"foobar",
		"logout all",
		"exit",
	)

	assert.Equal(t, []string{"login", "profile", "sessions", "revoke", "users", "revoke-others", "logout"}, exec.calls)
	assert.Equal(t, []string{"12"}, exec.args[3])
	assert.Equal(t, []string{"2", "al"}, exec.args[4])
	assert.True(t, exec.all)
	assert.False(t, exec.loggedIn)
}

func TestRunREPL_GuardsByLoginState(t *testing.T) {
	exec := &fakeExec{}
	out := run(t, exec, "sessions", "verify", "check alice", "quit")

	assert.Equal(t, []string{"verify", "check"}, exec.calls)
	assert.Contains(t, out, "Please log in first")
	assert.Contains(t, out, "Bye!")

	exec = &fakeExec{loggedIn: true}
	out = run(t, exec, "login", "register", "exit")
	assert.Empty(t, exec.calls)
	assert.Contains(t, out, "Already logged in, use logout first")
}

func TestRunREPL_UnknownAndEOF(t *testing.T) {
	exec := &fakeExec{loggedIn: true}
	out := run(t, exec, "", "get 42")

	assert.Empty(t, exec.calls)
	assert.Contains(t, out, "Unknown command: get")
}
