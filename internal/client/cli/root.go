package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/dmitrijs2005/authkeeper/internal/client/client"
)

func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	if m := a.currentMode(); m != "" {
		s = s + string(m)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// resume picks up the session saved by a previous run, if any.
func (a *App) resume(ctx context.Context) {
	login, err := a.authService.Restore(ctx)
	switch {
	case err == nil && login != "":
		a.userName = login
		a.setMode(ModeOnline)
		log.Printf("Resumed session of %s", login)
	case errors.Is(err, client.ErrUnavailable):
		a.userName = login
		a.setMode(ModeOffline)
	case errors.Is(err, client.ErrUnauthorized):
		log.Printf("Saved session has expired, please log in again")
	case err != nil:
		log.Printf("Could not resume session: %s", err.Error())
	}
}

// Root resumes a saved session, starts the connectivity watcher and runs the
// REPL until the user exits.
func (a *App) Root(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Println("Welcome to authctl (type 'help' for commands)")

	a.resume(ctx)

	go func() {
		a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	}()

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}
