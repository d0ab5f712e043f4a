package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/authkeeper/internal/client/models"
)

const timeLayout = "2006-01-02 15:04"

func (a *App) Profile(ctx context.Context) error {
	u, err := a.authService.Profile(ctx)
	if err != nil {
		return a.report(err)
	}
	a.printUser(u)
	return nil
}

func (a *App) printUser(u *models.User) {
	a.printf("Login:       %s\n", u.Login)
	a.printf("Email:       %s (verified: %t)\n", u.Email, u.IsVerified)
	a.printf("Role:        %s\n", u.Role)
	a.printf("Age:         %d\n", u.Age)
	if u.Description != nil {
		a.printf("Description: %s\n", *u.Description)
	}
	a.printf("Member since %s\n", u.CreatedAt.Local().Format(timeLayout))
}

// UpdateProfile asks for each editable field; an empty answer keeps it.
// Changing the email requires verifying the new address.
func (a *App) UpdateProfile(ctx context.Context) error {
	var upd models.ProfileUpdate

	email, err := getSimpleText(a.reader, "New email (empty to keep)", a.out)
	if err != nil {
		return err
	}
	if email != "" {
		upd.Email = &email
	}

	ageText, err := getSimpleText(a.reader, "New age (empty to keep)", a.out)
	if err != nil {
		return err
	}
	if ageText != "" {
		age, err := strconv.Atoi(ageText)
		if err != nil {
			a.printf("Age must be a number\n")
			return err
		}
		upd.Age = &age
	}

	description, err := getMultiline(a.reader, "New description (empty to keep)", a.out)
	if err != nil {
		return err
	}
	if description != "" {
		upd.Description = &description
	}

	if upd.Email == nil && upd.Age == nil && upd.Description == nil {
		a.printf("Nothing to change\n")
		return nil
	}

	u, err := a.authService.UpdateProfile(ctx, upd)
	if err != nil {
		return a.report(err)
	}

	a.printUser(u)
	if upd.Email != nil {
		a.printf("A verification code was sent to %s\n", *upd.Email)
	}
	return nil
}

// Users lists registered users: users [page] [loginFilter].
func (a *App) Users(ctx context.Context, args []string) error {
	page, filter := 1, ""
	if len(args) > 0 {
		p, err := strconv.Atoi(args[0])
		if err != nil || p < 1 {
			a.printf("Usage: users [page] [filter]\n")
			return errors.New("invalid page")
		}
		page = p
	}
	if len(args) > 1 {
		filter = args[1]
	}

	res, err := a.authService.ListUsers(ctx, page, 0, filter)
	if err != nil {
		return a.report(err)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLOGIN\tEMAIL\tVERIFIED")
	for _, u := range res.Data {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", u.ID, u.Login, u.Email, u.IsVerified)
	}
	_ = tw.Flush()
	a.printf("page %d of %d, %d users total\n", res.Page, res.TotalPages, res.Total)
	return nil
}

func (a *App) Sessions(ctx context.Context) error {
	sessions, err := a.authService.Sessions(ctx)
	if err != nil {
		return a.report(err)
	}

	current := a.authService.CurrentSessionID()

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tIP\tCLIENT\tCREATED\tEXPIRES\t")
	for _, s := range sessions {
		mark := ""
		if s.ID == current {
			mark = "(this session)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", s.ID, deref(s.IPAddress), shorten(deref(s.UserAgent), 40),
			s.CreatedAt.Local().Format(timeLayout), s.ExpiresAt.Local().Format(timeLayout), mark)
	}
	return tw.Flush()
}

func (a *App) Revoke(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printf("Usage: revoke <session id>\n")
		return errors.New("session id required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		a.printf("Session id must be a positive number\n")
		return errors.New("invalid session id")
	}
	if id == a.authService.CurrentSessionID() {
		a.printf("This is the current session, use 'logout' instead\n")
		return errors.New("current session")
	}

	if err := a.authService.RevokeSession(ctx, id); err != nil {
		return a.report(err)
	}
	a.printf("Session %d revoked\n", id)
	return nil
}

func (a *App) RevokeOthers(ctx context.Context) error {
	n, err := a.authService.RevokeOtherSessions(ctx)
	if err != nil {
		return a.report(err)
	}
	a.printf("%d other session(s) revoked\n", n)
	return nil
}

// DeleteAccount asks for confirmation, deletes the user and logs out.
func (a *App) DeleteAccount(ctx context.Context) error {
	answer, err := getSimpleText(a.reader, "Type 'yes' to delete your account", a.out)
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "yes") {
		a.printf("Cancelled\n")
		return nil
	}

	if err := a.authService.DeleteAccount(ctx); err != nil {
		return a.report(err)
	}
	a.userName = ""
	a.printf("Account deleted\n")
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

