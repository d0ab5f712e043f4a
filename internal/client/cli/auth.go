package cli

import (
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/dmitrijs2005/authkeeper/internal/client/client"
	"github.com/dmitrijs2005/authkeeper/internal/client/models"
	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// getSimpleText, getPassword and getMultiline are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword
var getMultiline = GetMultiline

// Register prompts for the account fields and creates the user. The server
// mails a verification code to the given address.
//
// The password byte slice is securely wiped before returning.
func (a *App) Register(ctx context.Context) error {
	login, err := getSimpleText(a.reader, "Enter login", a.out)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	ageText, err := getSimpleText(a.reader, "Enter age (optional)", a.out)
	if err != nil {
		return err
	}
	age := 0
	if ageText != "" {
		if age, err = strconv.Atoi(ageText); err != nil {
			a.printf("Age must be a number\n")
			return err
		}
	}

	description, err := getMultiline(a.reader, "Enter description (optional)", a.out)
	if err != nil {
		return err
	}

	reg := models.Registration{Login: login, Email: email, Password: string(password), Age: age}
	if description != "" {
		reg.Description = &description
	}

	if _, err := a.authService.Register(ctx, reg); err != nil {
		return a.report(err)
	}

	a.printf("Registered! A verification code was sent to %s, use 'verify' to confirm it.\n", email)
	return nil
}

// Login prompts the user for credentials and tries to authenticate.
//
// On success the session is saved locally and the connectivity Mode is set
// to ModeOnline. The password is securely wiped before returning.
func (a *App) Login(ctx context.Context) error {
	login, err := getSimpleText(a.reader, "Enter login", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if _, err := a.authService.Login(ctx, login, password); err != nil {
		if client.IsCode(err, "email_not_verified") {
			a.printf("Email is not verified yet, use 'verify' or 'resend'\n")
			return err
		}
		log.Printf("Login unsuccessful")
		return a.report(err)
	}

	log.Printf("Login successful")
	a.userName = login
	a.setMode(ModeOnline)
	return nil
}

func (a *App) Verify(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	code, err := getSimpleText(a.reader, "Enter verification code", a.out)
	if err != nil {
		return err
	}

	if err := a.authService.VerifyEmail(ctx, email, code); err != nil {
		if client.IsCode(err, "code_expired") {
			a.printf("The code has expired, use 'resend' to get a new one\n")
			return err
		}
		return a.report(err)
	}

	a.printf("Email verified\n")
	return nil
}

func (a *App) Resend(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	if err := a.authService.ResendVerification(ctx, email); err != nil {
		if client.IsCode(err, "rate_limited") {
			a.printf("Too many requests, please wait before asking for another code\n")
			return err
		}
		return a.report(err)
	}

	a.printf("Verification code sent to %s\n", email)
	return nil
}

// Available reports whether a login and, optionally, an email are taken.
func (a *App) Available(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printf("Usage: check <login> [email]\n")
		return errors.New("login required")
	}
	login, email := args[0], ""
	if len(args) > 1 {
		email = args[1]
	}

	res, err := a.authService.CheckAvailability(ctx, login, email)
	if err != nil {
		return a.report(err)
	}

	a.printf("login %q: %s\n", login, takenText(res.LoginExists))
	if email != "" {
		a.printf("email %q: %s\n", email, takenText(res.EmailExists))
	}
	return nil
}

func takenText(taken bool) string {
	if taken {
		return "taken"
	}
	return "available"
}

// Logout ends the current session, or every session when everywhere is set,
// and forgets the saved credentials.
func (a *App) Logout(ctx context.Context, everywhere bool) error {
	if err := a.authService.Logout(ctx, everywhere); err != nil {
		return a.report(err)
	}
	a.userName = ""
	a.printf("Logged out\n")
	return nil
}
