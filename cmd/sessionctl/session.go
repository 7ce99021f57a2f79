package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dealdesk/sessioncore/internal/bootstrap"
	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
	autherrors "github.com/dealdesk/sessioncore/internal/errors"
	"github.com/dealdesk/sessioncore/internal/ports"
)

// withStack builds the session stack, hydrates a persisted session, and
// hands it to fn. All commands share this entry.
func withStack(cmdCtx *commandContext, fn func(stack *bootstrap.SessionStack) error) error {
	stack, err := bootstrap.BuildSessionStack(cmdCtx.Ctx, cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := stack.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("close session stack", "error", closeErr)
		}
	}()

	if err := stack.Hydrator.Run(cmdCtx.Ctx); err != nil && !autherrors.IsStoreCorrupt(err) {
		return fmt.Errorf("hydrate session: %w", err)
	}

	// Commands are one-shot; wait for validation so the state we print or
	// act on is settled.
	select {
	case <-stack.Hydrator.Validated():
	case <-cmdCtx.Ctx.Done():
		return cmdCtx.Ctx.Err()
	}

	return fn(stack)
}

func runLogin(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}
	if *password == "" {
		var err error
		*password, err = promptLine("Password: ")
		if err != nil {
			return err
		}
	}

	return withStack(cmdCtx, func(stack *bootstrap.SessionStack) error {
		sess, err := stack.Manager.Login(cmdCtx.Ctx, *email, *password)
		if err != nil {
			return err
		}

		if sess.Status == domainauth.StatusAwaitingSecondFactor {
			code, promptErr := promptLine("Verification code: ")
			if promptErr != nil {
				return promptErr
			}
			sess, err = stack.Manager.VerifySecondFactor(cmdCtx.Ctx, code)
			if err != nil {
				return err
			}
		}

		return printSession(sess)
	})
}

func runStatus(cmdCtx *commandContext, _ []string) error {
	return withStack(cmdCtx, func(stack *bootstrap.SessionStack) error {
		return printSession(stack.Manager.CurrentSession())
	})
}

func runRefresh(cmdCtx *commandContext, _ []string) error {
	return withStack(cmdCtx, func(stack *bootstrap.SessionStack) error {
		if err := stack.Manager.Refresh(cmdCtx.Ctx); err != nil {
			return err
		}
		return printSession(stack.Manager.CurrentSession())
	})
}

func runLogout(cmdCtx *commandContext, _ []string) error {
	return withStack(cmdCtx, func(stack *bootstrap.SessionStack) error {
		if err := stack.Manager.Logout(cmdCtx.Ctx); err != nil {
			return err
		}
		return writef(os.Stdout, "logged out\n")
	})
}

func runRegister(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	first := fs.String("first-name", "", "first name")
	last := fs.String("last-name", "", "last name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}
	if *password == "" {
		var err error
		*password, err = promptLine("Password: ")
		if err != nil {
			return err
		}
	}

	return withStack(cmdCtx, func(stack *bootstrap.SessionStack) error {
		sess, err := stack.Manager.Register(cmdCtx.Ctx, ports.RegisterInput{
			FirstName: *first,
			LastName:  *last,
			Email:     *email,
			Password:  *password,
		})
		if err != nil {
			return err
		}
		return printSession(sess)
	})
}

func runResetPassword(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}

	return withStack(cmdCtx, func(stack *bootstrap.SessionStack) error {
		if err := stack.Manager.ResetPassword(cmdCtx.Ctx, *email); err != nil {
			return err
		}
		return writef(os.Stdout, "if the account exists, a reset email is on its way\n")
	})
}

func runTwoFactorSetup(cmdCtx *commandContext, _ []string) error {
	return withStack(cmdCtx, func(stack *bootstrap.SessionStack) error {
		if err := stack.Manager.BeginTwoFactorSetup(cmdCtx.Ctx); err != nil {
			return err
		}
		code, err := promptLine("Enter the first code from your authenticator: ")
		if err != nil {
			return err
		}
		enabled, err := stack.Manager.ConfirmTwoFactorSetup(cmdCtx.Ctx, code)
		if err != nil {
			return err
		}
		if !enabled {
			return errors.New("enrollment not confirmed by backend")
		}
		return writef(os.Stdout, "second factor enabled\n")
	})
}

func runTwoFactorStatus(cmdCtx *commandContext, _ []string) error {
	return withStack(cmdCtx, func(stack *bootstrap.SessionStack) error {
		status, err := stack.Manager.SyncTwoFactorStatus(cmdCtx.Ctx)
		if err != nil {
			return err
		}
		if err := writef(os.Stdout, "enabled:\t%v\n", status.Enabled); err != nil {
			return err
		}
		if !status.LastUsedAt.IsZero() {
			return writef(os.Stdout, "last used:\t%s\n", status.LastUsedAt.Format(time.RFC3339))
		}
		return nil
	})
}

// runWatch keeps the process alive with the refresh scheduler running, which
// is how a host application embeds the stack.
func runWatch(cmdCtx *commandContext, _ []string) error {
	return withStack(cmdCtx, func(stack *bootstrap.SessionStack) error {
		sess := stack.Manager.CurrentSession()
		if !sess.IsAuthenticated() {
			return errors.New("no session to watch; run login first")
		}

		unsubscribe := stack.Manager.Subscribe(func(s domainauth.Session) {
			cmdCtx.Logger.Info("session transition", "status", string(s.Status))
		})
		defer unsubscribe()

		err := stack.Scheduler.Run(cmdCtx.Ctx)
		if errors.Is(err, cmdCtx.Ctx.Err()) {
			return nil
		}
		return err
	})
}

func printSession(sess domainauth.Session) error {
	if err := writef(os.Stdout, "status:\t%s\n", string(sess.Status)); err != nil {
		return err
	}
	if sess.User != nil {
		if err := writef(os.Stdout, "user:\t%s <%s> (%s)\n",
			strings.TrimSpace(sess.User.FirstName+" "+sess.User.LastName),
			sess.User.Email,
			string(sess.User.Role),
		); err != nil {
			return err
		}
	}
	if !sess.ExpiresAt.IsZero() {
		if err := writef(os.Stdout, "expires:\t%s\n", sess.ExpiresAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	if sess.LastError != nil {
		return writef(os.Stdout, "last error:\t%v\n", sess.LastError)
	}
	return nil
}

func promptLine(prompt string) (string, error) {
	if err := writef(os.Stderr, "%s", prompt); err != nil {
		return "", err
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
