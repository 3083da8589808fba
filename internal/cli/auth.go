package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/dendrite/internal/errcode"
	"github.com/aidanlsb/dendrite/internal/identity"
	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/ui"
)

var passwordFlag string

func passwordFromFlagOrPrompt() (string, error) {
	if passwordFlag != "" {
		return passwordFlag, nil
	}
	if isJSONOutput() {
		return "", handleErrorMsg(errcode.MissingArgument, "password is required", "Pass --password in JSON mode")
	}
	return readPassword("Password: ")
}

func runAuth(cmd *cobra.Command, email string, action func(*identity.Service, string, string) (model.User, error), verb string) error {
	password, err := passwordFromFlagOrPrompt()
	if err != nil {
		return err
	}
	db, err := openStore()
	if err != nil {
		return handleError(err, "Check the database path")
	}
	defer db.Close()

	user, err := action(identityService(db), email, password)
	if err != nil {
		return handleError(err, "")
	}
	if isJSONOutput() {
		outputSuccess(user, nil)
		return nil
	}
	fmt.Println(ui.Successf("%s as %s", verb, user.Email))
	return nil
}

var signupCmd = &cobra.Command{
	Use:   "signup <email>",
	Short: "Create an account and log in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuth(cmd, args[0], func(s *identity.Service, email, password string) (model.User, error) {
			return s.Signup(cmd.Context(), email, password)
		}, "Signed up")
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in to an existing account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuth(cmd, args[0], func(s *identity.Service, email, password string) (model.User, error) {
			return s.Login(cmd.Context(), email, password)
		}, "Logged in")
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the local session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return handleError(err, "")
		}
		defer db.Close()
		if err := identityService(db).Logout(); err != nil {
			return handleErrorCode(errcode.FileWriteError, err, "")
		}
		if isJSONOutput() {
			outputSuccess(map[string]bool{"logged_out": true}, nil)
			return nil
		}
		fmt.Println(ui.Success("Logged out"))
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return handleError(err, "")
		}
		defer db.Close()
		user, err := identityService(db).Current(cmd.Context())
		if err != nil {
			return handleError(err, "Run 'dendrite login' first")
		}
		if isJSONOutput() {
			outputSuccess(user, nil)
			return nil
		}
		fmt.Printf("%s %s\n", user.Email, ui.Hint("("+user.ID+")"))
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{signupCmd, loginCmd} {
		cmd.Flags().StringVar(&passwordFlag, "password", "", "Password (prompted when omitted)")
	}
	rootCmd.AddCommand(signupCmd, loginCmd, logoutCmd, whoamiCmd)
}
