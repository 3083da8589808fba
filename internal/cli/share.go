package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/dendrite/internal/errcode"
	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/sharing"
	"github.com/aidanlsb/dendrite/internal/store"
	"github.com/aidanlsb/dendrite/internal/ui"
)

var sharePermissionFlag string

var shareCmd = &cobra.Command{
	Use:   "share <note> <email>",
	Short: "Share a note with another account",
	Long: `Grants another account access to a note you own or administer.
Sharing again with the same account changes its permission.

Permissions:
  view   read only
  edit   read and save
  admin  read, save and manage sharing`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		level, err := model.ParsePermission(sharePermissionFlag)
		if err != nil {
			return handleErrorCode(errcode.InvalidInput, err, "Use --permission view, edit or admin")
		}
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := resolveNoteArg(s.ws, args[0])
		if err != nil {
			return err
		}
		share, err := s.ws.Share(ctx, n.ID, args[1], level)
		if err != nil {
			var partial *sharing.PartialWriteError
			if errors.As(err, &partial) {
				return handleErrorCode(errcode.PartialWrite, err, "Run the same share command again to repair it")
			}
			return handleError(err, "")
		}
		if isJSONOutput() {
			outputSuccess(share, nil)
			return nil
		}
		fmt.Println(ui.Successf("Shared %s with %s (%s)", ui.Title(n.Title), share.Email, ui.PermissionLabel(share.Permission)))
		return nil
	},
}

var unshareCmd = &cobra.Command{
	Use:   "unshare <note> <email>",
	Short: "Revoke another account's access to a note",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := resolveNoteArg(s.ws, args[0])
		if err != nil {
			return err
		}
		shares, err := s.ws.Shares(ctx, n.ID)
		if err != nil {
			return handleError(err, "")
		}
		email := strings.ToLower(strings.TrimSpace(args[1]))
		var grantee string
		for _, sh := range shares {
			if strings.EqualFold(sh.Email, email) {
				grantee = sh.GranteeID
				break
			}
		}
		if grantee == "" {
			return handleError(fmt.Errorf("%w: %s has no access to %q", store.ErrUserNotFound, email, n.Title),
				"Run 'dendrite shares' to see who has access")
		}
		if err := s.ws.Unshare(ctx, n.ID, grantee); err != nil {
			return handleError(err, "")
		}
		if isJSONOutput() {
			outputSuccess(map[string]string{"note_id": n.ID, "revoked": grantee}, nil)
			return nil
		}
		fmt.Println(ui.Successf("Revoked %s's access to %s", email, ui.Title(n.Title)))
		return nil
	},
}

var sharesCmd = &cobra.Command{
	Use:   "shares <note>",
	Short: "List who a note is shared with",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := resolveNoteArg(s.ws, args[0])
		if err != nil {
			return err
		}
		shares, err := s.ws.Shares(ctx, n.ID)
		if err != nil {
			return handleError(err, "")
		}
		if isJSONOutput() {
			if shares == nil {
				shares = []model.Share{}
			}
			outputSuccess(shares, &Meta{Count: len(shares)})
			return nil
		}
		if len(shares) == 0 {
			fmt.Println(ui.Hint("Not shared."))
			return nil
		}
		t := ui.NewTable("EMAIL", "PERMISSION", "SHARED")
		for _, sh := range shares {
			when := ""
			if !sh.SharedAt.IsZero() {
				when = sh.SharedAt.Local().Format("2006-01-02 15:04")
			}
			t.AddRow(sh.Email, ui.PermissionLabel(sh.Permission), when)
		}
		fmt.Print(t.String())
		return nil
	},
}

func init() {
	shareCmd.Flags().StringVarP(&sharePermissionFlag, "permission", "p", "view", "Permission: view, edit or admin")
	rootCmd.AddCommand(shareCmd, unshareCmd, sharesCmd)
}
