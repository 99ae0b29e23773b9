package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runger/snapc/internal/config"
	"github.com/runger/snapc/internal/snapd"
)

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Authenticate to the store",
	Long: `Authenticate to the store and save the credentials.

The password, and the one-time code if the account uses two-factor
authentication, are read from the terminal.`,
	GroupID: groupAccount,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runLogin,
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Forget saved store credentials",
	GroupID: groupAccount,
	Args:    cobra.NoArgs,
	RunE:    runLogout,
}

var ackCmd = &cobra.Command{
	Use:     "ack <file>...",
	Short:   "Add assertions to the system",
	GroupID: groupAccount,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runAck,
}

var knownCmd = &cobra.Command{
	Use:     "known <type> [header=value...]",
	Short:   "Show known assertions of a type",
	GroupID: groupAccount,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runKnown,
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, ackCmd, knownCmd)
}

func prompt(label string, secret bool) (string, error) {
	fmt.Fprint(os.Stderr, label)
	if !secret {
		return readLine(os.Stdin)
	}
	v, err := readSecret(os.Stdin)
	fmt.Fprintln(os.Stderr)
	return v, err
}

func runLogin(cmd *cobra.Command, args []string) error {
	var email string
	if len(args) == 1 {
		email = args[0]
	} else {
		v, err := prompt("Email address: ", false)
		if err != nil {
			return err
		}
		email = strings.TrimSpace(v)
	}

	password, err := prompt("Password of "+email+": ", true)
	if err != nil {
		return err
	}

	ep := snapd.Login{Username: email, Password: password}
	auth, err := call[snapd.AuthData](cmd, ep)
	if errors.Is(err, snapd.ErrTwoFactorRequired) {
		if ep.OTP, err = prompt("Two-factor code: ", false); err != nil {
			return err
		}
		auth, err = call[snapd.AuthData](cmd, ep)
	}
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if err := config.SaveAuthData(app.paths.AuthFile(), &auth); err != nil {
		return err
	}
	if client, err := app.Client(); err == nil {
		client.SetAuthData(&auth)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Login succeeded for %s\n", okStyle.Render(email))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := config.RemoveAuthData(app.paths.AuthFile()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}

func runAck(cmd *cobra.Command, args []string) error {
	assertions := make([]string, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		assertions = append(assertions, strings.TrimRight(string(data), "\n"))
	}

	if _, err := send(cmd, snapd.AddAssertions{Assertions: assertions}, nil); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

func runKnown(cmd *cobra.Command, args []string) error {
	ep := snapd.GetAssertions{Type: args[0]}
	for _, arg := range args[1:] {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("invalid header filter %q (want name=value)", arg)
		}
		ep.Headers = append(ep.Headers, snapd.Header{Name: name, Value: value})
	}

	res, err := send(cmd, ep, nil)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(res.Body)
	return err
}
