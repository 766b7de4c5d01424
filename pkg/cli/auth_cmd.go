package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication helpers",
	}

	cmd.AddCommand(newAuthTokenCmd())
	cmd.AddCommand(newAuthLoginCmd())
	return cmd
}

func newAuthTokenCmd() *cobra.Command {
	var (
		owner    string
		secret   string
		audience string
		email    string
		expires  time.Duration
		profile  string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT and save it to a profile",
		Long:  "Mint an HS256 JWT for a server running with JWT_SECRET. The sub claim is the owner id. The token is saved to the active profile.",
		Example: `  # Token for owner alice signed with the dev secret
  tablesheet auth token --owner alice --secret dev-secret

  # Token with an audience and a 48h expiry saved to the staging profile
  tablesheet auth token --owner alice --secret s3cret --audience tablesheet --expires 48h --save-to staging`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			signed, err := mintToken(owner, secret, audience, email, expires, time.Now())
			if err != nil {
				return err
			}
			if _, err := saveToken(profile, signed); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner id (JWT sub claim)")
	cmd.Flags().StringVar(&secret, "secret", "", "JWT signing secret (HS256)")
	cmd.Flags().StringVar(&audience, "audience", "", "JWT aud claim")
	cmd.Flags().StringVar(&email, "email", "", "JWT email claim")
	cmd.Flags().DurationVar(&expires, "expires", 24*time.Hour, "Token expiry duration")
	cmd.Flags().StringVar(&profile, "save-to", "", "Profile to store the token in (default: active profile)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}

func mintToken(owner, secret, audience, email string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(owner) == "" {
		return "", errors.New("owner must not be empty")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("expires must be positive, got %s", ttl)
	}
	claims := jwt.MapClaims{
		"sub": owner,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if audience != "" {
		claims["aud"] = audience
	}
	if email != "" {
		claims["email"] = email
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func newAuthLoginCmd() *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a token issued by your identity provider",
		Long:  "Read a bearer token from the terminal without echo, or from stdin when piped, and save it to a profile.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := readToken(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			name, err := saveToken(profile, token)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Token saved to profile %q\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "save-to", "", "Profile to store the token in (default: active profile)")
	return cmd
}

// readToken reads one token. Terminal input is read without echo.
func readToken(in io.Reader, prompt io.Writer) (string, error) {
	var raw string
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, "Token: ")
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		raw = string(b)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read token: %w", err)
		}
		raw = line
	}
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if token == "" {
		return "", errors.New("no token provided")
	}
	return token, nil
}
