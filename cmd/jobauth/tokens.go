package main

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pyjobs/jobauth"
	"github.com/pyjobs/jobauth/jwt"
)

func newIssueCommand(a *app) *cobra.Command {
	var (
		audience   string
		ttl        time.Duration
		showPublic bool
	)
	cmd := &cobra.Command{
		Use:   "issue SUBJECT",
		Short: "Sign a token for SUBJECT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			token, _, err := e.IssueWith(cmd.Context(), args[0], jwt.IssueOptions{Audience: audience, TTL: ttl})
			if err != nil {
				if errors.Is(err, jobauth.ErrIssuerDisabled) {
					return fmt.Errorf("%w: set JOBAUTH_TOKEN_PRIVATE_KEY_PATH or run keygen", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if showPublic {
				key, _ := e.SigningKey()
				der, err := x509.MarshalPKIXPublicKey(key.PublicKey)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "*** PUBLIC KEY ***")
				fmt.Fprint(out, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})))
				fmt.Fprintln(out, "*** TOKEN ***")
			}
			fmt.Fprintln(out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&audience, "audience", "", "audience (default from config)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "validity (default from config)")
	cmd.Flags().BoolVar(&showPublic, "public-key", true, "print the public key before the token")
	return cmd
}

func newVerifyCommand(a *app) *cobra.Command {
	var audience string
	cmd := &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Verify TOKEN and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if audience == "" {
				audience = a.cfg.Token.Audience
			}
			claims, err := e.VerifyAudience(cmd.Context(), args[0], audience)
			if err != nil {
				return fmt.Errorf("rejected: %s", jwt.Reason(err))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims)
		},
	}
	cmd.Flags().StringVar(&audience, "audience", "", "expected audience (default from config)")
	return cmd
}

func newJWKSCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "jwks",
		Short: "Print the JWKS document for the configured keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			doc, err := e.JWKS()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(doc))
			return nil
		},
	}
}
