package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newKeygenCommand(a *app) *cobra.Command {
	var (
		dir  string
		bits int
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA signing key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bits < 2048 {
				return fmt.Errorf("--bits must be at least 2048")
			}
			key, err := rsa.GenerateKey(rand.Reader, bits)
			if err != nil {
				return err
			}
			pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			privPath := filepath.Join(dir, "private.pem")
			pubPath := filepath.Join(dir, "public.pem")
			if err := writePEM(privPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key), 0o600); err != nil {
				return err
			}
			if err := writePEM(pubPath, "PUBLIC KEY", pub, 0o644); err != nil {
				return err
			}

			kid := uuid.NewString()
			a.logger.Info("key pair written",
				zap.String("private", privPath),
				zap.String("public", pubPath),
				zap.String("kid", kid),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "JOBAUTH_TOKEN_PRIVATE_KEY_PATH=%s\nJOBAUTH_TOKEN_SIGNING_KEY_ID=%s\n", privPath, kid)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "out", "keys", "output directory")
	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA modulus size")
	return cmd
}

func writePEM(path, typ string, der []byte, mode os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der})
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
