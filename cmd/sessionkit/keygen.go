package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewKeygenCmd creates the keygen subcommand.
func NewKeygenCmd() *cobra.Command {
	var method, keyID string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate access token signing material",
		Long: `Generate a signing key and print it as a token: block ready to paste
into the YAML config. Key bytes are standard base64.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeKey(cmd.OutOrStdout(), rand.Reader, method, keyID)
		},
	}

	cmd.Flags().StringVar(&method, "method", "ed25519", "signing method (ed25519|hs256)")
	cmd.Flags().StringVar(&keyID, "key-id", "", "kid to embed in new tokens")

	return cmd
}

func writeKey(w io.Writer, rnd io.Reader, method, keyID string) error {
	var private, public []byte

	switch strings.ToLower(method) {
	case "ed25519":
		pub, priv, err := ed25519.GenerateKey(rnd)
		if err != nil {
			return oops.Code("KEYGEN_FAILED").Wrap(err)
		}
		private, public = priv, pub
	case "hs256":
		private = make([]byte, 32)
		if _, err := io.ReadFull(rnd, private); err != nil {
			return oops.Code("KEYGEN_FAILED").Wrap(err)
		}
	default:
		return oops.Code("CONFIG_INVALID").With("method", method).Errorf("unsupported signing method")
	}

	enc := base64.StdEncoding
	fmt.Fprintln(w, "token:")
	fmt.Fprintf(w, "  signing_method: %s\n", strings.ToLower(method))
	fmt.Fprintf(w, "  private_key: %s\n", enc.EncodeToString(private))
	if public != nil {
		fmt.Fprintf(w, "  public_key: %s\n", enc.EncodeToString(public))
	}
	if keyID != "" {
		fmt.Fprintf(w, "  key_id: %s\n", keyID)
		fmt.Fprintln(w, "  verify_keys:")
		fmt.Fprintf(w, "    %s: %s\n", keyID, enc.EncodeToString(verifyKey(private, public)))
	}
	return nil
}

func verifyKey(private, public []byte) []byte {
	if public != nil {
		return public
	}
	return private
}
