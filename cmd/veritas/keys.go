package main

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"veritas/internal/attestation"
	jwttoken "veritas/internal/jwt_token"
	"veritas/internal/platform/config"
	"veritas/pkg/domain"
)

func keygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a secp256k1 oracle key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "address:     %s\n", attestation.AddressOf(key))
			_, _ = fmt.Fprintf(out, "private_key: %s\n", hexutil.Encode(crypto.FromECDSA(key)))
			return nil
		},
	}
}

func signCommand() *cobra.Command {
	var (
		keyHex  string
		subject string
		queryID string
		result  bool
		chainID uint64
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign an attestation for a consensus query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := hexutil.Decode(keyHex)
			if err != nil {
				return fmt.Errorf("decode key: %w", err)
			}
			key, err := crypto.ToECDSA(raw)
			if err != nil {
				return fmt.Errorf("parse key: %w", err)
			}
			subj, err := domain.ParseAddress(subject)
			if err != nil {
				return err
			}
			q, err := domain.ParseQueryID(queryID)
			if err != nil {
				return err
			}
			sig, err := attestation.Sign(key, subj, q, result, chainID)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(sig))
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "oracle private key, 0x-prefixed hex")
	cmd.Flags().StringVar(&subject, "subject", "", "subject address")
	cmd.Flags().StringVar(&queryID, "query", "", "query id, 0x-prefixed 32-byte hex")
	cmd.Flags().BoolVar(&result, "result", false, "attested outcome")
	cmd.Flags().Uint64Var(&chainID, "chain-id", config.Default().ChainID, "scope identifier the signature is bound to")
	for _, name := range []string{"key", "subject", "query"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// tokenCommand issues an access token for an account using the configured
// signing key.
func tokenCommand() *cobra.Command {
	var (
		caller string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(globalFlags.config)
			if err != nil {
				return err
			}
			addr, err := domain.ParseAddress(caller)
			if err != nil {
				return err
			}
			svc := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
			token, err := svc.GenerateAccessToken(addr, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&caller, "caller", "", "account address the token authenticates")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("caller")
	return cmd
}
