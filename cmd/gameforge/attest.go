package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zen-systems/gameforge/pkg/attest"
)

func attestCmd() *cobra.Command {
	var outputFlag string
	var signFlag bool
	var keyIDFlag string
	var keyDirFlag string

	cmd := &cobra.Command{
		Use:   "attest <run-dir>",
		Short: "Write an attestation for an evidence run directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runDir := args[0]
			att, err := attest.Build(runDir)
			if err != nil {
				return fmt.Errorf("build attestation: %w", err)
			}

			if signFlag {
				keyDir, err := resolveKeyDir(keyDirFlag)
				if err != nil {
					return err
				}
				signer, err := attest.NewSigner(keyDir, keyIDFlag)
				if err != nil {
					return err
				}
				if err := signer.Sign(att); err != nil {
					return err
				}
			}

			if outputFlag == "" {
				outputFlag = filepath.Join(runDir, "attestation.json")
			}
			if err := attest.WriteFile(att, outputFlag); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Attestation written to: %s\n", outputFlag)
			fmt.Printf("run %s: status=%s shipped=%t files=%d signed=%t\n",
				att.Subject.RunID, att.Claim.Status, att.Claim.ShipApproved, len(att.Hashes), att.Signature != nil)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "attestation path (default <run-dir>/attestation.json)")
	cmd.Flags().BoolVar(&signFlag, "sign", false, "sign the attestation with an ed25519 key")
	cmd.Flags().StringVar(&keyIDFlag, "key-id", "default", "signing key id")
	cmd.Flags().StringVar(&keyDirFlag, "key-dir", "", "key directory (default ~/.gameforge/keys)")
	return cmd
}

func verifyCmd() *cobra.Command {
	var runDirFlag string
	var keyDirFlag string

	cmd := &cobra.Command{
		Use:   "verify <attestation>",
		Short: "Verify an attestation against its evidence run directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			att, err := attest.ReadFile(args[0])
			if err != nil {
				return err
			}
			if runDirFlag == "" {
				runDirFlag = filepath.Dir(args[0])
			}
			if err := attest.Verify(att, runDirFlag); err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			if att.Signature != nil {
				keyDir, err := resolveKeyDir(keyDirFlag)
				if err != nil {
					return err
				}
				if err := attest.VerifySignature(att, keyDir); err != nil {
					return fmt.Errorf("signature check failed: %w", err)
				}
			}
			fmt.Printf("OK: run %s (%s, shipped=%t, signed=%t)\n",
				att.Subject.RunID, att.Claim.Status, att.Claim.ShipApproved, att.Signature != nil)
			return nil
		},
	}

	cmd.Flags().StringVar(&runDirFlag, "run-dir", "", "evidence run directory (default: directory of the attestation)")
	cmd.Flags().StringVar(&keyDirFlag, "key-dir", "", "key directory (default ~/.gameforge/keys)")
	return cmd
}

func resolveKeyDir(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	return attest.DefaultKeyDir()
}
