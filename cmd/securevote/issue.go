package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adi3433/securevote-pro/config"
	"github.com/adi3433/securevote-pro/service"
	"github.com/adi3433/securevote-pro/storage"
)

// issueCommand registers the given voter IDs (if needed) and prints one
// plaintext OTAC per voter. The tokens are shown exactly once; only
// their hashes are stored.
func issueCommand() *cobra.Command {
	var register bool
	cmd := &cobra.Command{
		Use:   "issue [voter-id ...]",
		Short: "Issue one-time access codes for registered voters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := commonRun()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			store, err := storage.NewSQLiteStore(cfg.DataDir, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			votingService, err := service.NewVotingService(store, service.Options{
				Salt:           cfg.Salt,
				DemoMode:       cfg.DemoMode,
				BloomCapacity:  cfg.BloomCapacity,
				BloomErrorRate: cfg.BloomErrorRate,
				AuditStackMax:  cfg.AuditStackMax,
				Logger:         logger,
			})
			if err != nil {
				return err
			}

			if register {
				if _, err := votingService.RegisterVoters(args); err != nil {
					return err
				}
			}
			result, err := votingService.IssueCredentials(args)
			if err != nil {
				return err
			}
			for _, cred := range result.Credentials {
				fmt.Printf("%s\t%s\n", cred.VoterID, cred.OTAC)
			}
			if result.Skipped > 0 {
				fmt.Printf("skipped %d unregistered voter(s)\n", result.Skipped)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&register, "register", false, "register unknown voter IDs before issuing")
	return cmd
}
