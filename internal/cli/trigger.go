package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// NewCloseChallengeCmd runs the closing pipeline for one challenge by hand.
func NewCloseChallengeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "close-challenge <challenge-id>",
		Short: "Award XP for every rated submission of a challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.service.CloseChallenge(cmd.Context(), args[0], true)
			rt.service.Wait()
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
		},
	}
}

// NewAwardSubmissionCmd awards XP for a single rated submission.
func NewAwardSubmissionCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "award-submission <submission-id>",
		Short: "Award XP for one rated submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.service.AwardSubmission(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
		},
	}
}
