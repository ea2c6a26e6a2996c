package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/carpool/internal/gateway"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start [trip-id]",
		Short: "Start a trip now",
		Long:  "Asks the backend to start the trip once. Defaults to the cached current trip.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			tripID, err := a.resolveTripID(args)
			if err != nil {
				return err
			}
			actions, err := a.actions()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.ErrOrStderr())
			defer cancel()

			trip, err := actions.Start(ctx, tripID)
			if err != nil {
				var rej *gateway.RejectedError
				if errors.As(err, &rej) {
					fmt.Fprintf(cmd.OutOrStdout(), "Trip %d not started: %s\n", tripID, rej.Reason)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Trip %d started\n", tripID)
			if trip != nil {
				printTrip(cmd.OutOrStdout(), trip)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newCancelCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cancel [trip-id]",
		Short: "Cancel a trip or your seat on it",
		Long:  "Drivers cancel the whole trip; passengers give up their seat. Defaults to the cached current trip.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			tripID, err := a.resolveTripID(args)
			if err != nil {
				return err
			}
			actions, err := a.actions()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.ErrOrStderr())
			defer cancel()

			trip, err := actions.Cancel(ctx, tripID, a.actor())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Trip %d canceled as %s\n", tripID, a.cfg.User.Role)
			if trip != nil {
				printTrip(cmd.OutOrStdout(), trip)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newFinishCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "finish [trip-id]",
		Short: "Finish a trip you are driving",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			tripID, err := a.resolveTripID(args)
			if err != nil {
				return err
			}
			actions, err := a.actions()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.ErrOrStderr())
			defer cancel()

			if _, err := actions.Finish(ctx, tripID, a.cfg.User.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Trip %d finished\n", tripID)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newCommentCmd() *cobra.Command {
	var (
		configPath string
		text       string
	)

	cmd := &cobra.Command{
		Use:   "comment [trip-id]",
		Short: "Leave a comment on a trip",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			tripID, err := a.resolveTripID(args)
			if err != nil {
				return err
			}
			actions, err := a.actions()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.ErrOrStderr())
			defer cancel()

			if err := actions.Comment(ctx, tripID, a.cfg.User.ID, text); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Comment sent for trip %d\n", tripID)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&text, "text", "t", "", "comment text (required)")
	cmd.MarkFlagRequired("text")
	return cmd
}
