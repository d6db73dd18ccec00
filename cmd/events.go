/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"

	"github.com/magadiflo/usersvc/internal/mq"
	"github.com/magadiflo/usersvc/types"
	"github.com/spf13/cobra"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect account events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log account events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, lg := setup()
		defer func() { _ = lg.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		bus, err := mq.New(ctx, cfg.MQ, lg)
		if err != nil {
			return err
		}
		if bus == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer bus.Close()

		err = bus.Subscribe(ctx, cfg.MQ.Channel, func(_ context.Context, msg mq.Message) error {
			var event types.AccountEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				lg.Warnw("skipping undecodable message", "message_id", msg.ID, "error", err)
				return nil
			}
			lg.Infow("account event",
				"id", event.ID,
				"type", event.Type,
				"username", event.Username,
				"role", event.RoleName,
				"occurred_at", event.OccurredAt,
			)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
