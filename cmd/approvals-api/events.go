package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cmsflow/approvals/pkg/cmd"
	"github.com/cmsflow/approvals/pkg/eventbus"
	"github.com/cmsflow/approvals/pkg/events"
	"github.com/cmsflow/approvals/pkg/log"
	"github.com/urfave/cli/v3"
)

var errNoEventBus = errors.New("an event bus is required to follow events")

var followedEvents = []events.EventType{
	events.InstanceStartedEvent,
	events.InstanceAdvancedEvent,
	events.InstanceApprovedEvent,
	events.InstanceRejectedEvent,
	events.InstanceCancelledEvent,
	events.TaskCreatedEvent,
	events.TaskApprovedEvent,
	events.TaskRejectedEvent,
}

// EventsCommand logs approval events published by running API instances.
func EventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Follow approval lifecycle events",
		Flags: append([]cli.Flag{logLevelFlag()}, eventBusFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("events")

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			if eventBus == nil {
				return errNoEventBus
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			err = followEvents(ctx, eventBus, logger)
			if err != nil {
				return err
			}

			<-ctx.Done()

			return nil
		},
	}
}

func followEvents(ctx context.Context, subscriber eventbus.EventSubscriber, logger *slog.Logger) error {
	for _, eventType := range followedEvents {
		err := subscriber.Handle(eventType, func(ctx context.Context, event any) error {
			logger.InfoContext(ctx, "Approval event", "event_type", eventType, "event", event)

			return nil
		})
		if err != nil {
			return err
		}
	}

	return subscriber.Subscribe(ctx)
}
