package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/guregu/null/v5"
	"golang.org/x/sync/errgroup"
)

// ProviderDeliveryError reports that one channel failed to deliver. It never
// affects the other channels of the same transition.
type ProviderDeliveryError struct {
	Provider  Provider
	ChannelID string
	Err       error
}

func (e *ProviderDeliveryError) Error() string {
	return fmt.Sprintf("delivering to %s channel %s: %v", e.Provider, e.ChannelID, e.Err)
}

func (e *ProviderDeliveryError) Unwrap() error {
	return e.Err
}

// ChannelDelivery is the outcome of one channel of a dispatch.
type ChannelDelivery struct {
	ChannelID string
	Provider  Provider
	Err       error
	Duration  time.Duration
}

type DispatchReport struct {
	Deliveries []ChannelDelivery
}

func (r DispatchReport) Sent() int {
	var sent int
	for _, delivery := range r.Deliveries {
		if delivery.Err == nil {
			sent++
		}
	}
	return sent
}

func (r DispatchReport) Failed() int {
	return len(r.Deliveries) - r.Sent()
}

type DispatcherOptions struct {
	Channels  ChannelSource
	Providers Providers
	AuditLog  AuditLogger
	// Timeout bounds every provider call.
	Timeout time.Duration
	// MaxConcurrency bounds the number of provider calls in flight per dispatch.
	MaxConcurrency int
}

// Dispatcher fans a transition out to every channel bound to the monitor.
type Dispatcher struct {
	channels       ChannelSource
	providers      Providers
	auditLog       AuditLogger
	timeout        time.Duration
	maxConcurrency int
}

func NewDispatcher(options DispatcherOptions) *Dispatcher {
	if options.Timeout <= 0 {
		options.Timeout = 5 * time.Second
	}
	if options.MaxConcurrency <= 0 {
		options.MaxConcurrency = 4
	}
	return &Dispatcher{
		channels:       options.Channels,
		providers:      options.Providers,
		auditLog:       options.AuditLog,
		timeout:        options.Timeout,
		maxConcurrency: options.MaxConcurrency,
	}
}

// Dispatch sends the transition to every configured channel. The returned
// error only reports that the channel list could not be loaded; individual
// delivery failures are logged and listed in the report.
func (d *Dispatcher) Dispatch(ctx context.Context, event TransitionEvent) (DispatchReport, error) {
	span := sentry.StartSpan(ctx, "function", sentry.WithDescription("Dispatch Transition"))
	ctx = span.Context()
	defer span.Finish()

	monitor, err := d.channels.GetMonitor(ctx, event.MonitorID)
	if err != nil {
		if errors.Is(err, ErrMonitorNotFound) {
			slog.WarnContext(ctx, "transition for unknown monitor, nothing to notify", slog.String("monitor_id", event.MonitorID))
			return DispatchReport{}, nil
		}
		return DispatchReport{}, fmt.Errorf("loading monitor: %w", err)
	}

	channels, err := d.channels.GetNotificationChannels(ctx, event.MonitorID)
	if err != nil {
		return DispatchReport{}, fmt.Errorf("loading notification channels: %w", err)
	}

	kind := notificationKindFor(event.NewStatus)
	results := make(chan ChannelDelivery, len(channels))

	g := errgroup.Group{}
	g.SetLimit(d.maxConcurrency)
	for _, channel := range channels {
		notification := Notification{
			Monitor:    monitor,
			Channel:    channel,
			Region:     event.Region,
			StatusCode: event.StatusCode,
			Message:    event.Message,
			IncidentID: null.StringFrom(event.ID),
			OccurredAt: event.OccurredAt,
		}
		g.Go(func() error {
			results <- d.deliver(ctx, kind, notification)
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	var report DispatchReport
	for delivery := range results {
		report.Deliveries = append(report.Deliveries, delivery)
	}

	slog.InfoContext(ctx, "transition dispatched",
		slog.String("monitor_id", event.MonitorID),
		slog.String("previous_status", string(event.PreviousStatus)),
		slog.String("new_status", string(event.NewStatus)),
		slog.Int("sent", report.Sent()),
		slog.Int("failed", report.Failed()))

	return report, nil
}

func (d *Dispatcher) deliver(ctx context.Context, kind notificationKind, notification Notification) ChannelDelivery {
	channel := notification.Channel
	delivery := ChannelDelivery{ChannelID: channel.ID, Provider: channel.Provider}
	start := time.Now()

	err := d.send(ctx, kind, notification)
	delivery.Duration = time.Since(start)
	if err != nil {
		delivery.Err = &ProviderDeliveryError{Provider: channel.Provider, ChannelID: channel.ID, Err: err}
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			hub.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("kestrel.monitor_id", notification.Monitor.ID)
				scope.SetTag("kestrel.provider", string(channel.Provider))
				hub.CaptureException(delivery.Err)
			})
		}
		slog.ErrorContext(ctx, "notification send failed",
			slog.String("monitor_id", notification.Monitor.ID),
			slog.String("channel_id", channel.ID),
			slog.String("provider", string(channel.Provider)),
			slog.String("error", err.Error()))
		return delivery
	}

	slog.InfoContext(ctx, "notification sent",
		slog.String("monitor_id", notification.Monitor.ID),
		slog.String("channel_id", channel.ID),
		slog.String("provider", string(channel.Provider)),
		slog.Duration("duration", delivery.Duration))

	if d.auditLog != nil {
		err := d.auditLog.Publish(ctx, AuditEntry{
			TargetID:  monitorAuditTarget(notification.Monitor.ID),
			Action:    AuditActionNotificationSent,
			Provider:  null.StringFrom(string(channel.Provider)),
			ChannelID: null.StringFrom(channel.ID),
			Metadata: map[string]string{
				"provider": string(channel.Provider),
				"region":   notification.Region,
			},
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			slog.ErrorContext(ctx, "publishing audit entry", slog.String("monitor_id", notification.Monitor.ID), slog.String("error", err.Error()))
		}
	}

	return delivery
}

func (d *Dispatcher) send(ctx context.Context, kind notificationKind, notification Notification) (err error) {
	adapter, err := d.providers.Adapter(notification.Channel.Provider)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// A panicking adapter must not take the other channels down with it.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()

	return kind.send(callCtx, adapter, notification)
}
