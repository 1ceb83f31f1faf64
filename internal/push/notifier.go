package push

import (
	"context"
	"errors"
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/prochepro/edgeworker/internal/logger"
)

// Notifier displays a platform notification.
type Notifier interface {
	Display(ctx context.Context, d *Descriptor) error
}

// NewNotifier builds the configured notifier: a shoutrrr-backed one when
// service URLs are configured, otherwise a log-only notifier.
func NewNotifier(serviceURLs []string, log logger.Logger) (Notifier, error) {
	if len(serviceURLs) == 0 {
		return &LogNotifier{log: log}, nil
	}
	sender, err := shoutrrr.CreateSender(serviceURLs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification sender: %w", err)
	}
	return &ShoutrrrNotifier{sender: sender, log: log}, nil
}

// ShoutrrrNotifier delivers notifications through shoutrrr service URLs.
type ShoutrrrNotifier struct {
	sender *router.ServiceRouter
	log    logger.Logger
}

// Display sends the notification to every configured service. Partial
// failures are joined into one error so the caller can fall back.
func (n *ShoutrrrNotifier) Display(ctx context.Context, d *Descriptor) error {
	params := types.Params{"title": d.Title}
	errs := n.sender.Send(d.Body, &params)

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("notification delivery failed: %w", errors.Join(failed...))
	}
	return nil
}

// LogNotifier writes notifications to the log. Used when no delivery
// service is configured, and in development.
type LogNotifier struct {
	log logger.Logger
}

// Display logs the notification.
func (n *LogNotifier) Display(ctx context.Context, d *Descriptor) error {
	n.log.Info("notification displayed",
		logger.String("title", d.Title),
		logger.String("body", d.Body),
		logger.String("tag", d.Tag))
	return nil
}
