package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cmevents/internal/client"
	"github.com/alfredjeanlab/cmevents/internal/config"
	"github.com/alfredjeanlab/cmevents/internal/events"
	"github.com/alfredjeanlab/cmevents/internal/model"
	"github.com/alfredjeanlab/cmevents/internal/poller"
	"github.com/alfredjeanlab/cmevents/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream new events to the terminal",
	Long: `Stream new events to the terminal as they arrive.

By default cmev polls the Events API itself using CMEV_API_TOKEN. With --bus
it instead follows a cmev server's NATS bus (from --nats, CMEV_NATS_URL, or
the active remote).`,
	GroupID:           "events",
	PersistentPreRunE: skipServerClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		bus, _ := cmd.Flags().GetBool("bus")
		natsURL, _ := cmd.Flags().GetString("nats")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		if bus {
			if natsURL == "" {
				natsURL = os.Getenv("CMEV_NATS_URL")
			}
			if natsURL == "" {
				natsURL = activeRemoteNATSURL()
			}
			if natsURL == "" {
				return errors.New("--bus needs a NATS URL (--nats, CMEV_NATS_URL, or a remote with one)")
			}
			return watchBus(ctx, natsURL, out, cmd.ErrOrStderr())
		}
		return watchLocal(ctx, out, cmd.ErrOrStderr())
	},
}

// watchLocal runs a poller in-process and prints what it publishes.
func watchLocal(ctx context.Context, out, errOut io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.APIToken == "" {
		return errors.New("CMEV_API_TOKEN is required")
	}
	logger := newLogger(cfg)

	api := client.NewAPIClient(cfg.APIURL, cfg.APIToken, cfg.RateLimit)
	source := client.NewPollingSource(api, time.Now(), seedPageSize, logger)
	if _, err := source.Seed(ctx); err != nil {
		logger.Warn("initial event load failed", "err", err)
	}

	pc := pollerConfig(cfg, logger, nil)
	pc.OnStaleChange = func(st poller.State) {
		printStaleNotice(errOut, events.StaleNotice{
			Stale:               st.Stale,
			ConsecutiveFailures: st.ConsecutiveFailures,
			LastError:           st.LastError,
		})
	}

	stream := events.NewStream(logger)
	stream.Subscribe(func(e model.Event) { printWatchEvent(out, e) })

	p, err := poller.New(pc, source, stream)
	if err != nil {
		return err
	}
	return p.Run(ctx)
}

// watchBus follows the event and stale topics on a cmev server's bus.
func watchBus(ctx context.Context, natsURL string, out, errOut io.Writer) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats: disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	eventsCh, cancelEvents, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancelEvents()

	staleCh, cancelStale, err := sub.Subscribe(events.TopicStale)
	if err != nil {
		return fmt.Errorf("subscribing to stale notices: %w", err)
	}
	defer cancelStale()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-eventsCh:
			if !ok {
				return nil
			}
			var e model.Event
			if err := json.Unmarshal(data, &e); err != nil {
				slog.Warn("skipping undecodable event", "err", err)
				continue
			}
			printWatchEvent(out, e)
		case data, ok := <-staleCh:
			if !ok {
				return nil
			}
			var n events.StaleNotice
			if err := json.Unmarshal(data, &n); err != nil {
				slog.Warn("skipping undecodable stale notice", "err", err)
				continue
			}
			printStaleNotice(errOut, n)
		}
	}
}

// printWatchEvent writes e as one line: JSON with --json, otherwise the
// terminal rendering.
func printWatchEvent(w io.Writer, e model.Event) {
	if !jsonOutput {
		fmt.Fprintln(w, ui.EventLine(e))
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

func printStaleNotice(w io.Writer, n events.StaleNotice) {
	if !n.Stale {
		fmt.Fprintln(w, ui.RenderMuted("feed recovered"))
		return
	}
	msg := fmt.Sprintf("feed is stale after %d failed fetches", n.ConsecutiveFailures)
	if n.LastError != "" {
		msg += ": " + n.LastError
	}
	fmt.Fprintln(w, ui.RenderWarn(msg))
}

func init() {
	watchCmd.Flags().Bool("bus", false, "follow a cmev server's NATS bus instead of polling")
	watchCmd.Flags().String("nats", "", "NATS URL for --bus")
}
