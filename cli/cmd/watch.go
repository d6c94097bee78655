package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/millrun/mill/engine"
	"github.com/millrun/mill/event"
	"github.com/millrun/mill/types"
)

// Watch channels.
const (
	channelEvents = "events"
	channelIo     = "io"
	channelAll    = "all"
)

// WatchCommand returns the watch command: stream tier-1 events, tier-2 I/O,
// or both.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream run events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "run",
				Usage: "Restrict to one run (required for io and all)",
			},
			&cli.StringFlag{
				Name:  "since-time",
				Usage: "Only events at or after this ISO 8601 UTC timestamp",
			},
			&cli.StringFlag{
				Name:  "channel",
				Usage: "events, io, or all",
				Value: channelEvents,
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Filter I/O by source: driver or program",
			},
			&cli.StringFlag{
				Name:  "spawn",
				Usage: "Filter by spawn ID",
			},
			jsonFlag,
			runsDirFlag,
		},
		Action: watchAction,
	}
}

func watchAction(c *cli.Context) error {
	channel := c.String("channel")
	runID := c.String("run")
	sinceTime := c.String("since-time")

	switch channel {
	case channelEvents, channelIo, channelAll:
	default:
		return cli.Exit(fmt.Sprintf("unknown channel %q", channel), exitFailure)
	}
	if channel != channelEvents && runID == "" {
		return cli.Exit(fmt.Sprintf("--channel %s requires --run", channel), exitFailure)
	}

	var since time.Time
	if sinceTime != "" {
		parsed, err := engine.ValidateSinceTime(sinceTime)
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
		since = parsed
	}

	rt, err := buildRuntime(c, false)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	printer := &watchPrinter{
		json:    c.Bool("json"),
		since:   since,
		spawnID: c.String("spawn"),
		source:  event.IoSource(c.String("source")),
	}

	var events <-chan *event.Event
	var ioEvents <-chan *event.IoStreamEvent

	if channel == channelEvents {
		if runID != "" {
			events, err = rt.engine.Watch(c.Context, runID)
		} else {
			events, err = rt.engine.WatchAll(c.Context, sinceTime)
		}
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
	} else {
		ioEvents, err = rt.engine.WatchIo(c.Context, runID)
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
		if channel == channelAll {
			events, err = rt.engine.Watch(c.Context, runID)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
		}
	}

	for events != nil || ioEvents != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				// The run terminal closed the event stream; stop rather
				// than trail an idle I/O channel.
				return nil
			}
			if err := printer.printEvent(ev); err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
		case ev, ok := <-ioEvents:
			if !ok {
				ioEvents = nil
				continue
			}
			if err := printer.printIo(ev); err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
		case <-c.Context.Done():
			return nil
		}
	}
	return nil
}

// watchPrinter applies the since/spawn/source filters and renders events.
type watchPrinter struct {
	json    bool
	since   time.Time
	spawnID string
	source  event.IoSource
}

func (p *watchPrinter) printEvent(ev *event.Event) error {
	if p.spawnID != "" && ev.SpawnID() != p.spawnID {
		return nil
	}
	if !p.since.IsZero() {
		at, err := time.Parse(types.TimestampFormat, ev.Timestamp)
		if err != nil || at.Before(p.since) {
			return nil
		}
	}
	if p.json {
		return printJSONLine(ev)
	}
	spawnID := ev.SpawnID()
	if spawnID != "" {
		fmt.Printf("%s  %s  %4d  %-16s  %s\n", ev.Timestamp, ev.RunID, ev.Sequence, ev.Type, spawnID)
	} else {
		fmt.Printf("%s  %s  %4d  %s\n", ev.Timestamp, ev.RunID, ev.Sequence, ev.Type)
	}
	return nil
}

func (p *watchPrinter) printIo(ev *event.IoStreamEvent) error {
	if p.spawnID != "" && ev.SpawnID != p.spawnID {
		return nil
	}
	if p.source != "" && ev.Source != p.source {
		return nil
	}
	if p.json {
		return printJSONLine(ev)
	}
	fmt.Printf("%s  [%s/%s]  %s\n", ev.Timestamp, ev.Source, ev.Stream, ev.Line)
	return nil
}
