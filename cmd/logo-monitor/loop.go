package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/logo-monitor/internal/logic"
	"github.com/sweeney/logo-monitor/internal/metrics"
	"github.com/sweeney/logo-monitor/internal/mqtt"
	"github.com/sweeney/logo-monitor/internal/probe"
	"github.com/sweeney/logo-monitor/internal/report"
	"github.com/sweeney/logo-monitor/internal/status"
)

// recipientLister reports how many chats are subscribed.
type recipientLister interface {
	Recipients(ctx context.Context) ([]int64, error)
}

// loop owns the engine and drives it one sample per tick.
type loop struct {
	prober     probe.Prober
	engine     *logic.Engine
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	recipients recipientLister // optional
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	reporter   errorReporter
	timeout    time.Duration
	heartbeat  time.Duration
	loc        *time.Location

	probeFailing bool
}

func (l *loop) run(now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	hb := logic.NewHeartbeat(l.heartbeat, now())

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			reason := signalName(s)
			l.refreshConnectivity()
			snap := l.tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     reason,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			probeErr := l.step(t)

			l.tracker.Update(l.engine.State(), l.engine.Counts(), t, probeErr)
			l.refreshConnectivity()

			if hbData := hb.Check(t, l.engine.Counts()); hbData != nil {
				log.Printf("heartbeat: uptime=%v recoveries=%d faults=%d",
					hbData.Uptime, hbData.Counts.Recoveries, hbData.Counts.Faults)
				snap := l.tracker.Snapshot()
				err := l.publisher.PublishSystem(mqtt.SystemEvent{
					Timestamp:  hbData.Timestamp,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				})
				if err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// step probes once and feeds the result to the engine. A failed probe is
// fed as a fault sample so an unreachable plant is eventually confirmed.
func (l *loop) step(t time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	started := time.Now()
	sample, err := l.prober.Sample(ctx)
	cancel()
	l.metrics.ObserveProbe(time.Since(started), err)

	if err != nil {
		log.Printf("probe error: %v", err)
		if !l.probeFailing {
			l.reporter.ReportError(fmt.Errorf("probe: %w", err))
		}
		l.probeFailing = true
		sample = logic.FaultSample(t)
	} else {
		if l.probeFailing {
			log.Printf("probe recovered")
		}
		l.probeFailing = false
	}

	sample.ObservedAtOK = sample.ObservedAtOK.In(l.loc)
	sample.ObservedAtFault = sample.ObservedAtFault.In(l.loc)

	l.engine.Update(sample)
	l.metrics.ObserveState(l.engine.State())
	return err
}

func (l *loop) refreshConnectivity() {
	l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	if l.recipients == nil {
		return
	}
	ids, err := l.recipients.Recipients(context.Background())
	if err != nil {
		log.Printf("list recipients: %v", err)
		return
	}
	l.tracker.SetRecipients(len(ids))
}

// transitionRecorder persists confirmed transitions.
type transitionRecorder interface {
	RecordTransition(ctx context.Context, ev logic.Event) (string, error)
}

// notifier queues a text for every subscribed chat.
type notifier interface {
	Broadcast(text string) bool
}

type transitionSinks struct {
	store     transitionRecorder
	publisher mqtt.Publisher
	notifier  notifier
	metrics   *metrics.Metrics
}

// subscribeTransitions registers the delivery observers for both event
// types. Observers run on the loop goroutine and must not block.
func subscribeTransitions(e *logic.Engine, s transitionSinks) {
	handle := func(ev logic.Event) {
		st := ev.State
		log.Printf("event: %s status=%q power=%.2f last_ok=%s last_fault=%s",
			ev.Type, st.Status, st.Power,
			st.LastHealthyAt.Format(time.RFC3339), st.LastFaultAt.Format(time.RFC3339))

		s.metrics.ObserveTransition(ev)

		id, err := s.store.RecordTransition(context.Background(), ev)
		if err != nil {
			log.Printf("record transition: %v", err)
		}

		err = s.publisher.Publish(id, ev)
		s.metrics.ObserveMQTTPublish(err)
		if err != nil {
			log.Printf("publish error: %v", err)
		}

		s.notifier.Broadcast(report.FormatEvent(ev))
	}
	e.Subscribe(logic.EventFaultConfirmed, handle)
	e.Subscribe(logic.EventRecoveryConfirmed, handle)
}

// printState probes once and writes the resulting report.
func printState(w io.Writer, p probe.Prober, timeout time.Duration, loc *time.Location, now func() time.Time) error {
	t := now().In(loc)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sample, err := p.Sample(ctx)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	sample.ObservedAtOK = sample.ObservedAtOK.In(loc)
	sample.ObservedAtFault = sample.ObservedAtFault.In(loc)

	e, err := logic.NewEngine(logic.DefaultConfig(), t)
	if err != nil {
		return err
	}
	e.Update(sample)
	_, err = fmt.Fprintln(w, report.Format(e.State()))
	return err
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
