package main

import (
	"log"

	"github.com/stvp/rollbar"

	"github.com/sweeney/logo-monitor/internal/config"
)

// errorReporter forwards unexpected errors to an external crash reporting
// service.
type errorReporter interface {
	ReportError(err error)
	Wait()
}

type nopReporter struct{}

func (nopReporter) ReportError(error) {}

func (nopReporter) Wait() {}

type rollbarReporter struct{}

func (rollbarReporter) ReportError(err error) {
	rollbar.Error(rollbar.ERR, err)
}

func (rollbarReporter) Wait() {
	rollbar.Wait()
}

// newErrorReporter returns a Rollbar reporter when a token is configured.
func newErrorReporter(cfg config.RollbarConfig) errorReporter {
	if cfg.Token == "" {
		return nopReporter{}
	}
	rollbar.Token = cfg.Token
	rollbar.Environment = cfg.Environment
	log.Printf("error reporting enabled (environment=%s)", cfg.Environment)
	return rollbarReporter{}
}
