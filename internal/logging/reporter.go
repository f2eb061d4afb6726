package logging

import (
	"fmt"

	"github.com/getsentry/sentry-go"
)

// Reporter forwards errors logged through Logger.Error to an external
// tracker. The no-op default keeps that path free of any
// network dependency; NewSentryReporter opts a deployment in.
type Reporter interface {
	ReportError(err error, tags map[string]string)
}

type nopReporter struct{}

func (nopReporter) ReportError(error, map[string]string) {}

// NoopReporter discards every report; it's the default on a Logger that
// never calls WithReporter.
func NoopReporter() Reporter { return nopReporter{} }

type sentryReporter struct{}

// NewSentryReporter initializes the process-wide Sentry client and returns
// a Reporter backed by it. dsn may be empty: sentry-go treats an empty DSN
// as a valid no-op configuration (client built, no events ever sent), so
// callers can wire this unconditionally and gate real reporting purely by
// environment.
func NewSentryReporter(dsn string) (Reporter, error) {
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
		return nil, fmt.Errorf("sentry.Init: %w", err)
	}
	return sentryReporter{}, nil
}

func (sentryReporter) ReportError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}
