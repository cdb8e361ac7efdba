// Package logutil holds logging helpers shared by the streaming components.
package logutil

import (
	"github.com/decred/slog"
)

// prefixLogger prepends a fixed prefix to every message of the wrapped
// logger. Level changes are forwarded.
type prefixLogger struct {
	slog.Logger
	prefix string

	// tag is the prefix used by the non-format methods, which already
	// separate operands with spaces.
	tag string
}

func (p *prefixLogger) Tracef(format string, params ...interface{}) {
	p.Logger.Tracef(p.prefix+format, params...)
}

func (p *prefixLogger) Debugf(format string, params ...interface{}) {
	p.Logger.Debugf(p.prefix+format, params...)
}

func (p *prefixLogger) Infof(format string, params ...interface{}) {
	p.Logger.Infof(p.prefix+format, params...)
}

func (p *prefixLogger) Warnf(format string, params ...interface{}) {
	p.Logger.Warnf(p.prefix+format, params...)
}

func (p *prefixLogger) Errorf(format string, params ...interface{}) {
	p.Logger.Errorf(p.prefix+format, params...)
}

func (p *prefixLogger) Criticalf(format string, params ...interface{}) {
	p.Logger.Criticalf(p.prefix+format, params...)
}

func (p *prefixLogger) Trace(v ...interface{}) {
	p.Logger.Trace(append([]interface{}{p.tag}, v...)...)
}

func (p *prefixLogger) Debug(v ...interface{}) {
	p.Logger.Debug(append([]interface{}{p.tag}, v...)...)
}

func (p *prefixLogger) Info(v ...interface{}) {
	p.Logger.Info(append([]interface{}{p.tag}, v...)...)
}

func (p *prefixLogger) Warn(v ...interface{}) {
	p.Logger.Warn(append([]interface{}{p.tag}, v...)...)
}

func (p *prefixLogger) Error(v ...interface{}) {
	p.Logger.Error(append([]interface{}{p.tag}, v...)...)
}

func (p *prefixLogger) Critical(v ...interface{}) {
	p.Logger.Critical(append([]interface{}{p.tag}, v...)...)
}

// PrefixLogger returns a logger that prepends "[name] " to every message.
func PrefixLogger(log slog.Logger, name string) slog.Logger {
	tag := "[" + name + "]"
	return &prefixLogger{Logger: log, prefix: tag + " ", tag: tag}
}

// DefaultSampleInterval is the default number of occurrences between logged
// samples of a repetitive warning.
const DefaultSampleInterval = 1000

// Sampler logs warnings that may happen on every packet or audio period. When
// not verbose, only the first occurrence and then one of every Interval
// occurrences are logged.
type Sampler struct {
	Log      slog.Logger
	Verbose  bool
	Interval uint64
}

// Warnf logs the warning if this is a sampled occurrence. count is the total
// number of occurrences so far, including this one.
func (s Sampler) Warnf(count uint64, format string, args ...interface{}) {
	if !s.Sampled(count) {
		return
	}
	args = append(args, count)
	s.Log.Warnf(format+" (%d occurrences)", args...)
}

// Sampled returns true if occurrence count should be logged.
func (s Sampler) Sampled(count uint64) bool {
	if s.Verbose {
		return true
	}
	interval := s.Interval
	if interval == 0 {
		interval = DefaultSampleInterval
	}
	return count%interval == 1 || interval == 1
}
