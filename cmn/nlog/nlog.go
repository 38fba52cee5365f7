// Package nlog mirrors aistore's cmn/nlog call surface (Infof, Warningf,
// Errorln, verbosity-gated FastV) but is backed by logrus rather than a
// vendored glog fork, since the teacher's own nlog/glog source is not part
// of the retrieved slice.
package nlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetVerbose raises the logger to Debug level, the way aistore's
// cmn.Rom.FastV gates verbose (V(5)+) logging.
func SetVerbose(v bool) {
	if v {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

func Infof(format string, args ...any)    { log.Infof(format, args...) }
func Infoln(args ...any)                  { log.Infoln(args...) }
func Warningf(format string, args ...any) { log.Warnf(format, args...) }
func Warningln(args ...any)               { log.Warnln(args...) }
func Errorf(format string, args ...any)   { log.Errorf(format, args...) }
func Errorln(args ...any)                 { log.Errorln(args...) }
func Debugf(format string, args ...any)   { log.Debugf(format, args...) }

// FastV reports whether verbose logging at the given level is enabled,
// mirroring aistore's cmn.Rom.FastV(level, module) gate used before
// expensive log-argument construction.
func FastV(_ int, _ string) bool {
	return log.IsLevelEnabled(logrus.DebugLevel)
}
