//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: the original nitrogen/src/client.rs and rpc_service.rs
// tracing::error! call sites (driver send/recv failures, reconnects) and
// base.rs's spawn_accept failure paths, translated to logrus since the
// teacher itself logs nothing but gravitational-teleport in the reference
// corpus uses logrus directly for this kind of background diagnostic.
//

package nitrogen

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	discardOnce  sync.Once
	discardEntry *logrus.Entry
)

// discardLogger returns a logrus entry writing to io.Discard, used as the
// default when no logger is configured.
func discardLogger() *logrus.Entry {
	discardOnce.Do(func() {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		discardEntry = logrus.NewEntry(logger)
	})
	return discardEntry
}

// loggerOrDiscard returns logger if non-nil, else the discard logger.
func loggerOrDiscard(logger *logrus.Entry) *logrus.Entry {
	if logger != nil {
		return logger
	}
	return discardLogger()
}
