// Package log bridges third-party logger interfaces onto logrus.
package log

import "github.com/sirupsen/logrus"

// BadgerLogrusAdapter satisfies badger.Logger so the outcome journal logs
// through the application's logrus entry. logrus.Entry already provides
// Errorf, Warningf, Infof, and Debugf, so embedding is the whole adapter.
type BadgerLogrusAdapter struct {
	*logrus.Entry
}

// NewBadgerLogrusAdapter wraps a logrus entry for use as a badger.Logger.
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry}
}
