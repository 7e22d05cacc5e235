/*************************************************************************
 * Copyright 2021 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package objlog records WebSocket session lifecycle events for the HTTP
// ingress gateway (open/push/close, per channel_id) so a node operator can
// trace a session's traffic during development without instrumenting the
// gateway itself.
package objlog

// WSDiagLog is the interface the gateway logs WebSocket session events
// through. Useful for debugging and tracing gateway behavior; production
// nodes normally run with the nil implementation.
type WSDiagLog interface {
	Close() error
	Log(channelID uint32, event string, detail interface{}) error
}

// NilWSDiagLogger is an empty implementation of WSDiagLog for use when no
// session tracing is desired.
type NilWSDiagLogger struct {
}

// NewNilLogger generates a do-nothing logger that implements WSDiagLog.
func NewNilLogger() (WSDiagLog, error) {
	return &NilWSDiagLogger{}, nil
}

// Log implements WSDiagLog; NilWSDiagLogger discards every event.
func (nol *NilWSDiagLogger) Log(channelID uint32, event string, detail interface{}) error {
	return nil
}

// Close implements WSDiagLog; NilWSDiagLogger has nothing to flush.
func (nol *NilWSDiagLogger) Close() error {
	return nil
}
