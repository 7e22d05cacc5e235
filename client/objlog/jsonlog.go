/*************************************************************************
 * Copyright 2021 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package objlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	errNilFout = errors.New("nil fout file handle")
)

// JSONWSDiagLogger appends one JSON record per WebSocket session event to a
// file on disk.
type JSONWSDiagLogger struct {
	fout *os.File
}

// NewJSONLogger opens path in append mode and returns a WSDiagLog that
// records each channel's open/push/close events as indented JSON objects.
func NewJSONLogger(path string) (WSDiagLog, error) {
	fout, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
	if err != nil {
		return nil, err
	}
	return &JSONWSDiagLogger{
		fout: fout,
	}, nil
}

// Log records a channel id, event name, and an arbitrary detail object.
func (jol *JSONWSDiagLogger) Log(channelID uint32, event string, detail interface{}) error {
	if jol.fout == nil {
		return errNilFout
	}
	b, err := json.MarshalIndent(detail, "", "\t")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(jol.fout, "channel=%d %s:\n%s\n", channelID, event, b)
	return err
}

// Close flushes and closes the file handle. The logger must not be used
// again afterward.
func (jol *JSONWSDiagLogger) Close() error {
	if jol.fout == nil {
		return errNilFout
	}
	if err := jol.fout.Close(); err != nil {
		return err
	}
	jol.fout = nil
	return nil
}
