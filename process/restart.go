/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package process

import (
	"math"
	"time"
)

// RestartBackoff tracks the exponential restart delay: each scheduled
// restart pushes next_soonest_restart forward by 2^consecutive_attempts
// seconds.
type RestartBackoff struct {
	nextSoonestRestart  time.Time
	consecutiveAttempts uint32
	pending             *time.Timer
}

// schedule decides whether a restart attempt happening "now" must be
// delayed, and if so arms a timer calling fire at the delayed instant.
// It returns the delay that was applied (zero if the restart proceeds
// immediately). Every call counts as one more consecutive attempt,
// whether or not it had to wait: the push-forward applied to
// nextSoonestRestart always uses the attempt count as it stood before
// this call, so the delay sequence (1s, 2s, 4s, ...) lines up with the
// attempt that is reaching 1, 2, 3, ... in a row.
func (b *RestartBackoff) schedule(now time.Time, fire func()) time.Duration {
	if b.pending != nil {
		b.pending.Stop()
		b.pending = nil
	}
	if now.Before(b.nextSoonestRestart) {
		delay := b.nextSoonestRestart.Sub(now)
		b.nextSoonestRestart = b.nextSoonestRestart.Add(backoffDelay(b.consecutiveAttempts))
		b.consecutiveAttempts++
		b.pending = time.AfterFunc(delay, fire)
		return delay
	}
	// Far enough past the last deadline that this starts a fresh streak:
	// it is still the streak's first attempt, so the counter lands on 1,
	// not 0.
	b.nextSoonestRestart = now.Add(backoffDelay(0))
	b.consecutiveAttempts = 1
	fire()
	return 0
}

func backoffDelay(consecutiveAttempts uint32) time.Duration {
	secs := math.Pow(2, float64(consecutiveAttempts))
	return time.Duration(secs) * time.Second
}
