package spiflash

import (
	"fmt"
	"time"
)

type pollBound struct {
	limit    int
	deadline time.Time
}

func (f *Flash) newPollBound() pollBound {
	b := pollBound{limit: f.cfg.pollLimit}
	if f.cfg.pollTimeout > 0 {
		b.deadline = time.Now().Add(f.cfg.pollTimeout)
	}
	return b
}

func (b pollBound) expired(polls int) bool {
	if b.limit > 0 && polls >= b.limit {
		return true
	}
	return !b.deadline.IsZero() && !time.Now().Before(b.deadline)
}

/* waitReady polls status register 1 until WIP is clear. It returns the
 * number of status reads issued. */
func (f *Flash) waitReady() (int, error) {
	b := f.newPollBound()

	for polls := 1; ; polls++ {
		status, err := f.ReadStatus1()
		if err != nil {
			return polls, err
		}
		if !status.Busy() {
			return polls, nil
		}
		if b.expired(polls) {
			return polls, fmt.Errorf("%w: WIP still set after %d status reads", ErrorBusy, polls)
		}
	}
}

/* writeGate issues write enable until a status read shows WEL set */
func (f *Flash) writeGate() error {
	b := f.newPollBound()

	for polls := 1; ; polls++ {
		if err := f.WriteEnable(); err != nil {
			return err
		}

		status, err := f.ReadStatus1()
		if err != nil {
			return err
		}

		/* Nothing but status reads may follow a read that saw WIP set */
		if status.Busy() {
			if _, err := f.waitReady(); err != nil {
				return err
			}
		} else if status.WriteEnabled() {
			return nil
		}

		if b.expired(polls) {
			return fmt.Errorf("%w: WEL not set after %d write enables", ErrorBusy, polls)
		}
	}
}

func (f *Flash) prepareWrite() error {
	if _, err := f.waitReady(); err != nil {
		return err
	}

	return f.writeGate()
}

// WaitReady blocks until the chip reports no write in progress.
func (f *Flash) WaitReady() error {
	_, err := f.waitReady()
	return err
}

// WaitWriteEnabled blocks until the write enable latch is observed set,
// without issuing write enable itself.
func (f *Flash) WaitWriteEnabled() error {
	b := f.newPollBound()

	for polls := 1; ; polls++ {
		status, err := f.ReadStatus1()
		if err != nil {
			return err
		}
		if status.WriteEnabled() {
			return nil
		}
		if b.expired(polls) {
			return fmt.Errorf("%w: WEL not set after %d status reads", ErrorBusy, polls)
		}
	}
}
