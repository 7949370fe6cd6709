//go:build !unix

package main

import "time"

// drainWait bounds how long a read waits when nothing is queued.
const drainWait = time.Millisecond

// discardOne reads one queued datagram, waiting at most drainWait.
func (u *udpSender) discardOne() bool {
	if err := u.conn.SetReadDeadline(time.Now().Add(drainWait)); err != nil {
		return false
	}
	_, _, err := u.conn.ReadFromUDPAddrPort(u.buf)
	return err == nil
}
