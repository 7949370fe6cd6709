//go:build unix

package main

import "golang.org/x/sys/unix"

// discardOne reads one queued datagram with MSG_DONTWAIT. It reports false
// once the queue is empty. Other errors (ICMP port-unreachable surfacing as
// ECONNREFUSED) also stop the drain until the next tick.
func (u *udpSender) discardOne() bool {
	var rerr error
	err := u.raw.Read(func(fd uintptr) bool {
		_, _, rerr = unix.Recvfrom(int(fd), u.buf, unix.MSG_DONTWAIT)
		// Never park on the poller.
		return true
	})
	return err == nil && rerr == nil
}
