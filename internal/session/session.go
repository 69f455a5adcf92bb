// Package session handles org.freedesktop.portal.Session objects.
package session

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/godbus/dbus/v5"

	"go2tv.app/acapture/internal/apis"
)

const (
	interfaceName = "org.freedesktop.portal.Session"
	closedMember  = "Closed"
	closeCallName = interfaceName + ".Close"
)

func Close(bus *apis.Bus, path dbus.ObjectPath) error {
	return bus.CallOn(path, closeCallName)
}

// GenerateToken returns a fresh handle token. Tokens end up as object path
// elements, so they only contain [A-Za-z0-9_].
func GenerateToken() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return "acapture_" + hex.EncodeToString(b[:])
}

// OnClosed returns a channel closed once the portal reports the session at
// path as closed, for instance because the user revoked the share, or once
// the bus connection drops. Call stop to release the subscription.
func OnClosed(bus *apis.Bus, path dbus.ObjectPath) (done <-chan struct{}, stop func(), err error) {
	signals, cancel, err := bus.Subscribe(path, interfaceName, closedMember)
	if err != nil {
		return nil, nil, err
	}

	quit := make(chan struct{})
	closed := watchClosed(signals, path, quit)

	var stopped bool
	stop = func() {
		if stopped {
			return
		}
		stopped = true
		close(quit)
		cancel()
	}
	return closed, stop, nil
}

// watchClosed closes the returned channel on a Closed signal for path or when
// signals is closed, which godbus does when the connection goes away.
func watchClosed(signals <-chan *dbus.Signal, path dbus.ObjectPath, quit <-chan struct{}) <-chan struct{} {
	closed := make(chan struct{})
	go func() {
		for {
			select {
			case <-quit:
				return
			case sig, ok := <-signals:
				if !ok {
					close(closed)
					return
				}
				if sig != nil && sig.Path == path && sig.Name == interfaceName+"."+closedMember {
					close(closed)
					return
				}
			}
		}
	}()
	return closed
}
