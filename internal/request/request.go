// Package request waits on org.freedesktop.portal.Request objects.
package request

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"go2tv.app/acapture/internal/apis"
)

var (
	ErrUnexpectedResponse = errors.New("unexpected response from dbus")
	ErrCancelled          = errors.New("portal request cancelled by the user")
	ErrEnded              = errors.New("portal request ended")
)

const (
	interfaceName  = "org.freedesktop.portal.Request"
	responseMember = "Response"
	responseSignal = interfaceName + "." + responseMember
	closeCallName  = interfaceName + ".Close"
)

type ResponseStatus = uint32

const (
	Success   ResponseStatus = 0
	Cancelled ResponseStatus = 1
	Ended     ResponseStatus = 2
)

func Close(bus *apis.Bus, path dbus.ObjectPath) error {
	return bus.CallOn(path, closeCallName)
}

// Do subscribes to the Response signal of the request identified by token,
// runs call and waits for the response. Subscribing before the call keeps a
// fast portal from answering before anyone listens.
//
// A non-success status is returned as ErrCancelled or ErrEnded. When ctx is
// done first the request is closed and ctx.Err() returned.
func Do(ctx context.Context, bus *apis.Bus, token string, call func() (dbus.ObjectPath, error)) (map[string]dbus.Variant, error) {
	expected := bus.RequestPath(token)
	signals, cancel, err := bus.Subscribe(expected, interfaceName, responseMember)
	if err != nil {
		return nil, err
	}

	path, err := call()
	if err != nil {
		cancel()
		return nil, err
	}
	if path != expected {
		// Pre-0.9 portals ignore handle_token; follow the returned path.
		cancel()
		signals, cancel, err = bus.Subscribe(path, interfaceName, responseMember)
		if err != nil {
			return nil, err
		}
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			_ = Close(bus, path)
			return nil, ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return nil, ErrEnded
			}
			if sig.Path != path || sig.Name != responseSignal {
				continue
			}
			return decode(sig)
		}
	}
}

func decode(sig *dbus.Signal) (map[string]dbus.Variant, error) {
	if len(sig.Body) != 2 {
		return nil, ErrUnexpectedResponse
	}
	status, ok := sig.Body[0].(ResponseStatus)
	if !ok {
		return nil, fmt.Errorf("%w: status is %T", ErrUnexpectedResponse, sig.Body[0])
	}
	results, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil, fmt.Errorf("%w: results are %T", ErrUnexpectedResponse, sig.Body[1])
	}

	switch status {
	case Success:
		return results, nil
	case Cancelled:
		return nil, ErrCancelled
	default:
		return nil, ErrEnded
	}
}
