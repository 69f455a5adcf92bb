// Package apis is the session-bus plumbing shared by the desktop portal
// bindings.
package apis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	ObjectName        = "org.freedesktop.portal.Desktop"
	ObjectPath        = "/org/freedesktop/portal/desktop"
	CallBaseName      = "org.freedesktop.portal"
	PropertiesGetName = "org.freedesktop.DBus.Properties.Get"
)

var ErrNoUniqueName = errors.New("session bus connection has no unique name")

// Bus is a connection to the session bus with the portal object resolved.
type Bus struct {
	conn   *dbus.Conn
	sender string
}

// Connect returns a Bus on the shared session bus connection.
func Connect() (*Bus, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	names := conn.Names()
	if len(names) == 0 {
		return nil, ErrNoUniqueName
	}
	return &Bus{conn: conn, sender: names[0]}, nil
}

// Connected reports whether the underlying connection is still open.
func (b *Bus) Connected() bool {
	return b.conn.Connected()
}

func (b *Bus) portal(path dbus.ObjectPath) dbus.BusObject {
	if path == "" {
		path = ObjectPath
	}
	return b.conn.Object(ObjectName, path)
}

// Call invokes method on the portal object and stores its single reply
// value into out.
func (b *Bus) Call(method string, out any, args ...any) error {
	call := b.portal("").Call(method, 0, args...)
	if call.Err != nil {
		return fmt.Errorf("%s: %w", method, call.Err)
	}
	if out == nil {
		return nil
	}
	if err := call.Store(out); err != nil {
		return fmt.Errorf("%s reply: %w", method, err)
	}
	return nil
}

// CallOn invokes method on an object exported by the portal, such as a
// request or session handle, and discards the reply.
func (b *Bus) CallOn(path dbus.ObjectPath, method string, args ...any) error {
	call := b.portal(path).Call(method, 0, args...)
	if call.Err != nil {
		return fmt.Errorf("%s on %s: %w", method, path, call.Err)
	}
	return nil
}

// Property reads iface.name from the portal object.
func (b *Bus) Property(iface, name string) (any, error) {
	var value dbus.Variant
	if err := b.Call(PropertiesGetName, &value, iface, name); err != nil {
		return nil, err
	}
	return value.Value(), nil
}

// Subscribe delivers signals named iface.member emitted on path. The
// returned cancel func removes the match rule and must be called once the
// caller is done with the channel.
func (b *Bus) Subscribe(path dbus.ObjectPath, iface, member string) (<-chan *dbus.Signal, func(), error) {
	if path == "" {
		path = ObjectPath
	}
	rules := []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(iface),
		dbus.WithMatchMember(member),
	}
	if err := b.conn.AddMatchSignal(rules...); err != nil {
		return nil, nil, fmt.Errorf("subscribe %s.%s: %w", iface, member, err)
	}

	signals := make(chan *dbus.Signal, 8)
	b.conn.Signal(signals)

	cancel := func() {
		b.conn.RemoveSignal(signals)
		_ = b.conn.RemoveMatchSignal(rules...)
	}
	return signals, cancel, nil
}

// RequestPath is the object path the portal will use for a request created
// with handle token.
func (b *Bus) RequestPath(token string) dbus.ObjectPath {
	return dbus.ObjectPath(ObjectPath + "/request/" + senderElement(b.sender) + "/" + token)
}

// SessionPath is the object path the portal will use for a session created
// with session handle token.
func (b *Bus) SessionPath(token string) dbus.ObjectPath {
	return dbus.ObjectPath(ObjectPath + "/session/" + senderElement(b.sender) + "/" + token)
}

func senderElement(unique string) string {
	return strings.ReplaceAll(strings.TrimPrefix(unique, ":"), ".", "_")
}
