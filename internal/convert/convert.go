// Package convert builds and unpacks the a{sv} option dictionaries the
// portal methods take and return.
package convert

import (
	"reflect"

	"github.com/godbus/dbus/v5"
)

var (
	boolSignature   = dbus.SignatureOfType(reflect.TypeOf(false))
	stringSignature = dbus.SignatureOfType(reflect.TypeOf(""))
	uint32Signature = dbus.SignatureOfType(reflect.TypeOf(uint32(0)))
)

func FromBool(input bool) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, boolSignature)
}

func FromString(input string) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, stringSignature)
}

func FromUint32(input uint32) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, uint32Signature)
}

// Vardict is an a{sv} dictionary. The setters skip zero values so unset
// options fall back to the portal defaults.
type Vardict map[string]dbus.Variant

func (v Vardict) String(key, value string) Vardict {
	if value != "" {
		v[key] = FromString(value)
	}
	return v
}

func (v Vardict) Uint32(key string, value uint32) Vardict {
	if value != 0 {
		v[key] = FromUint32(value)
	}
	return v
}

func (v Vardict) Bool(key string, value bool) Vardict {
	if value {
		v[key] = FromBool(value)
	}
	return v
}

// StringOf returns the string stored under key.
func StringOf(results map[string]dbus.Variant, key string) (string, bool) {
	value, ok := results[key]
	if !ok {
		return "", false
	}
	switch s := value.Value().(type) {
	case string:
		return s, true
	case dbus.ObjectPath:
		return string(s), true
	}
	return "", false
}

// Uint32Of returns the uint32 stored under key.
func Uint32Of(results map[string]dbus.Variant, key string) (uint32, bool) {
	value, ok := results[key]
	if !ok {
		return 0, false
	}
	u, ok := value.Value().(uint32)
	return u, ok
}

// Int32PairOf returns the (ii) struct stored under key.
func Int32PairOf(results map[string]dbus.Variant, key string) ([2]int32, bool) {
	value, ok := results[key]
	if !ok {
		return [2]int32{}, false
	}
	values, ok := value.Value().([]any)
	if !ok || len(values) < 2 {
		return [2]int32{}, false
	}
	left, ok := values[0].(int32)
	if !ok {
		return [2]int32{}, false
	}
	right, ok := values[1].(int32)
	if !ok {
		return [2]int32{}, false
	}
	return [2]int32{left, right}, true
}
