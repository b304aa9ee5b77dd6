package schema

import (
	"fmt"
	"strconv"
)

// OID is the backend-assigned identifier of an entity. Backends use either
// strings or integers; both forms are comparable and usable as map keys.
// The zero OID means the entity has none.
type OID struct {
	str   string
	num   int64
	isNum bool
	set   bool
}

// StringOID returns an OID holding s.
func StringOID(s string) OID { return OID{str: s, set: true} }

// IntOID returns an OID holding n.
func IntOID(n int64) OID { return OID{num: n, isNum: true, set: true} }

// OIDf formats an OID from a template, e.g. OIDf("%s.%s", table, column).
func OIDf(format string, args ...any) OID { return StringOID(fmt.Sprintf(format, args...)) }

// OIDOf converts a raw driver value into an OID. nil yields the zero OID.
func OIDOf(v any) OID {
	switch val := v.(type) {
	case nil:
		return OID{}
	case OID:
		return val
	case string:
		return StringOID(val)
	case []byte:
		return StringOID(string(val))
	case int:
		return IntOID(int64(val))
	case int8:
		return IntOID(int64(val))
	case int16:
		return IntOID(int64(val))
	case int32:
		return IntOID(int64(val))
	case int64:
		return IntOID(val)
	case uint8:
		return IntOID(int64(val))
	case uint16:
		return IntOID(int64(val))
	case uint32:
		return IntOID(int64(val))
	case uint64:
		return IntOID(int64(val))
	default:
		return StringOID(fmt.Sprintf("%v", v))
	}
}

// IsZero reports whether o carries no identifier.
func (o OID) IsZero() bool { return !o.set }

// Int returns the integer form and whether o is an integer OID.
func (o OID) Int() (int64, bool) { return o.num, o.isNum }

func (o OID) String() string {
	switch {
	case !o.set:
		return "<none>"
	case o.isNum:
		return strconv.FormatInt(o.num, 10)
	default:
		return o.str
	}
}
