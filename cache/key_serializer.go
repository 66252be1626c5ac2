package cache

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// KeySerializer turns a function name and its arguments into a canonical
// string. The result is hashed, so it only needs to be stable and injective.
type KeySerializer interface {
	SerializeKey(name string, args ...any) string
}

// argSeparator delimits serialized arguments in the canonical form.
const argSeparator = "|"

// defaultKeySerializer serializes arguments through reflection. Strings are
// quoted so that 1 and "1" differ, maps are sorted, and functions are
// represented by their symbol name so keys survive restarts.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey builds the canonical form of name and args.
func (s *defaultKeySerializer) SerializeKey(name string, args ...any) string {
	if len(args) == 0 {
		return name
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, arg := range args {
		parts = append(parts, s.serializeValue(arg))
	}

	return strings.Join(parts, argSeparator)
}

func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	if rt.Kind() == reflect.Ptr && rv.IsNil() {
		return "nil"
	}

	// Marshalers are checked before dereferencing so pointer receivers count.
	// Types like time.Time and big.Int keep their state in unexported fields.
	if text, ok := marshalText(v, rv); ok {
		return "text " + derefType(rt).String() + ":" + strconv.Quote(text)
	}

	switch rt.Kind() {
	case reflect.Func:
		if rv.IsNil() {
			return "func:nil"
		}
		return "func:" + funcName(rv)
	case reflect.Ptr:
		if elem := rv.Elem(); elem.Kind() == reflect.Struct && !hasExportedFields(elem.Type()) {
			return s.serializeOpaque(v, elem)
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeSequence("slice", rv)
	case reflect.Array:
		return s.serializeSequence("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		if !hasExportedFields(rt) {
			return s.serializeOpaque(v, rv)
		}
		return s.serializeStruct(rv, rt)
	case reflect.Chan:
		return "chan:" + rt.String()
	case reflect.Interface:
		if rv.IsNil() {
			return "interface:nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.String:
		return strconv.Quote(rv.String())
	}

	// Basic kinds carry their type so that int(1) and uint(1) differ.
	if s.isBasicType(rt.Kind()) {
		return rt.String() + ":" + fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

// serializeOpaque handles structs without exported fields: their String
// method when there is one, otherwise their %v form.
func (s *defaultKeySerializer) serializeOpaque(v any, elem reflect.Value) string {
	str, ok := v.(fmt.Stringer)
	if !ok {
		str, ok = pointerTo(elem).(fmt.Stringer)
	}
	if ok {
		return "stringer " + elem.Type().String() + ":" + strconv.Quote(str.String())
	}
	return fmt.Sprintf("struct %s:%v", elem.Type().String(), elem.Interface())
}

// marshalText tries v and, for struct values, a pointer to a copy of v so
// that pointer receiver marshalers are found either way.
func marshalText(v any, rv reflect.Value) (string, bool) {
	m, ok := v.(encoding.TextMarshaler)
	if !ok && rv.Kind() == reflect.Struct {
		m, ok = pointerTo(rv).(encoding.TextMarshaler)
	}
	if !ok {
		return "", false
	}
	text, err := m.MarshalText()
	if err != nil {
		return "", false
	}
	return string(text), true
}

func pointerTo(rv reflect.Value) any {
	ptr := reflect.New(rv.Type())
	ptr.Elem().Set(rv)
	return ptr.Interface()
}

func derefType(rt reflect.Type) reflect.Type {
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return rt
}

func hasExportedFields(rt reflect.Type) bool {
	for i := 0; i < rt.NumField(); i++ {
		if rt.Field(i).IsExported() {
			return true
		}
	}
	return false
}

func (s *defaultKeySerializer) serializeSequence(kind string, rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)

	for i := 0; i < length; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}

	return fmt.Sprintf("%s[%d]:{%s}", kind, length, strings.Join(parts, ","))
}

// serializeMap sorts entries by their serialized key.
func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	type pair struct{ key, value string }

	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, pair{
			key:   s.serializeValue(iter.Key().Interface()),
			value: s.serializeValue(iter.Value().Interface()),
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	encoded := make([]string, len(pairs))
	for i, p := range pairs {
		encoded[i] = p.key + "=" + p.value
	}

	return fmt.Sprintf("map[%d]:{%s}", len(encoded), strings.Join(encoded, ","))
}

// serializeStruct includes exported fields only.
func (s *defaultKeySerializer) serializeStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+s.serializeValue(rv.Field(i).Interface()))
	}

	return fmt.Sprintf("struct %s:{%s}", rt.String(), strings.Join(parts, ","))
}

func (s *defaultKeySerializer) isBasicType(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}

func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}

func funcName(rv reflect.Value) string {
	if fn := runtime.FuncForPC(rv.Pointer()); fn != nil {
		return fn.Name()
	}
	return rv.Type().String()
}
