package cache

import (
	"fmt"
	"hash/fnv"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
)

// MaxKeyLength bounds cache keys so remote backends never reject them.
const MaxKeyLength = 250

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// ValidateKey rejects keys a backend could mangle: empty, too long, or
// containing characters outside [A-Za-z0-9._:-].
func ValidateKey(key string) error {
	if key == "" {
		return &errors.CacheKeyError{Key: key, Reason: "key is empty"}
	}
	if len(key) > MaxKeyLength {
		return &errors.CacheKeyError{Key: key, Reason: fmt.Sprintf("key exceeds %d characters", MaxKeyLength)}
	}
	if !keyPattern.MatchString(key) {
		return &errors.CacheKeyError{Key: key, Reason: "key contains characters outside [A-Za-z0-9._:-]"}
	}
	return nil
}

// BuildKey derives the cache key for a service call:
// "[prefix:]serviceName:hash", where hash fingerprints the call input.
// Identical inputs always map to the same key regardless of map ordering.
func BuildKey(prefix, serviceName string, input any) (string, error) {
	hash, err := HashInput(input)
	if err != nil {
		return "", err
	}

	key := serviceName + ":" + hash
	if prefix != "" {
		key = prefix + ":" + key
	}

	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// HashInput returns the 8-hex-digit FNV-1a digest of the input's stable
// string form.
func HashInput(input any) (string, error) {
	s, err := StableStringify(input)
	if err != nil {
		return "", err
	}

	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32()), nil
}

// StableStringify renders a value deterministically: map and struct keys
// sorted, nil and func-typed members dropped, times as RFC3339. Values that
// reference themselves are rejected rather than looped over.
func StableStringify(value any) (string, error) {
	var sb strings.Builder
	if err := stringify(&sb, reflect.ValueOf(value), map[uintptr]bool{}); err != nil {
		return "", err
	}
	return sb.String(), nil
}

var timeType = reflect.TypeOf(time.Time{})

func stringify(sb *strings.Builder, v reflect.Value, seen map[uintptr]bool) error {
	if !v.IsValid() {
		sb.WriteString("null")
		return nil
	}

	if v.Type() == timeType {
		sb.WriteString(strconv.Quote(v.Interface().(time.Time).Format(time.RFC3339Nano)))
		return nil
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			sb.WriteString("null")
			return nil
		}
		return stringify(sb, v.Elem(), seen)

	case reflect.Pointer:
		if v.IsNil() {
			sb.WriteString("null")
			return nil
		}
		ptr := v.Pointer()
		if seen[ptr] {
			return fmt.Errorf("cannot stringify cyclic value of type %s", v.Type())
		}
		seen[ptr] = true
		err := stringify(sb, v.Elem(), seen)
		delete(seen, ptr)
		return err

	case reflect.Bool:
		sb.WriteString(strconv.FormatBool(v.Bool()))
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sb.WriteString(strconv.FormatInt(v.Int(), 10))
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		sb.WriteString(strconv.FormatUint(v.Uint(), 10))
		return nil

	case reflect.Float32, reflect.Float64:
		sb.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
		return nil

	case reflect.String:
		sb.WriteString(strconv.Quote(v.String()))
		return nil

	case reflect.Slice, reflect.Array:
		return stringifyList(sb, v, seen)

	case reflect.Map:
		return stringifyMap(sb, v, seen)

	case reflect.Struct:
		return stringifyStruct(sb, v, seen)

	case reflect.Func, reflect.Chan:
		// dropped members; a bare one contributes nothing
		sb.WriteString("null")
		return nil

	default:
		return fmt.Errorf("cannot stringify %s value", v.Kind())
	}
}

func stringifyList(sb *strings.Builder, v reflect.Value, seen map[uintptr]bool) error {
	if v.Kind() == reflect.Slice {
		if v.IsNil() {
			sb.WriteString("null")
			return nil
		}
		ptr := v.Pointer()
		if seen[ptr] {
			return fmt.Errorf("cannot stringify cyclic value of type %s", v.Type())
		}
		seen[ptr] = true
		defer delete(seen, ptr)
	}

	sb.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := stringify(sb, v.Index(i), seen); err != nil {
			return err
		}
	}
	sb.WriteByte(']')
	return nil
}

func stringifyMap(sb *strings.Builder, v reflect.Value, seen map[uintptr]bool) error {
	if v.IsNil() {
		sb.WriteString("null")
		return nil
	}
	ptr := v.Pointer()
	if seen[ptr] {
		return fmt.Errorf("cannot stringify cyclic value of type %s", v.Type())
	}
	seen[ptr] = true
	defer delete(seen, ptr)

	type member struct {
		name  string
		value reflect.Value
	}
	members := make([]member, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		value := iter.Value()
		if dropped(value) {
			continue
		}
		members = append(members, member{name: mapKeyString(iter.Key()), value: value})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].name < members[j].name })

	sb.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(m.name))
		sb.WriteByte(':')
		if err := stringify(sb, m.value, seen); err != nil {
			return err
		}
	}
	sb.WriteByte('}')
	return nil
}

func stringifyStruct(sb *strings.Builder, v reflect.Value, seen map[uintptr]bool) error {
	type member struct {
		name  string
		value reflect.Value
	}
	t := v.Type()
	members := make([]member, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}

		value := v.Field(i)
		if dropped(value) {
			continue
		}
		members = append(members, member{name: name, value: value})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].name < members[j].name })

	sb.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(m.name))
		sb.WriteByte(':')
		if err := stringify(sb, m.value, seen); err != nil {
			return err
		}
	}
	sb.WriteByte('}')
	return nil
}

// dropped reports whether a map or struct member is omitted from the stable
// form: nil values and non-data types carry no cacheable identity.
func dropped(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Func, reflect.Chan:
		return true
	case reflect.Interface:
		if v.IsNil() {
			return true
		}
		return dropped(v.Elem())
	case reflect.Pointer:
		return v.IsNil()
	default:
		return false
	}
}

// mapKeyString renders a map key for sorting and output.
func mapKeyString(key reflect.Value) string {
	if key.Kind() == reflect.Interface {
		key = key.Elem()
	}
	switch key.Kind() {
	case reflect.String:
		return key.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(key.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(key.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(key.Float(), 'g', -1, 64)
	case reflect.Bool:
		return strconv.FormatBool(key.Bool())
	default:
		return fmt.Sprint(key.Interface())
	}
}
