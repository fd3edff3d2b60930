package answer

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// NDArray marks a (possibly nested) slice that must travel as an ndarray object.
type NDArray struct {
	List any
}

var jsonMarshalerType = reflect.TypeFor[json.Marshaler]()

// Encode serializes the answer document to the JSON string sent as "answer".
func Encode(a Answer) (string, error) {
	doc, err := normalize(reflect.ValueOf(a.Document()))
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", a.Type(), err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", a.Type(), err)
	}
	return string(data), nil
}

// normalize rewrites a value into a tree plain encoding/json can marshal,
// replacing complex leaves and NDArray values with tagged objects.
func normalize(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}

	switch x := v.Interface().(type) {
	case NDArray:
		list, err := normalize(reflect.ValueOf(x.List))
		if err != nil {
			return nil, err
		}
		return map[string]any{"__class__": "ndarray", "list": list}, nil
	case *NDArray:
		if x == nil {
			return nil, nil
		}
		return normalize(reflect.ValueOf(*x))
	}

	if v.Type().Implements(jsonMarshalerType) {
		return v.Interface(), nil
	}

	switch v.Kind() {
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		return map[string]any{"__class__": "complex", "re": real(c), "im": imag(c)}, nil
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return normalize(v.Elem())
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface(), nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			item, err := normalize(v.Index(i))
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", v.Type().Key())
		}
		if v.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			item, err := normalize(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", iter.Key().String(), err)
			}
			out[iter.Key().String()] = item
		}
		return out, nil
	case reflect.Struct:
		return normalizeStruct(v)
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return nil, fmt.Errorf("unsupported value of kind %s", v.Kind())
	}
	return v.Interface(), nil
}

func normalizeStruct(v reflect.Value) (any, error) {
	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, omitEmpty := f.Name, false
		if tag, ok := f.Tag.Lookup("json"); ok {
			if tag == "-" {
				continue
			}
			parts := strings.Split(tag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" || opt == "omitzero" {
					omitEmpty = true
				}
			}
		}
		fv := v.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		item, err := normalize(fv)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out[name] = item
	}
	return out, nil
}
