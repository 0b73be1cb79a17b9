package treebeard

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// RegisteredObject is an application-domain value captured for correlation,
// distinct from a free-text log entry.
type RegisteredObject struct {
	Name         string
	ID           string
	Fields       Fields
	RegisteredAt time.Time
}

// Object names whose identifier becomes a correlation field (user ->
// user_id) on the active trace scope.
var correlationNames = map[string]bool{
	"user":         true,
	"account":      true,
	"session":      true,
	"organization": true,
}

// Register submits one object, or a record of objects, for capture.
//
// Naming precedence:
//  1. a map with string keys whose values are themselves objects registers
//     each value under its key — the key wins over any explicit name field
//     (a warn diagnostic reports the override);
//  2. an explicit Name field or "name" entry on the value;
//  3. the value's struct type name;
//  4. the generic label "object".
//
// When a registered object's name is a recognized correlation name and it
// carries an identifier, the active trace scope is updated so subsequent
// in-scope log entries carry that identifier.
func (c *Core) Register(ctx context.Context, value interface{}) {
	if c == nil || value == nil {
		return
	}

	objects := c.normalize(value)
	if len(objects) == 0 {
		return
	}

	tc, hasScope := (*TraceContext)(nil), false
	if ctx != nil {
		tc, hasScope = TraceContextFrom(ctx)
	}

	for _, obj := range objects {
		if hasScope && obj.ID != "" && correlationNames[obj.Name] {
			tc.SetCorrelation(obj.Name+"_id", obj.ID)
		}
		n := c.objects.Append(obj)
		if n+c.logs.Len() >= c.cfg.BatchSize {
			c.requestFlush()
		}
	}
}

// Register submits an object through the process-wide engine; a silent
// no-op before Init.
func Register(ctx context.Context, value interface{}) {
	GetInstance().Register(ctx, value)
}

func (c *Core) normalize(value interface{}) []RegisteredObject {
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Ptr && !v.IsNil() {
		v = v.Elem()
	}

	// A record of objects: every value is itself object-shaped, so the keys
	// become the registered names.
	if v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String && isRecordOfObjects(v) {
		keys := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)

		objects := make([]RegisteredObject, 0, len(keys))
		for _, key := range keys {
			obj := c.normalizeOne(v.MapIndex(reflect.ValueOf(key)).Interface(), key)
			objects = append(objects, obj)
		}
		return objects
	}

	return []RegisteredObject{c.normalizeOne(value, "")}
}

// normalizeOne turns a single value into a RegisteredObject. forcedName is
// the enclosing record key, which takes precedence over the value's own
// name field.
func (c *Core) normalizeOne(value interface{}, forcedName string) RegisteredObject {
	obj := RegisteredObject{RegisteredAt: time.Now()}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Ptr && !v.IsNil() {
		v = v.Elem()
	}

	var explicitName string
	switch v.Kind() {
	case reflect.Map:
		obj.Fields = make(Fields, v.Len())
		for _, k := range v.MapKeys() {
			if k.Kind() != reflect.String {
				continue
			}
			key := k.String()
			val := v.MapIndex(k).Interface()
			switch strings.ToLower(key) {
			case "name":
				explicitName = fmt.Sprint(val)
			case "id":
				obj.ID = fmt.Sprint(val)
			}
			obj.Fields[key] = val
		}
	case reflect.Struct:
		obj.Fields = make(Fields, v.NumField())
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			key := fieldKey(field)
			if key == "-" {
				continue
			}
			val := v.Field(i).Interface()
			switch strings.ToLower(key) {
			case "name":
				explicitName = fmt.Sprint(val)
			case "id":
				obj.ID = fmt.Sprint(val)
			}
			obj.Fields[key] = val
		}
	default:
		obj.Fields = Fields{"value": value}
	}

	switch {
	case forcedName != "":
		obj.Name = forcedName
		if explicitName != "" && explicitName != forcedName {
			c.diag.Warn("record key overrides explicit object name",
				"key", forcedName,
				"name_field", explicitName,
			)
		}
	case explicitName != "":
		obj.Name = explicitName
	default:
		obj.Name = structuralName(v)
	}
	return obj
}

// isRecordOfObjects reports whether every value in the map is itself an
// object (map, struct, or pointer to one). A map with any scalar value is
// treated as a single object instead.
func isRecordOfObjects(v reflect.Value) bool {
	if v.Len() == 0 {
		return false
	}
	for _, k := range v.MapKeys() {
		ev := v.MapIndex(k)
		for ev.Kind() == reflect.Interface || ev.Kind() == reflect.Ptr {
			if ev.IsNil() {
				return false
			}
			ev = ev.Elem()
		}
		if ev.Kind() != reflect.Map && ev.Kind() != reflect.Struct {
			return false
		}
	}
	return true
}

func fieldKey(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name := strings.Split(tag, ",")[0]
	if name == "" {
		return field.Name
	}
	return name
}

// structuralName lowercases the value's type name, falling back to a
// generic label for anonymous types.
func structuralName(v reflect.Value) string {
	if !v.IsValid() {
		return "object"
	}
	name := v.Type().Name()
	if name == "" {
		return "object"
	}
	return strings.ToLower(name)
}
