package parser

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// QueryError names the query parameter that could not be bound.
type QueryError struct {
	Param string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query parameter %s: %v", e.Param, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// BindQuery fills the fields of out tagged with `form:"name"` from the query
// string. Missing parameters leave the field untouched. Slices are read from
// comma-separated values.
func BindQuery(c *fiber.Ctx, out interface{}) error {
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("output must be a pointer to a struct")
	}

	elem := val.Elem()
	typ := elem.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		name := strings.Split(field.Tag.Get("form"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			continue
		}
		if err := setField(elem.Field(i), raw); err != nil {
			return &QueryError{Param: name, Err: err}
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		field = field.Elem()
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(u)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		parts := strings.Split(value, ",")
		s := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p == "" {
				continue
			}
			item := reflect.New(field.Type().Elem()).Elem()
			if err := setField(item, p); err != nil {
				return err
			}
			s = reflect.Append(s, item)
		}
		field.Set(s)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
