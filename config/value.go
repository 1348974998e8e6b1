package config

import (
	"fmt"
	"strconv"
	"strings"
)

// value is a variable of one of the supported types: *bool, *int, *int64, or *string. A
// string variable with choices only accepts one of them.
type value struct {
	p       interface{}
	choices []string
}

func (v value) check(s string) error {
	if len(v.choices) == 0 {
		return nil
	}
	for _, c := range v.choices {
		if s == c {
			return nil
		}
	}
	return fmt.Errorf("%q must be one of %s", s, strings.Join(v.choices, ", "))
}

func (v value) Set(s string) error {
	switch p := v.p.(type) {
	case *bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		*p = b
	case *int:
		i, err := strconv.ParseInt(s, 0, strconv.IntSize)
		if err != nil {
			return err
		}
		*p = int(i)
	case *int64:
		i, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return err
		}
		*p = i
	case *string:
		err := v.check(s)
		if err != nil {
			return err
		}
		*p = s
	default:
		panic(fmt.Sprintf("config: unexpected variable type: %T", v.p))
	}
	return nil
}

// SetValue sets the variable from a value decoded from a config file; HCL decodes numbers
// as int.
func (v value) SetValue(i interface{}) error {
	var ok bool
	switch p := v.p.(type) {
	case *bool:
		*p, ok = i.(bool)
	case *int:
		*p, ok = i.(int)
	case *int64:
		var n int
		n, ok = i.(int)
		if ok {
			*p = int64(n)
		}
	case *string:
		var s string
		s, ok = i.(string)
		if ok {
			err := v.check(s)
			if err != nil {
				return err
			}
			*p = s
		}
	default:
		panic(fmt.Sprintf("config: unexpected variable type: %T", v.p))
	}
	if !ok {
		return fmt.Errorf("parsing %v: invalid syntax", i)
	}
	return nil
}

func (v value) String() string {
	switch p := v.p.(type) {
	case *bool:
		return strconv.FormatBool(*p)
	case *int:
		return strconv.Itoa(*p)
	case *int64:
		return strconv.FormatInt(*p, 10)
	case *string:
		return *p
	}
	return ""
}

func (v value) IsBoolFlag() bool {
	_, ok := v.p.(*bool)
	return ok
}
