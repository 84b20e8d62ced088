// Package config fills structs from environment variables described by `env` struct tags.
//
// A tag holds the variable name and an optional constraint:
//
//	Bucket   string `env:"S3UPLOAD_BUCKET,required"`
//	PartSize int64  `env:"PART_SIZE,size"`
//	Mode     string `env:"MODE,opt[fast,safe]"`
//
// Variables that are not set leave the field untouched, so defaults assigned
// before parsing survive.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"
)

var (
	// ErrNotStructPtr is returned when the parsed value is not a pointer to a struct.
	ErrNotStructPtr = errors.New("must be a pointer to a struct")
	// ErrRequired is returned for a required variable that is not set.
	ErrRequired = errors.New("required variable is not set")
)

var (
	secretType   = reflect.TypeOf(Secret(""))
	durationType = reflect.TypeOf(time.Duration(0))
)

// Secret is a string that is redacted when printed.
type Secret string

// String ...
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "*****"
}

// Parse fills input from the process environment.
func Parse(input interface{}) error {
	return parse(input, env.NewRepository())
}

func parse(input interface{}, envGetter EnvGetter) error {
	v := reflect.ValueOf(input)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrNotStructPtr
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return ErrNotStructPtr
	}

	var errs []error
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag, ok := field.Tag.Lookup("env")
		if !ok || !field.IsExported() {
			continue
		}

		key, constraint := parseTag(tag)
		value := envGetter.Get(key)

		if err := validate(value, constraint); err != nil {
			errs = append(errs, fmt.Errorf("- %s: %w", key, err))
			continue
		}
		if value == "" {
			continue
		}
		if err := setField(v.Field(i), value, constraint); err != nil {
			errs = append(errs, fmt.Errorf("- %s: %w", key, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to parse config:\n%w", errors.Join(errs...))
	}
	return nil
}

func parseTag(tag string) (string, string) {
	key, constraint, _ := strings.Cut(tag, ",")
	return strings.TrimSpace(key), strings.TrimSpace(constraint)
}

func validate(value, constraint string) error {
	switch {
	case constraint == "", constraint == "size":
		return nil
	case constraint == "required":
		if value == "" {
			return ErrRequired
		}
		return nil
	case constraint == "file", constraint == "dir":
		if value == "" {
			return nil
		}
		return validatePath(value, constraint == "dir")
	case strings.HasPrefix(constraint, "opt[") && strings.HasSuffix(constraint, "]"):
		if value == "" {
			return nil
		}
		options := splitOptions(strings.TrimSuffix(strings.TrimPrefix(constraint, "opt["), "]"))
		for _, option := range options {
			if option == value {
				return nil
			}
		}
		return fmt.Errorf("value %q is not one of %v", value, options)
	default:
		return fmt.Errorf("unknown constraint: %s", constraint)
	}
}

func validatePath(pth string, wantDir bool) error {
	checker := pathutil.NewPathChecker()

	exists, err := checker.IsPathExists(pth)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("path does not exist: %s", pth)
	}

	isDir, err := checker.IsDirExists(pth)
	if err != nil {
		return err
	}
	if isDir != wantDir {
		if wantDir {
			return fmt.Errorf("not a directory: %s", pth)
		}
		return fmt.Errorf("not a file: %s", pth)
	}
	return nil
}

// splitOptions splits a comma separated list, single quotes group an option containing commas.
func splitOptions(s string) []string {
	var options []string
	var current strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '\'':
			quoted = !quoted
		case r == ',' && !quoted:
			options = append(options, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(options, current.String())
}

func setField(field reflect.Value, value, constraint string) error {
	if field.Kind() == reflect.Ptr {
		ptr := reflect.New(field.Type().Elem())
		if err := setField(ptr.Elem(), value, constraint); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}

	switch {
	case field.Type() == secretType:
		field.SetString(value)
		return nil
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := parseInt(value, constraint == "size")
		if err != nil {
			return err
		}
		if field.OverflowInt(n) {
			return fmt.Errorf("value %q overflows %s", value, field.Type())
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := parseInt(value, constraint == "size")
		if err != nil {
			return err
		}
		if n < 0 || field.OverflowUint(uint64(n)) {
			return fmt.Errorf("value %q overflows %s", value, field.Type())
		}
		field.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", value, err)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		items := strings.Split(value, "|")
		slice := reflect.MakeSlice(field.Type(), len(items), len(items))
		for i, item := range items {
			slice.Index(i).SetString(item)
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported type: %s", field.Type())
	}
	return nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid bool %q: %w", value, err)
	}
	return b, nil
}

// parseInt accepts human readable binary sizes (5MiB, 6m) when size is set.
func parseInt(value string, size bool) (int64, error) {
	if size {
		n, err := units.RAMInBytes(value)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q: %w", value, err)
		}
		return n, nil
	}

	n, err := strconv.ParseInt(value, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", value, err)
	}
	return n, nil
}
