package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/go-playground/validator/v10"
)

var fetchCacheModes = map[string]bool{
	"default":        true,
	"no-store":       true,
	"reload":         true,
	"no-cache":       true,
	"force-cache":    true,
	"only-if-cached": true,
}

// ValidateConfig performs validation on the GlobalConfig structure.
func ValidateConfig(cfg *GlobalConfig) error {
	validate := validator.New()

	// Report fields by their file keys.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = validate.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case "", "trace", "debug", "info", "warn", "error", "fatal", "panic":
			return true
		default:
			return false
		}
	})

	_ = validate.RegisterValidation("logformat", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case "", "console", "text", "json":
			return true
		default:
			return false
		}
	})

	_ = validate.RegisterValidation("notifytype", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "", "confirm", "custom":
			return true
		default:
			return false
		}
	})

	_ = validate.RegisterValidation("extraction", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "", "regex", "selector":
			return true
		default:
			return false
		}
	})

	_ = validate.RegisterValidation("cachecontrol", func(fl validator.FieldLevel) bool {
		value := strings.ToLower(strings.TrimSpace(fl.Field().String()))
		return value == "" || fetchCacheModes[value] || strings.HasPrefix(value, "max-age=")
	})

	_ = validate.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(fl.Field().String())
		return err == nil
	})

	if err := validate.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			messages := make([]string, 0, len(errs))
			for _, e := range errs {
				fieldName := e.Namespace()
				if idx := strings.Index(fieldName, "."); idx >= 0 {
					fieldName = fieldName[idx+1:]
				}
				msg := fmt.Sprintf("Validation failed for '%s': rule '%s'", fieldName, e.Tag())
				if e.Param() != "" {
					msg += fmt.Sprintf(" (expected: %s)", e.Param())
				}
				if e.Value() != nil && e.Value() != "" {
					msg += fmt.Sprintf(", actual: '%v'", e.Value())
				}
				messages = append(messages, msg)
			}
			return common.NewConfigurationError("", "", "validation failed:\n  "+strings.Join(messages, "\n  "))
		}
		return common.WrapError(err, "configuration validation error")
	}

	return validateCrossField(cfg)
}

func validateCrossField(cfg *GlobalConfig) error {
	dc := cfg.DetectorConfig
	if len(dc.ExcludeScripts) > 0 && dc.ExcludeRegex != "" {
		return common.NewConfigurationError("detector_config", "exclude_regex", "cannot be combined with exclude_scripts")
	}
	if dc.ScriptRegex != "" {
		re := regexp.MustCompile(dc.ScriptRegex)
		if re.SubexpIndex("src") < 0 {
			return common.NewConfigurationError("detector_config", "script_regex", "pattern must define a named group 'src'")
		}
	}
	return nil
}
