// Package configbinder decodes loosely typed configuration maps into typed structs.
package configbinder

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// BindProperties decodes properties into target using the "yaml" struct tags.
// Weakly typed input is accepted, so "10" binds to an int field.
func BindProperties(properties map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(properties); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return fmt.Errorf("failed to bind properties to struct %s: %w", targetType.Name(), err)
	}
	return nil
}

// BindStringProperties is BindProperties for flat string maps such as CLI overrides.
func BindStringProperties(properties map[string]string, target interface{}) error {
	if len(properties) == 0 {
		return nil
	}
	intermediate := make(map[string]interface{}, len(properties))
	for k, v := range properties {
		intermediate[k] = v
	}
	return BindProperties(intermediate, target)
}
