package config

import (
	"reflect"

	"github.com/spf13/viper"
)

// setDefaults registers every leaf of def with v so that AutomaticEnv
// can find keys that appear in neither the file nor the defaults map.
func setDefaults(v *viper.Viper, def Config) {
	walk(v, "", reflect.ValueOf(def))
}

func walk(v *viper.Viper, prefix string, val reflect.Value) {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		fv := val.Field(i)
		if fv.Kind() == reflect.Struct {
			walk(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}
