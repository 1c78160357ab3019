package metrics

import (
	"fmt"
	"path"
	"reflect"
)

// metricAdder allocates a measure for a tagged struct field
type metricAdder func(field interface{}, metric, group string, tags map[string]string) interface{}

// supported struct tags, mapped to the keys used by addMetric
var tagKeys = map[string]string{
	"metric":      "metric",
	"unit":        "unit",
	"group":       "group",
	"description": "description",
	"extraviews":  "views",
	"tags":        "groupings",
}

func equalType(a, b interface{}) bool {
	return reflect.TypeOf(a) == reflect.TypeOf(b)
}

// scanStruct walks a pointer to a struct and allocates all tagged measures.
//
// Nested structs extend the path of their metrics with their "group" tag.
// Fields which are not pointers to measures (e.g. slices) are ignored.
func scanStruct(parent string, adder metricAdder, m interface{}) {
	rv := reflect.ValueOf(m)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("scanStruct requires a pointer to a struct, got: %T", m))
	}
	scanValue(parent, adder, rv.Elem())
}

func scanValue(parent string, adder metricAdder, sv reflect.Value) {
	st := sv.Type()

	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		fv := sv.Field(i)
		if !fv.CanSet() {
			continue
		}

		tags := fieldTags(field)
		metric := tags["metric"]

		switch {
		case metric == "" && fv.Kind() == reflect.Struct:
			scanValue(path.Join(parent, tags["group"]), adder, fv)

		case metric == "" && fv.Kind() == reflect.Ptr && fv.Type().Elem().Kind() == reflect.Struct && !isMeasure(fv):
			if fv.IsNil() {
				fv.Set(reflect.New(fv.Type().Elem()))
			}
			scanValue(path.Join(parent, tags["group"]), adder, fv.Elem())

		case metric != "" && fv.Kind() == reflect.Ptr:
			allocated := adder(fv.Interface(), metric, path.Join(parent, tags["group"]), tags)
			if allocated != nil {
				fv.Set(reflect.ValueOf(allocated))
			}
		}
	}
}

// isMeasure tells if a pointer field refers to an opencensus measure rather than to a group of metrics
func isMeasure(fv reflect.Value) bool {
	_, ok := fv.Type().MethodByName("M")
	return ok
}

// fieldTags decodes field tags that decorate the struct.
// Supported tags are:
//   - metric: the metric name
//   - group: builds an additional path to the metric (e.g.  root/path/mymetrics/{metric})
//   - unit: count, bytes, sumbytes or milliseconds
//   - description: adds this description to the metric and the associated views
//   - extraviews:[aggregator, ...]: builds additional views with alternate aggregators
//   - tags:[key, ...]: tag keys used to group measurements in views
func fieldTags(field reflect.StructField) map[string]string {
	tags := make(map[string]string, len(tagKeys))
	for structTag, key := range tagKeys {
		if v, ok := field.Tag.Lookup(structTag); ok {
			tags[key] = v
		}
	}
	return tags
}
