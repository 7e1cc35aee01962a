package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
)

const (
	chartMaxNodes = 15000
	chartMaxDepth = 64
)

var chartAllowedSeriesTypes = map[string]bool{
	"line": true, "bar": true, "pie": true, "scatter": true,
	"effectScatter": true, "candlestick": true, "boxplot": true,
	"heatmap": true, "radar": true, "funnel": true, "gauge": true,
	"sankey": true, "sunburst": true, "tree": true, "treemap": true,
	"graph": true, "themeRiver": true, "pictorialBar": true, "custom": true,
}

// chartAxisBoundTypes are the series types that plot against a cartesian
// grid and therefore require both xAxis and yAxis.
var chartAxisBoundTypes = map[string]bool{
	"line": true, "bar": true, "scatter": true, "effectScatter": true,
	"candlestick": true, "boxplot": true, "heatmap": true, "pictorialBar": true,
}

var chartAxisTypes = map[string]bool{"category": true, "value": true, "time": true, "log": true}

var chartForbiddenKeys = map[string]bool{"__proto__": true, "prototype": true, "constructor": true}

// chartObjectOrListKeys are option members that must be an object or a list
// of objects when present.
var chartObjectOrListKeys = []string{"title", "caption", "legend", "grid", "dataset", "visualMap", "dataZoom"}

var chartFuncLiteralRe = regexp.MustCompile(`function\s*\(|\([^)]*\)\s*=>`)

// ValidateChartJSON applies the structural rules for a chartjson payload.
// The returned error message is the precise reason handed to the repair
// model; nil means the payload is renderable.
func ValidateChartJSON(body string) error {
	var root any
	if err := json.Unmarshal([]byte(body), &root); err != nil {
		return fmt.Errorf("chartjson payload is not valid JSON: %v", err)
	}
	obj, ok := root.(map[string]any)
	if !ok {
		return fmt.Errorf("chartjson payload root must be an object.")
	}

	for k := range obj {
		switch k {
		case "title", "caption", "option":
		default:
			return fmt.Errorf("chartjson top-level key %q is not allowed (allowed: title, caption, option).", k)
		}
	}
	if v, present := obj["title"]; present {
		if _, ok := v.(string); !ok {
			return fmt.Errorf("chartjson title must be a string.")
		}
	}
	if v, present := obj["caption"]; present {
		if _, ok := v.(string); !ok {
			return fmt.Errorf("chartjson caption must be a string.")
		}
	}
	optAny, present := obj["option"]
	if !present {
		return fmt.Errorf("chartjson option object is required.")
	}
	opt, ok := optAny.(map[string]any)
	if !ok {
		return fmt.Errorf("chartjson option must be an object.")
	}

	nodes := 0
	if err := walkChartValue(root, 1, &nodes); err != nil {
		return err
	}

	seriesAny, present := opt["series"]
	if !present {
		return fmt.Errorf("chartjson option.series is required.")
	}
	series, ok := seriesAny.([]any)
	if !ok || len(series) == 0 {
		return fmt.Errorf("chartjson option.series must be a non-empty list.")
	}
	needAxes := false
	for i, sAny := range series {
		s, ok := sAny.(map[string]any)
		if !ok {
			return fmt.Errorf("chartjson option.series[%d] must be an object.", i)
		}
		typ, _ := s["type"].(string)
		if !chartAllowedSeriesTypes[typ] {
			return fmt.Errorf("chartjson option.series[%d] has unsupported type %q.", i, typ)
		}
		if chartAxisBoundTypes[typ] {
			needAxes = true
		}
		if d, present := s["data"]; present {
			if _, ok := d.([]any); !ok {
				return fmt.Errorf("chartjson option.series[%d].data must be an array.", i)
			}
		}
	}
	if needAxes {
		if _, present := opt["xAxis"]; !present {
			return fmt.Errorf("chartjson xAxis is required for axis-bound series.")
		}
		if _, present := opt["yAxis"]; !present {
			return fmt.Errorf("chartjson yAxis is required for axis-bound series.")
		}
	}
	for _, axisKey := range []string{"xAxis", "yAxis"} {
		if v, present := opt[axisKey]; present {
			if err := validateChartAxes(axisKey, v); err != nil {
				return err
			}
		}
	}
	for _, k := range chartObjectOrListKeys {
		if v, present := opt[k]; present && !isObjectOrObjectList(v) {
			return fmt.Errorf("chartjson option.%s must be an object or a list of objects.", k)
		}
	}
	return nil
}

func validateChartAxes(key string, v any) error {
	var axes []any
	switch a := v.(type) {
	case map[string]any:
		axes = []any{a}
	case []any:
		axes = a
	default:
		return fmt.Errorf("chartjson option.%s must be an object or a list of objects.", key)
	}
	for _, axAny := range axes {
		ax, ok := axAny.(map[string]any)
		if !ok {
			return fmt.Errorf("chartjson option.%s entries must be objects.", key)
		}
		if t, present := ax["type"]; present {
			ts, _ := t.(string)
			if !chartAxisTypes[ts] {
				return fmt.Errorf("chartjson option.%s type %q is not one of category, value, time, log.", key, ts)
			}
		}
		if d, present := ax["data"]; present {
			if _, ok := d.([]any); !ok {
				return fmt.Errorf("chartjson option.%s.data must be an array.", key)
			}
		}
	}
	return nil
}

func isObjectOrObjectList(v any) bool {
	switch x := v.(type) {
	case map[string]any:
		return true
	case []any:
		for _, e := range x {
			if _, ok := e.(map[string]any); !ok {
				return false
			}
		}
		return true
	}
	return false
}

// walkChartValue enforces forbidden keys, function-literal strings, and the
// node-count/depth shape bounds over the whole payload.
func walkChartValue(v any, depth int, nodes *int) error {
	*nodes++
	if *nodes > chartMaxNodes {
		return fmt.Errorf("chartjson payload exceeds %d nodes.", chartMaxNodes)
	}
	if depth > chartMaxDepth {
		return fmt.Errorf("chartjson payload exceeds nesting depth %d.", chartMaxDepth)
	}
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			if chartForbiddenKeys[k] {
				return fmt.Errorf("chartjson payload contains forbidden key %q.", k)
			}
			if err := walkChartValue(val, depth+1, nodes); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range x {
			if err := walkChartValue(e, depth+1, nodes); err != nil {
				return err
			}
		}
	case string:
		if chartFuncLiteralRe.MatchString(x) {
			return fmt.Errorf("chartjson payload contains a function literal in a string value.")
		}
	}
	return nil
}
