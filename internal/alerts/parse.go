// internal/alerts/parse.go
package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// rulesSchema describes the shape of a declarative rules document. Unknown
// operators, unknown check keys, and malformed bodies fail validation, so a
// misdeclared rule can never silently evaluate as something else.
var rulesSchema = func() map[string]any {
	number := map[string]any{"type": "number"}
	ruleValue := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"$eq":       number,
			"$gt":       number,
			"$gte":      number,
			"$lt":       number,
			"$lte":      number,
			"$after":    map[string]any{"type": "number", "minimum": 0},
			"$before":   map[string]any{"type": "number", "minimum": 0},
			"$skip_lt":  number,
			"$skip_lte": number,
			"$skip_gt":  number,
			"$skip_gte": number,
		},
		"additionalProperties": false,
		"minProperties":        1,
	}
	check := map[string]any{
		"anyOf": []any{
			ruleValue,
			map[string]any{"type": "array", "items": ruleValue, "minItems": 1},
		},
	}
	ruleProps := map[string]any{
		"tags": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string", "minLength": 1},
		},
		"failPercentile": map[string]any{"type": "number", "minimum": 0, "maximum": 100},
	}
	for _, key := range CheckKeys {
		ruleProps[string(key)] = check
	}
	return map[string]any{
		"type": "object",
		"additionalProperties": map[string]any{
			"type":                 "object",
			"properties":           ruleProps,
			"additionalProperties": false,
			"minProperties":        1,
		},
	}
}()

// ParseRules validates and decodes a declarative rules document. Every rule
// must target a metric in the frozen catalog, checked via metricExists.
// Validation failures are fatal by design: the engine refuses to start
// rather than run with undefined rules.
func ParseRules(data []byte, metricExists func(string) bool) ([]Rule, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(rulesSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("alert rules are not valid JSON: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("alert rules are malformed: %s", strings.Join(problems, "; "))
	}

	var doc map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding alert rules: %w", err)
	}

	metrics := make([]string, 0, len(doc))
	for metric := range doc {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	rules := make([]Rule, 0, len(doc))
	for _, metric := range metrics {
		if metricExists != nil && !metricExists(metric) {
			return nil, fmt.Errorf("alert rule targets unknown metric %q", metric)
		}
		rule, err := decodeRule(metric, doc[metric])
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func decodeRule(metric string, body map[string]json.RawMessage) (Rule, error) {
	rule := Rule{
		Metric:         metric,
		FailPercentile: DefaultFailPercentile,
		Checks:         make(map[CheckKey][]RuleValue),
	}

	keys := make([]string, 0, len(body))
	for key := range body {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := body[key]
		switch key {
		case "tags":
			if err := json.Unmarshal(raw, &rule.Tags); err != nil {
				return Rule{}, fmt.Errorf("rule %q: decoding tags: %w", metric, err)
			}
		case "failPercentile":
			if err := json.Unmarshal(raw, &rule.FailPercentile); err != nil {
				return Rule{}, fmt.Errorf("rule %q: decoding failPercentile: %w", metric, err)
			}
		default:
			values, err := decodeRuleValues(raw)
			if err != nil {
				return Rule{}, fmt.Errorf("rule %q, check %q: %w", metric, key, err)
			}
			rule.Checks[CheckKey(key)] = values
		}
	}

	if len(rule.Checks) == 0 {
		return Rule{}, fmt.Errorf("rule %q declares no checks", metric)
	}
	for key, values := range rule.Checks {
		for _, rv := range values {
			if !rv.hasComparison() {
				return Rule{}, fmt.Errorf("rule %q, check %q: no comparison operator", metric, key)
			}
			if rv.Eq != nil && (rv.Gt != nil || rv.Gte != nil || rv.Lt != nil || rv.Lte != nil) {
				return Rule{}, fmt.Errorf("rule %q, check %q: $eq cannot be combined with bound operators", metric, key)
			}
		}
	}
	return rule, nil
}

func decodeRuleValues(raw json.RawMessage) ([]RuleValue, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var values []RuleValue
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return nil, err
		}
		return values, nil
	}
	var value RuleValue
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return nil, err
	}
	return []RuleValue{value}, nil
}
