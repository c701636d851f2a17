// Package jsonutil decodes loosely typed JSON produced by LLMs.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, accepting numbers
// and booleans where a string was asked for. Returns "" for null or empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}

// FlexibleBoolValue converts a json.RawMessage to a bool. Besides JSON
// booleans it accepts "true"/"yes"/"1" strings and non-zero numbers.
// Null, empty and anything unrecognised are false.
func FlexibleBoolValue(raw json.RawMessage) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return false
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return boolVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return numVal != 0
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		switch strings.ToLower(strings.TrimSpace(strVal)) {
		case "true", "yes", "y", "1":
			return true
		}
	}
	return false
}
