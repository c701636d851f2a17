package far

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
	"github.com/ekaya-inc/far-audit/pkg/models"
)

//go:embed corpus/far_rules.json
var builtinCorpus []byte

// BuiltinRules parses the embedded FAR corpus.
func BuiltinRules() ([]models.FarRule, error) {
	return ParseRules(builtinCorpus, ".json")
}

// ParseRules decodes a rule corpus. ext selects the format: ".yaml"/".yml"
// for YAML, anything else for JSON. Both a bare list and an object with a
// "rules" key are accepted.
func ParseRules(data []byte, ext string) ([]models.FarRule, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var wrapped struct {
		Rules []models.FarRule `json:"rules" yaml:"rules"`
	}
	var list []models.FarRule

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &list); err == nil {
			return list, nil
		}
		if err := yaml.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode yaml rules: %w", err)
		}
		return wrapped.Rules, nil
	default:
		if data[0] == '[' {
			if err := json.Unmarshal(data, &list); err != nil {
				return nil, fmt.Errorf("decode json rules: %w", err)
			}
			return list, nil
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode json rules: %w", err)
		}
		return wrapped.Rules, nil
	}
}

// ReadOverlay reads an external rule corpus from path. A missing file is
// not an error and yields no rules.
func ReadOverlay(path string) ([]models.FarRule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read overlay %s: %w", path, err)
	}
	return ParseRules(data, filepath.Ext(path))
}

// Load builds the active rule index from the embedded corpus overlaid by the
// file at overlayPath.
//
// Degraded modes: an invalid overlay is logged and ignored. When the builtins
// cannot be loaded either, Load returns an empty index together with a
// rule_load error so callers can surface it and keep auditing (every row
// GREEN).
func Load(overlayPath string, logger *zap.Logger) (*RuleIndex, error) {
	logger = logger.Named("far-rules")

	builtin, builtinErr := BuiltinRules()
	overlay, overlayErr := ReadOverlay(overlayPath)
	if overlayErr != nil {
		logger.Warn("Ignoring invalid FAR rule overlay",
			zap.String("path", overlayPath),
			zap.Error(overlayErr))
		overlay = nil
	}

	if builtinErr != nil {
		if overlayErr != nil || len(overlay) == 0 {
			return EmptyIndex(), apperrors.New(apperrors.KindRuleLoad,
				"builtin rules unavailable and no valid overlay", errors.Join(builtinErr, overlayErr))
		}
		logger.Warn("Builtin FAR rules unavailable, using overlay only", zap.Error(builtinErr))
		builtin = nil
	}

	idx, err := NewRuleIndex(builtin, overlay)
	if err != nil && overlay != nil {
		logger.Warn("Overlay rejected during merge, using builtin rules",
			zap.String("path", overlayPath),
			zap.Error(err))
		idx, err = NewRuleIndex(builtin, nil)
	}
	if err != nil {
		return EmptyIndex(), apperrors.New(apperrors.KindRuleLoad, "merge rules", err)
	}

	logger.Info("FAR rule index loaded",
		zap.Int("rules", idx.Len()),
		zap.Int("overlay_rules", len(overlay)))
	return idx, nil
}
