package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Woody88/sitelink-sub002/internal/detect"
	"github.com/Woody88/sitelink-sub002/internal/ocr"
	"github.com/Woody88/sitelink-sub002/internal/vision"
)

// Strategy selector names accepted by NewStrategy.
const (
	StrategyCVLLM    = "cv-llm"
	StrategyRegion   = "region"
	StrategyOCRLLM   = "ocr-llm"
	StrategyEnsemble = "ensemble"
)

// Deps carries the injected capabilities strategies compose. CV, OCR and the
// vision model are capabilities, not implementations: strategies never
// construct their own.
type Deps struct {
	Detector  *detect.Detector
	OCR       ocr.Engine
	Validator *vision.Validator
	Proposer  *vision.Proposer
	Log       *logrus.Entry
}

// StrategyOptions tunes strategy assembly.
type StrategyOptions struct {
	CropPaddingPx int
	Ensemble      EnsembleConfig
}

// NewStrategy builds the named strategy from injected capabilities. The
// ensemble pairs cv-llm with ocr-llm, the two most independent signal
// sources.
func NewStrategy(name string, deps Deps, opts StrategyOptions) (Strategy, error) {
	switch name {
	case StrategyCVLLM:
		return NewCVLLM(deps.Detector, deps.Validator, opts.CropPaddingPx, deps.Log), nil
	case StrategyRegion:
		return NewRegionOCR(deps.Proposer, deps.OCR, deps.Log), nil
	case StrategyOCRLLM:
		return NewOCRLLM(deps.OCR, deps.Validator, opts.CropPaddingPx, deps.Log), nil
	case StrategyEnsemble:
		primary := NewCVLLM(deps.Detector, deps.Validator, opts.CropPaddingPx, deps.Log)
		secondary := NewOCRLLM(deps.OCR, deps.Validator, opts.CropPaddingPx, deps.Log)
		return NewEnsemble(primary, secondary, opts.Ensemble, deps.Log), nil
	default:
		return nil, fmt.Errorf("unknown detection strategy %q", name)
	}
}
