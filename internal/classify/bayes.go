package classify

import (
	"cmp"
	"math"
	"slices"
	"sync"

	"github.com/navossoc/bayesian"

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

// FallbackConfidence is reported when the model has no evidence for a text.
const FallbackConfidence = 0.7

// Example is one labelled training document.
type Example struct {
	Category incident.Category
	Text     string
}

// DefaultTraining is the built-in training set.
var DefaultTraining = []Example{
	{incident.CategoryAccident, "교통사고 발생"},
	{incident.CategoryAccident, "차량 추돌"},
	{incident.CategoryAccident, "승용차 사고"},
	{incident.CategoryAccident, "버스 추돌"},
	{incident.CategoryAccident, "오토바이 접촉"},
	{incident.CategoryIncident, "도로 정체"},
	{incident.CategoryIncident, "차량 고장"},
	{incident.CategoryIncident, "공사로 인한 차선 통제"},
	{incident.CategoryIncident, "화재 발생"},
	{incident.CategoryIncident, "낙하물"},
	{incident.CategoryIncident, "침수"},
	{incident.CategoryOther, "일반 신고"},
	{incident.CategoryOther, "소음 신고"},
	{incident.CategoryOther, "질서유지"},
	{incident.CategoryOther, "환경오염"},
}

// Prediction is a scored label.
type Prediction struct {
	Category   incident.Category
	Confidence float64
}

// Bayes is a naive Bayes text classifier over incident.Categories.
// Safe for concurrent use; training and classification may interleave.
type Bayes struct {
	mu    sync.RWMutex
	model *bayesian.Classifier
	vocab map[string]struct{}
	ndocs int
}

// NewBayes returns an untrained model.
func NewBayes() *Bayes {
	classes := make([]bayesian.Class, len(incident.Categories))
	for i, cat := range incident.Categories {
		classes[i] = bayesian.Class(cat)
	}
	return &Bayes{
		model: bayesian.NewClassifier(classes...),
		vocab: make(map[string]struct{}),
	}
}

// DefaultBayes returns a model trained on DefaultTraining.
func DefaultBayes() *Bayes {
	b := NewBayes()
	for _, ex := range DefaultTraining {
		b.Train(ex.Category, ex.Text)
	}
	return b
}

// Train adds one labelled document. Categories outside
// incident.Categories and texts without tokens are ignored.
func (b *Bayes) Train(cat incident.Category, text string) {
	toks := Tokenize(text)
	if len(toks) == 0 || !slices.Contains(incident.Categories, cat) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.model.Learn(toks, bayesian.Class(cat))
	b.ndocs++
	for _, tok := range toks {
		b.vocab[tok] = struct{}{}
	}
}

// Predict returns every category ordered by posterior, highest first. The
// posteriors sum to 1. ok is false when none of the text's tokens were seen
// during training; the scores then only reflect the priors.
func (b *Bayes) Predict(text string) (preds []Prediction, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.ndocs == 0 {
		return nil, false
	}

	// unseen tokens carry no evidence and only add the model's floor
	// probability to every class
	var known []string
	for _, tok := range Tokenize(text) {
		if _, seen := b.vocab[tok]; seen {
			known = append(known, tok)
		}
	}

	logs, _, _ := b.model.LogScores(known)

	// softmax over log scores; untrained classes score -Inf and get 0
	peak := math.Inf(-1)
	for _, lp := range logs {
		peak = math.Max(peak, lp)
	}
	var sum float64
	for i, lp := range logs {
		logs[i] = math.Exp(lp - peak)
		sum += logs[i]
	}

	preds = make([]Prediction, len(logs))
	for i := range logs {
		preds[i] = Prediction{Category: incident.Categories[i], Confidence: logs[i] / sum}
	}
	// ties keep incident.Categories order
	slices.SortStableFunc(preds, func(x, y Prediction) int {
		return cmp.Compare(y.Confidence, x.Confidence)
	})
	return preds, len(known) > 0
}

// Classify returns the most probable category and its posterior. Text with
// no known tokens is classified as other with FallbackConfidence.
func (b *Bayes) Classify(text string) Prediction {
	preds, ok := b.Predict(text)
	if !ok {
		return Prediction{Category: incident.CategoryOther, Confidence: FallbackConfidence}
	}
	return preds[0]
}

// Confidence returns the top posterior for text, or FallbackConfidence when
// the model has no evidence for it.
func (b *Bayes) Confidence(text string) float64 {
	preds, ok := b.Predict(text)
	if !ok {
		return FallbackConfidence
	}
	return preds[0].Confidence
}
