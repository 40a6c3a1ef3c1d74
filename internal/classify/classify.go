package classify

// Classifier bundles the operator and feed classification paths.
type Classifier struct {
	bayes *Bayes
	rules Rules
}

// New returns a Classifier. A nil model or empty rule table selects the
// built-in default.
func New(b *Bayes, rules Rules) *Classifier {
	if b == nil {
		b = DefaultBayes()
	}
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Classifier{bayes: b, rules: rules}
}

// Text classifies operator free text with the Bayes model.
func (c *Classifier) Text(text string) Prediction {
	return c.bayes.Classify(text)
}

// Record classifies a feed record by rules. message is the composed
// message stored for the record; its Bayes score is used as confidence.
func (c *Classifier) Record(f *Fields, message string) Prediction {
	return Prediction{
		Category:   c.rules.Classify(f),
		Confidence: c.bayes.Confidence(message),
	}
}
