package classify

import (
	"math"
	"sync"
	"testing"

	"github.com/linnemanlabs/roadwatch/internal/incident"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"고속도로 추돌 사고 발생", []string{"고속도로", "추돌", "사고", "발생"}},
		{"  Car CRASH, lane-2!! ", []string{"car", "crash", "lane", "2"}},
		{"", nil},
		// conjoining jamo (NFD) compose to the same token as precomposed input
		{"\u1100\u1161", []string{"\uac00"}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("Tokenize(%q) = %q, want %q", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Tokenize(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestBayes_Classify(t *testing.T) {
	t.Parallel()

	b := DefaultBayes()
	tests := []struct {
		text string
		want incident.Category
	}{
		{"고속도로 추돌 사고 발생", incident.CategoryAccident},
		{"오토바이 접촉", incident.CategoryAccident},
		{"차량 고장", incident.CategoryIncident},
		{"터널 입구 침수", incident.CategoryIncident},
		{"소음 신고 접수", incident.CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			got := b.Classify(tt.text)
			if got.Category != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.text, got.Category, tt.want)
			}
			if got.Confidence <= 1.0/3 || got.Confidence > 1 {
				t.Errorf("Confidence = %v, want in (1/3, 1]", got.Confidence)
			}
		})
	}
}

func TestBayes_NoEvidence(t *testing.T) {
	t.Parallel()

	b := DefaultBayes()
	got := b.Classify("hello world")
	if got.Category != incident.CategoryOther || got.Confidence != FallbackConfidence {
		t.Errorf("Classify(no evidence) = %+v, want other/%v", got, FallbackConfidence)
	}
	if c := b.Confidence(""); c != FallbackConfidence {
		t.Errorf("Confidence(empty) = %v, want %v", c, FallbackConfidence)
	}

	if _, ok := NewBayes().Predict("사고"); ok {
		t.Error("untrained model should report no evidence")
	}
}

func TestBayes_PosteriorsSumToOne(t *testing.T) {
	t.Parallel()

	preds, ok := DefaultBayes().Predict("도로 정체 발생")
	if !ok {
		t.Fatal("expected evidence")
	}
	if len(preds) != 3 {
		t.Fatalf("predictions = %d, want 3", len(preds))
	}
	var sum float64
	for i, p := range preds {
		sum += p.Confidence
		if i > 0 && p.Confidence > preds[i-1].Confidence {
			t.Errorf("predictions not sorted: %+v", preds)
		}
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("sum = %v, want 1", sum)
	}
}

func TestBayes_ConcurrentTrainAndPredict(t *testing.T) {
	t.Parallel()

	b := DefaultBayes()
	var wg sync.WaitGroup
	wg.Add(20)
	for i := range 20 {
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				b.Train(incident.CategoryAccident, "차량 전복")
				return
			}
			_ = b.Classify("차량 전복")
		}()
	}
	wg.Wait()

	if got := b.Classify("전복").Category; got != incident.CategoryAccident {
		t.Errorf("after training Classify(전복) = %q, want accident", got)
	}
}

func TestBayes_IgnoresUntrainableDocuments(t *testing.T) {
	t.Parallel()

	b := NewBayes()
	b.Train(incident.CategoryAccident, "  ,, ")
	b.Train(incident.Category("weather"), "폭우")
	if _, ok := b.Predict("폭우"); ok {
		t.Error("model trained only on ignored documents should report no evidence")
	}

	b.Train(incident.CategoryIncident, "폭우")
	preds, ok := b.Predict("폭우")
	if !ok || preds[0].Category != incident.CategoryIncident {
		t.Errorf("Predict(폭우) = %+v/%v, want incident first", preds, ok)
	}
	for _, p := range preds {
		if math.IsNaN(p.Confidence) {
			t.Fatalf("NaN posterior in %+v", preds)
		}
	}
}

func TestRules_CustomKeywordsIgnoreCase(t *testing.T) {
	t.Parallel()

	rs := Rules{{Category: incident.CategoryIncident, Field: FieldReason, Keywords: []string{"Tow"}}}
	if got := rs.Classify(&Fields{Reason: "TOW TRUCK REQUESTED"}); got != incident.CategoryIncident {
		t.Errorf("Classify = %q, want incident", got)
	}
}

func TestRules_Classify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		f    Fields
		want incident.Category
	}{
		{"disaster type accident", Fields{DisasterType: "교통사고"}, incident.CategoryAccident},
		{"content collision", Fields{DisasterType: "기타", Content: "3중 추돌"}, incident.CategoryAccident},
		{"rollover", Fields{Content: "화물차 전복"}, incident.CategoryAccident},
		{"accident beats incident keyword", Fields{Content: "정체 중 사고"}, incident.CategoryAccident},
		{"breakdown", Fields{Content: "엔진 과열로 정차"}, incident.CategoryIncident},
		{"congestion", Fields{Content: "출근길 혼잡"}, incident.CategoryIncident},
		{"fire", Fields{Content: "터널 화재"}, incident.CategoryIncident},
		{"spill", Fields{Content: "기름 유출"}, incident.CategoryIncident},
		{"reason construction", Fields{Content: "차선 변경", Reason: "도로 공사"}, incident.CategoryIncident},
		{"weather type", Fields{DisasterType: "기상특보", Content: "강풍"}, incident.CategoryIncident},
		{"reason only mentions accident", Fields{Content: "신호 고장", Reason: "사고 예방"}, incident.CategoryIncident},
		{"latin disaster type in caps", Fields{DisasterType: "Traffic ACCIDENT"}, incident.CategoryAccident},
		{"latin content mixed case", Fields{Content: "Multi-Car Crash"}, incident.CategoryAccident},
		{"nothing", Fields{DisasterType: "생활", Content: "소음 민원"}, incident.CategoryOther},
		{"empty", Fields{}, incident.CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Rules(DefaultRules).Classify(&tt.f); got != tt.want {
				t.Errorf("Classify(%+v) = %q, want %q", tt.f, got, tt.want)
			}
		})
	}
}

func TestClassifier_Record(t *testing.T) {
	t.Parallel()

	c := New(nil, nil)

	got := c.Record(&Fields{Content: "차량 고장", Reason: "견인 요청"}, "차량 고장 (견인 요청)")
	if got.Category != incident.CategoryIncident {
		t.Errorf("Category = %q, want incident", got.Category)
	}
	if got.Confidence == FallbackConfidence {
		t.Error("expected a model confidence for known tokens")
	}

	got = c.Record(&Fields{Content: "xyz"}, "xyz ()")
	if got.Category != incident.CategoryOther || got.Confidence != FallbackConfidence {
		t.Errorf("Record(no evidence) = %+v, want other/%v", got, FallbackConfidence)
	}
}

func FuzzTokenize(f *testing.F) {
	f.Add("고속도로 추돌 사고 발생")
	f.Add("가 abc")
	f.Add("")
	f.Fuzz(func(t *testing.T, s string) {
		for _, tok := range Tokenize(s) {
			if tok == "" {
				t.Fatal("empty token")
			}
		}
		_ = DefaultBayes().Classify(s)
	})
}
