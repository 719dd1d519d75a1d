package scoring

import (
	"encoding/json"
	"math"
)

// ScoreResult is the structured evaluation returned by the oracle.
type ScoreResult struct {
	JobTitle        string       `json:"job_title"`
	FitScore        Score        `json:"muc_do_phu_hop"`
	OverallScore    Score        `json:"diem_tong"`
	Overview        string       `json:"nhan_xet_tong_quan"`
	RecommendQuery  string       `json:"recommend_query"`
	SubScores       SubScores    `json:"diem_chi_tiet"`
	Strengths       []string     `json:"uu_diem"`
	Improvements    []string     `json:"can_cai_thien"`
	ActionChecklist string       `json:"goi_y_chi_tiet"`
	Annotations     []Annotation `json:"annotations"`
	// AnnotatedPDFB64 is filled by the worker, never by the oracle.
	AnnotatedPDFB64 string `json:"annotated_pdf_b64,omitempty"`
}

type SubScores struct {
	Presentation Score `json:"trinh_bay"`
	Content      Score `json:"noi_dung"`
	Experience   Score `json:"kinh_nghiem"`
	Skills       Score `json:"ky_nang"`
	Achievements Score `json:"thanh_tuu"`
}

type Annotation struct {
	Text     string `json:"text"`
	Reason   string `json:"reason"`
	Severity string `json:"severity"`
}

// Evaluation is a parsed oracle answer along with the JSON it came from.
type Evaluation struct {
	Result ScoreResult
	Raw    []byte
}

// Score is an integer score in [1, 100]. It accepts fractional JSON numbers
// and clamps out-of-range values.
type Score int

func (s *Score) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*s = clampScore(f)
	return nil
}

func clampScore(f float64) Score {
	switch {
	case math.IsNaN(f) || f < 1:
		return 1
	case f > 100:
		return 100
	}
	return Score(math.Round(f))
}

func (r *ScoreResult) normalize() {
	if r.Strengths == nil {
		r.Strengths = []string{}
	}
	if r.Improvements == nil {
		r.Improvements = []string{}
	}
	if r.Annotations == nil {
		r.Annotations = []Annotation{}
	}
}
