package evaluate

import (
	"time"

	"github.com/hyperifyio/contentgrade/internal/linkcheck"
)

// Criterion keys in presentation order.
var (
	EEATCriteria           = []string{"experience", "expertise", "authoritativeness", "trustworthiness"}
	HelpfulContentCriteria = []string{"peopleFirst", "depth", "satisfaction", "originality"}
)

// Request asks for one article to be scored. Content may be empty when URL
// is set; the page is then fetched and parsed first.
type Request struct {
	Content    string `json:"content"`
	Title      string `json:"title,omitempty"`
	Keyword    string `json:"keyword,omitempty"`
	URL        string `json:"url,omitempty"`
	APIKey     string `json:"apiKey,omitempty"`
	CheckLinks bool   `json:"checkLinks,omitempty"`
}

// Criterion is the model's verdict on a single rubric item.
type Criterion struct {
	Score           int      `json:"score"`
	Analysis        string   `json:"analysis"`
	Recommendations []string `json:"recommendations"`
}

// Evaluation is a scored article.
type Evaluation struct {
	ID              string               `json:"id"`
	Title           string               `json:"title,omitempty"`
	Keyword         string               `json:"keyword,omitempty"`
	URL             string               `json:"url,omitempty"`
	Model           string               `json:"model"`
	GeneratedAt     time.Time            `json:"generatedAt"`
	ContentDigest   string               `json:"contentDigest"`
	Truncated       bool                 `json:"truncated,omitempty"`
	OverallScore    int                  `json:"overallScore"`
	EEAT            map[string]Criterion `json:"eeat"`
	HelpfulContent  map[string]Criterion `json:"helpfulContent"`
	Summary         string               `json:"summary"`
	Recommendations []string             `json:"recommendations"`
	LinkCheck       *linkcheck.Result    `json:"linkCheck,omitempty"`
}

// EEATScore is the mean of the E-E-A-T criterion scores.
func (e Evaluation) EEATScore() int { return meanScore(e.EEAT) }

// HelpfulContentScore is the mean of the helpful-content criterion scores.
func (e Evaluation) HelpfulContentScore() int { return meanScore(e.HelpfulContent) }

// Article is one side of a comparison.
type Article struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"`
}

// CompareRequest pits a primary article against competitors.
type CompareRequest struct {
	Primary     Article   `json:"primary"`
	Competitors []Article `json:"competitors"`
	Keyword     string    `json:"keyword,omitempty"`
	APIKey      string    `json:"apiKey,omitempty"`
}

// ArticleScore is one article's standing in a comparison.
type ArticleScore struct {
	Label               string   `json:"label"`
	Title               string   `json:"title,omitempty"`
	URL                 string   `json:"url,omitempty"`
	OverallScore        int      `json:"overallScore"`
	EEATScore           int      `json:"eeatScore"`
	HelpfulContentScore int      `json:"helpfulContentScore"`
	Strengths           []string `json:"strengths"`
	Weaknesses          []string `json:"weaknesses"`
}

// Comparison is the result of Compare. Articles[0] is the primary article.
type Comparison struct {
	ID              string         `json:"id"`
	Keyword         string         `json:"keyword,omitempty"`
	Model           string         `json:"model"`
	GeneratedAt     time.Time      `json:"generatedAt"`
	Articles        []ArticleScore `json:"articles"`
	Gaps            []string       `json:"gaps"`
	Advantages      []string       `json:"advantages"`
	Recommendations []string       `json:"recommendations"`
	Summary         string         `json:"summary"`
}

func meanScore(m map[string]Criterion) int {
	if len(m) == 0 {
		return 0
	}
	sum := 0
	for _, c := range m {
		sum += c.Score
	}
	return (sum + len(m)/2) / len(m)
}
