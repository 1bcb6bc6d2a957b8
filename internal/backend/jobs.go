package backend

// Job is a processing request for the backend: scrape sources, summarize,
// fact-check.
type Job struct {
	Name    string
	Path    string
	Payload any
}

// PerSourceParams controls a per-source scrape round.
type PerSourceParams struct {
	TargetPerSource    int `json:"target_per_source"`
	MaxArticlesPerPage int `json:"max_articles_per_page"`
	MaxRoundsPerSource int `json:"max_rounds_per_source"`
}

// FactCheckParams controls a scrape with fact-checking.
type FactCheckParams struct {
	MaxTotalArticles   int `json:"max_total_articles"`
	MaxArticlesPerPage int `json:"max_articles_per_page"`
	MaxFactsPerArticle int `json:"max_facts_per_article"`
}

// Defaults used by the site's admin buttons.
var (
	DefaultPerSource = PerSourceParams{TargetPerSource: 3, MaxArticlesPerPage: 3, MaxRoundsPerSource: 3}
	DefaultFactCheck = FactCheckParams{MaxTotalArticles: 3, MaxArticlesPerPage: 3, MaxFactsPerArticle: 5}
)

const (
	PerSourcePath = "/api/scrape-per-source"
	FactCheckPath = "/api/scrape-with-fact-check"
)

func PerSourceJob(p PerSourceParams) Job {
	return Job{Name: "scrape-per-source", Path: PerSourcePath, Payload: p}
}

func FactCheckJob(p FactCheckParams) Job {
	return Job{Name: "scrape-with-fact-check", Path: FactCheckPath, Payload: p}
}
