package model

import "time"

// Classification verdicts.
const (
	ClassificationBusiness   = "Business"
	ClassificationIndividual = "Individual"
)

// Processing tiers recorded on each classification result.
const (
	TierKeywordExclusion = "keyword_exclusion"
	TierAI               = "ai"
	TierDuplicate        = "duplicate"
)

// NormalizedName is the canonical comparison form of a payee name plus a
// deterministic content hash of that form. The hash is stable across runs
// and machines and is used as a cache and dedupe key.
type NormalizedName struct {
	Normalized string `json:"normalized"`
	Hash       string `json:"hash"`
}

// SimilarityScores holds the four string-distance metrics and their weighted
// composite, each expressed as a percentage in [0,100].
type SimilarityScores struct {
	Levenshtein float64 `json:"levenshtein"`
	JaroWinkler float64 `json:"jaro_winkler"`
	Dice        float64 `json:"dice"`
	TokenSort   float64 `json:"token_sort"`
	Combined    float64 `json:"combined"`
}

// ClassificationResult is the verdict for a single payee name.
type ClassificationResult struct {
	Classification  string   `json:"classification"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	ProcessingTier  string   `json:"processing_tier"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
}

// PayeeClassification is one classified payee row. OriginalData carries the
// caller's source row untouched; the engine never inspects it.
type PayeeClassification struct {
	ID           string               `json:"id"`
	PayeeName    string               `json:"payee_name"`
	Result       ClassificationResult `json:"result"`
	Timestamp    time.Time            `json:"timestamp"`
	RowIndex     int                  `json:"row_index"`
	OriginalData map[string]string    `json:"original_data,omitempty"`
}

// DedupeLink records that DuplicateNormalized should resolve to
// CanonicalNormalized. Links are created once per discovered duplicate
// relationship and upserted idempotently by duplicate key.
type DedupeLink struct {
	CanonicalNormalized string `json:"canonical_normalized"`
	DuplicateNormalized string `json:"duplicate_normalized"`
}

// DuplicateGroup is one canonical normalized name with all raw member names
// (the canonical's raw form included) and their input row indices.
type DuplicateGroup struct {
	Canonical  string   `json:"canonical"`
	Members    []string `json:"members"`
	RowIndices []int    `json:"row_indices"`
}

// QueueItem is one deduplicated name awaiting actual classification.
type QueueItem struct {
	Name           string            `json:"name"`
	NormalizedName string            `json:"normalized_name"`
	OriginalIndex  int               `json:"original_index"`
	OriginalData   map[string]string `json:"original_data,omitempty"`
}

// BatchJobStatus enumerates batch job states.
type BatchJobStatus string

// Batch job states.
const (
	BatchStatusRunning   BatchJobStatus = "running"
	BatchStatusCompleted BatchJobStatus = "completed"
	BatchStatusFailed    BatchJobStatus = "failed"
)

// BatchJob tracks one classification run over an input file.
type BatchJob struct {
	ID          string         `json:"id"`
	Source      string         `json:"source"`
	Status      BatchJobStatus `json:"status"`
	TotalNames  int            `json:"total_names"`
	Classified  int            `json:"classified"`
	Excluded    int            `json:"excluded"`
	Duplicates  int            `json:"duplicates"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
}
