package simplepool

import "fmt"

// ElementType is the domain type for record element variants.
type ElementType string

// Element type constants (typed).
const (
	ElementText  ElementType = "text"
	ElementImage ElementType = "image"
	ElementVideo ElementType = "video"
	ElementAudio ElementType = "audio"
)

// Element is a single entry in a record's ordered content list. Text
// elements carry Content; media elements carry FileRef, the name of a file
// in the media store. Index orders elements while a record is pending;
// approved records are persisted pre-sorted with Index omitted.
type Element struct {
	Type    ElementType `json:"type"`
	Content string      `json:"content,omitempty"`
	FileRef string      `json:"fileRef,omitempty"`
	Index   *int        `json:"index,omitempty"`
}

// IsMedia reports whether the element references a file in the media store.
func (e Element) IsMedia() bool {
	return e.Type == ElementImage || e.Type == ElementVideo || e.Type == ElementAudio
}

// Record is one submission. Its ID is unique across both partitions: a
// given id is either pending or approved, never both.
type Record struct {
	ID              int64     `json:"id"`
	Elements        []Element `json:"elements"`
	ContributorID   string    `json:"contributorId"`
	ContributorName string    `json:"contributorName"`
}

// MediaFileName returns the media store name for the n-th element of a
// record, following the {id}_{n}.{ext} convention.
func MediaFileName(id int64, n int, ext string) string {
	return fmt.Sprintf("%d_%d.%s", id, n, ext)
}

// Thresholds are the minimum similarity scores at which a candidate is
// reported as a duplicate. Values are in [0, 1].
type Thresholds struct {
	Image float64 `json:"image"`
	Text  float64 `json:"text"`
}

// DefaultThresholds are tuned for the DCT-based image fingerprint used by
// the fingerprint subpackage; they are not portable to other transforms.
var DefaultThresholds = Thresholds{Image: 0.90, Text: 1.0}

// DuplicateMatch identifies the existing record most similar to a
// candidate, at or above the relevant threshold.
type DuplicateMatch struct {
	RecordID   int64       `json:"matchedId"`
	Similarity float64     `json:"similarity"`
	Kind       ElementType `json:"kind"`
}

// DuplicateReport holds per-candidate match results. Images and Texts are
// parallel to the query inputs; a nil entry means no duplicate was found
// for that candidate.
type DuplicateReport struct {
	Images []*DuplicateMatch `json:"images"`
	Texts  []*DuplicateMatch `json:"texts"`
}

// HasMatch reports whether any candidate matched an existing record.
func (r *DuplicateReport) HasMatch() bool {
	if r == nil {
		return false
	}
	for _, m := range r.Images {
		if m != nil {
			return true
		}
	}
	for _, m := range r.Texts {
		if m != nil {
			return true
		}
	}
	return false
}

// FirstMatch returns the first non-nil match (images before texts), or nil.
func (r *DuplicateReport) FirstMatch() *DuplicateMatch {
	if r == nil {
		return nil
	}
	for _, m := range r.Images {
		if m != nil {
			return m
		}
	}
	for _, m := range r.Texts {
		if m != nil {
			return m
		}
	}
	return nil
}
