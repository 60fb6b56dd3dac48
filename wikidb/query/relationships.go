package query

import (
	"context"
	"sort"

	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/model"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/parquet"
)

// Direction selects which linkage edges RelationshipsByID follows.
type Direction int

const (
	// DirectionOut finds articles this article's own infobox values
	// reference by normalized title.
	DirectionOut Direction = iota
	// DirectionIn finds same-category articles whose infobox values
	// reference this article, or that share its WikidataID.
	DirectionIn
	// DirectionBoth unions Out and In.
	DirectionBoth
)

// Relationship is one linked article, with the infobox field that
// produced the link (empty for a shared-WikidataID match).
type Relationship struct {
	ID    string
	Title string
	Field string
}

// RelationshipsByID finds same-category siblings of the article
// identified by id, linked through shared infobox values or a shared
// WikidataID. Scans the article's own category partition via
// StreamRows since no dedicated link index exists.
func (f *Facade) RelationshipsByID(ctx context.Context, id string, dir Direction, limit int) ([]Relationship, error) {
	var out []Relationship
	err := f.metrics.TrackQuery("relationships", func() error {
		m, err := f.container.ManifestReader(ctx)
		if err != nil {
			return err
		}
		pr, err := f.container.ParquetReader()
		if err != nil {
			return err
		}
		subject, err := m.ResolveByID(ctx, pr, id)
		if err != nil {
			return err
		}
		if subject == nil {
			return nil
		}

		outbound := map[string]string{} // normalized target -> field
		if dir == DirectionOut || dir == DirectionBoth {
			for field, value := range subject.Infobox {
				norm := model.NormalizeTitle(value)
				if norm != "" {
					outbound[norm] = field
				}
			}
		}

		seen := map[string]bool{subject.ID: true}
		files := m.FilesForCategory(subject.Category)
		if len(files) == 0 {
			for _, fi := range m.Manifest.Files {
				files = append(files, fi.Path)
			}
		}

	scanFiles:
		for _, file := range files {
			scanErr := pr.StreamRows(ctx, file, parquet.StreamOptions{}, func(articles []model.Article) error {
				for _, a := range articles {
					if seen[a.ID] {
						continue
					}
					if field, ok := outbound[model.NormalizeTitle(a.Title)]; ok {
						out = append(out, Relationship{ID: a.ID, Title: a.Title, Field: field})
						seen[a.ID] = true
					} else if (dir == DirectionIn || dir == DirectionBoth) && matchesInbound(subject, a) {
						out = append(out, Relationship{ID: a.ID, Title: a.Title, Field: inboundFieldOf(subject, a)})
						seen[a.ID] = true
					}
					if limit > 0 && len(out) >= limit {
						return errStopScan
					}
				}
				return nil
			})
			if scanErr == errStopScan {
				break scanFiles
			}
			if scanErr != nil {
				return scanErr
			}
		}

		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

var errStopScan = errStop{}

type errStop struct{}

func (errStop) Error() string { return "relationships: scan limit reached" }

// matchesInbound reports whether candidate links back to subject: a
// shared non-empty WikidataID, or one of candidate's infobox values
// naming subject's id or (normalized) title.
func matchesInbound(subject *model.Article, candidate model.Article) bool {
	if subject.WikidataID != "" && subject.WikidataID == candidate.WikidataID {
		return true
	}
	subjectTitle := model.NormalizeTitle(subject.Title)
	for _, v := range candidate.Infobox {
		if v == subject.ID || model.NormalizeTitle(v) == subjectTitle {
			return true
		}
	}
	return false
}

func inboundFieldOf(subject *model.Article, candidate model.Article) string {
	if subject.WikidataID != "" && subject.WikidataID == candidate.WikidataID {
		return "wikidataId"
	}
	subjectTitle := model.NormalizeTitle(subject.Title)
	for field, v := range candidate.Infobox {
		if v == subject.ID || model.NormalizeTitle(v) == subjectTitle {
			return field
		}
	}
	return ""
}
