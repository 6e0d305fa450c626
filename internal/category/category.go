// Package category maps raw resolution labels onto the canonical categories.
package category

import (
	"os"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/risk-dashboard/internal/model"
)

// Workflow statuses that decide what a pending ("0") resolution really was.
const (
	StatusReturnedDueToRisk = "RETURNED_DUE_TO_RISK"
	StatusRefused           = "REFUSED"
)

// Synonyms maps a canonical category to the raw spellings that mean it.
type Synonyms map[model.Category][]string

// DefaultSynonyms returns every spelling observed in the evaluation exports
// and the live sheets.
func DefaultSynonyms() Synonyms {
	return Synonyms{
		model.CategoryApproved: {
			"Aprobado", "Aprobada", "100% aprobado", "100% Aprobado",
			"APROBADO_100", "aprobado 100%", "Approved",
		},
		model.CategoryApprovedWithProposal: {
			"Aprobado con propuesta", "Aprobado con Propuesta",
			"APROBADO_CON_PROPUESTA", "Approved with proposal",
			"Approved-with-proposal",
		},
		model.CategoryReturnedToSales: {
			"Devuelto a comercial", "Devuelto a Comercial",
			"DEVUELTO_A_COMERCIAL", "Devuelto", "Returned to sales",
			"Returned-to-sales",
		},
		model.CategoryRejected: {
			"Rechazado", "Rechazada", "RECHAZADO", "Rejected", "Refused",
		},
		model.CategoryUnknown: {
			"Desconocido", "Unknown", "nan", "",
		},
		model.CategoryPending: {
			"0", "0.0", "Pendiente", "Pending",
		},
	}
}

// Normalizer resolves raw labels to canonical categories.
// It is read-only after construction and safe for concurrent use.
type Normalizer struct {
	index map[string]model.Category
}

// New builds a Normalizer from the default synonyms merged with extra.
func New(extra Synonyms) (*Normalizer, error) {
	n := &Normalizer{index: make(map[string]model.Category)}
	for _, syn := range []Synonyms{DefaultSynonyms(), extra} {
		for cat, raws := range syn {
			if !cat.IsCanonical() {
				return nil, eris.Errorf("category: %q is not a canonical category", cat)
			}
			// Every canonical label resolves to itself.
			if err := n.add(string(cat), cat); err != nil {
				return nil, err
			}
			for _, raw := range raws {
				if err := n.add(raw, cat); err != nil {
					return nil, err
				}
			}
		}
	}
	return n, nil
}

// MustDefault returns a Normalizer with only the default synonyms.
func MustDefault() *Normalizer {
	n, err := New(nil)
	if err != nil {
		panic(err)
	}
	return n
}

func (n *Normalizer) add(raw string, cat model.Category) error {
	key := Fold(raw)
	if prev, ok := n.index[key]; ok && prev != cat {
		return eris.Errorf("category: %q maps to both %q and %q", raw, prev, cat)
	}
	n.index[key] = cat
	return nil
}

// Normalize returns the canonical category for raw. Unrecognized labels
// become CategoryUnknown.
func (n *Normalizer) Normalize(raw string) model.Category {
	if cat, ok := n.index[Fold(raw)]; ok {
		return cat
	}
	return model.CategoryUnknown
}

// Known reports whether raw is a recognized spelling.
func (n *Normalizer) Known(raw string) bool {
	_, ok := n.index[Fold(raw)]
	return ok
}

// ResolveStatus refines a pending category using the workflow status. Any
// pending record that was not returned or refused, including one with no
// status, becomes CategoryUnknown.
func ResolveStatus(cat model.Category, status string) model.Category {
	if cat != model.CategoryPending {
		return cat
	}
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case StatusReturnedDueToRisk:
		return model.CategoryReturnedToSales
	case StatusRefused:
		return model.CategoryRejected
	default:
		return model.CategoryUnknown
	}
}

// Fold reduces a label to its lookup key: lowercase, no diacritics,
// underscores and dashes as spaces, single spaces.
func Fold(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, raw)
	if err != nil {
		s = raw
	}
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// LoadSynonyms reads extra synonyms from a YAML file keyed by canonical label.
func LoadSynonyms(path string) (Synonyms, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "category: read synonyms %s", path)
	}
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "category: parse synonyms %s", path)
	}
	syn := make(Synonyms, len(raw))
	for k, v := range raw {
		syn[model.Category(k)] = v
	}
	return syn, nil
}
