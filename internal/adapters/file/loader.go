// Package file loads plan template trees from YAML files.
//
// Plans are authored as one nested document per file. The loader flattens
// the tree into template nodes, resolves sibling predecessor references,
// and validates structure before anything is stored.
package file

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/gantryio/gantry/pkg/domain"
)

// planFile is the on-disk document shape. YAML is first parsed into a
// generic map and then decoded with mapstructure, so unknown keys surface
// as decode errors instead of being silently dropped.
type planFile struct {
	Plan planNode `mapstructure:"plan"`
}

type planNode struct {
	ID          string         `mapstructure:"id"`
	Name        string         `mapstructure:"name"`
	Description string         `mapstructure:"description"`
	Sequences   []sequenceNode `mapstructure:"sequences"`
}

type sequenceNode struct {
	ID          string      `mapstructure:"id"`
	Name        string      `mapstructure:"name"`
	Description string      `mapstructure:"description"`
	Order       int         `mapstructure:"order"`
	Predecessor string      `mapstructure:"predecessor"`
	OwnerTeam   string      `mapstructure:"owner_team"`
	Phases      []phaseNode `mapstructure:"phases"`
}

type phaseNode struct {
	ID          string        `mapstructure:"id"`
	Name        string        `mapstructure:"name"`
	Description string        `mapstructure:"description"`
	Order       int           `mapstructure:"order"`
	Predecessor string        `mapstructure:"predecessor"`
	OwnerTeam   string        `mapstructure:"owner_team"`
	Steps       []stepNode    `mapstructure:"steps"`
	Controls    []controlNode `mapstructure:"controls"`
}

type stepNode struct {
	ID           string            `mapstructure:"id"`
	Name         string            `mapstructure:"name"`
	Description  string            `mapstructure:"description"`
	Order        int               `mapstructure:"order"`
	Predecessor  string            `mapstructure:"predecessor"`
	OwnerTeam    string            `mapstructure:"owner_team"`
	Instructions []instructionNode `mapstructure:"instructions"`
}

type controlNode struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Order       int    `mapstructure:"order"`
	TypeClass   string `mapstructure:"type"`
	Critical    bool   `mapstructure:"critical"`
}

type instructionNode struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Order       int    `mapstructure:"order"`
	Mandatory   bool   `mapstructure:"mandatory"`
}

// LoadPlan reads and parses one plan file.
func LoadPlan(path string) ([]*domain.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	tmpls, err := ParsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tmpls, nil
}

// ParsePlan parses a YAML plan document into a flat template list, root
// first. Every node is validated and sibling predecessor graphs are checked
// for cycles; a parse error means nothing should be stored.
func ParsePlan(data []byte) ([]*domain.Template, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}

	var doc planFile
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &doc,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid plan document: %w", err)
	}
	if doc.Plan.ID == "" {
		return nil, fmt.Errorf("plan is missing an id")
	}

	b := &builder{}
	b.add(&domain.Template{
		ID:          doc.Plan.ID,
		Kind:        domain.EntityPlan,
		Name:        doc.Plan.Name,
		Description: doc.Plan.Description,
	})

	var seqs []*domain.Template
	for _, sq := range doc.Plan.Sequences {
		seq := b.add(&domain.Template{
			ID:            sq.ID,
			Kind:          domain.EntitySequence,
			ParentID:      doc.Plan.ID,
			Name:          sq.Name,
			Description:   sq.Description,
			Order:         sq.Order,
			PredecessorID: sq.Predecessor,
			OwnerTeam:     sq.OwnerTeam,
		})
		seqs = append(seqs, seq)

		var phases []*domain.Template
		for _, ph := range sq.Phases {
			phase := b.add(&domain.Template{
				ID:            ph.ID,
				Kind:          domain.EntityPhase,
				ParentID:      sq.ID,
				Name:          ph.Name,
				Description:   ph.Description,
				Order:         ph.Order,
				PredecessorID: ph.Predecessor,
				OwnerTeam:     ph.OwnerTeam,
			})
			phases = append(phases, phase)

			var steps []*domain.Template
			for _, st := range ph.Steps {
				step := b.add(&domain.Template{
					ID:            st.ID,
					Kind:          domain.EntityStep,
					ParentID:      ph.ID,
					Name:          st.Name,
					Description:   st.Description,
					Order:         st.Order,
					PredecessorID: st.Predecessor,
					OwnerTeam:     st.OwnerTeam,
				})
				steps = append(steps, step)

				for _, in := range st.Instructions {
					b.add(&domain.Template{
						ID:          in.ID,
						Kind:        domain.EntityInstruction,
						ParentID:    st.ID,
						Name:        in.Name,
						Description: in.Description,
						Order:       in.Order,
						Mandatory:   in.Mandatory,
					})
				}
			}
			if err := checkSiblings(steps); err != nil {
				return nil, err
			}

			for _, ct := range ph.Controls {
				b.add(&domain.Template{
					ID:          ct.ID,
					Kind:        domain.EntityControl,
					ParentID:    ph.ID,
					Name:        ct.Name,
					Description: ct.Description,
					Order:       ct.Order,
					TypeClass:   ct.TypeClass,
					Critical:    ct.Critical,
				})
			}
		}
		if err := checkSiblings(phases); err != nil {
			return nil, err
		}
	}
	if err := checkSiblings(seqs); err != nil {
		return nil, err
	}

	if b.err != nil {
		return nil, b.err
	}
	return b.tmpls, nil
}

type builder struct {
	tmpls []*domain.Template
	seen  map[string]bool
	err   error
}

func (b *builder) add(tmpl *domain.Template) *domain.Template {
	if b.err != nil {
		return tmpl
	}
	if b.seen == nil {
		b.seen = make(map[string]bool)
	}
	if tmpl.ID == "" {
		b.err = fmt.Errorf("%s under %q is missing an id", tmpl.Kind, tmpl.ParentID)
		return tmpl
	}
	if b.seen[tmpl.ID] {
		b.err = fmt.Errorf("duplicate template id %q", tmpl.ID)
		return tmpl
	}
	if err := tmpl.Validate(); err != nil {
		b.err = err
		return tmpl
	}
	b.seen[tmpl.ID] = true
	b.tmpls = append(b.tmpls, tmpl)
	return tmpl
}

// checkSiblings verifies that predecessor references point at siblings and
// that the sibling graph is acyclic.
func checkSiblings(siblings []*domain.Template) error {
	ids := make(map[string]bool, len(siblings))
	pred := make(map[string]string)
	for _, s := range siblings {
		ids[s.ID] = true
		if s.PredecessorID != "" {
			pred[s.ID] = s.PredecessorID
		}
	}
	for id, p := range pred {
		if !ids[p] {
			return fmt.Errorf("%s: predecessor %q is not a sibling", id, p)
		}
	}
	if cycle := domain.FindPredecessorCycle(pred); cycle != nil {
		kind := siblings[0].Kind
		return &domain.CyclicDependencyError{Kind: kind, IDs: cycle}
	}
	return nil
}
