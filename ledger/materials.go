package ledger

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/fernandezvara/opsledger"
)

// NewMaterial is the input of CreateMaterial.
type NewMaterial struct {
	Code            string           `json:"material_code"`
	Name            string           `json:"material_name"`
	Category        MaterialCategory `json:"category"`
	SizeMM          *float64         `json:"size_mm"`
	Unit            UnitOfMeasure    `json:"unit_of_measure"`
	IsActive        *bool            `json:"is_active"`
	IsCustomBlend   *bool            `json:"is_custom_blend"`
	BlendComponents *BlendComponents `json:"blend_components"`
}

// MaterialPatch is the input of UpdateMaterial. Nil fields are left unchanged.
type MaterialPatch struct {
	Code            *string                   `json:"material_code"`
	Name            *string                   `json:"material_name"`
	Category        *MaterialCategory         `json:"category"`
	SizeMM          Optional[float64]         `json:"size_mm"`
	Unit            *UnitOfMeasure            `json:"unit_of_measure"`
	IsActive        *bool                     `json:"is_active"`
	IsCustomBlend   *bool                     `json:"is_custom_blend"`
	BlendComponents Optional[BlendComponents] `json:"blend_components"`
}

const blendMessage = "must be present when is_custom_blend is true and absent otherwise"

var materialRules = []rule[Material]{
	{
		field:   "blend_components",
		message: blendMessage,
		holds: func(m Material) bool {
			return m.IsCustomBlend == (m.BlendComponents != nil)
		},
	},
}

// ValidateCreateMaterial checks a new material and returns its normalized form.
func ValidateCreateMaterial(in NewMaterial) (NewMaterial, error) {
	var issues opsledger.Issues
	out := in
	out.Code = requiredString(&issues, "material_code", in.Code, 50)
	out.Name = requiredString(&issues, "material_name", in.Name, 100)
	oneOf(&issues, "category", in.Category, materialCategories)
	optionalPositive(&issues, "size_mm", in.SizeMM)
	oneOf(&issues, "unit_of_measure", in.Unit, unitsOfMeasure)
	requiredBool(&issues, "is_active", in.IsActive)
	requiredBool(&issues, "is_custom_blend", in.IsCustomBlend)
	out.BlendComponents = normalizeBlend(in.BlendComponents)

	if in.IsCustomBlend != nil {
		check(out.material(), materialRules, &issues)
	}
	if err := issues.Err(); err != nil {
		return NewMaterial{}, err
	}
	return out, nil
}

// ValidateUpdateMaterial checks the fields present in a patch.
func ValidateUpdateMaterial(in MaterialPatch) (MaterialPatch, error) {
	var issues opsledger.Issues
	out := in
	if in.empty() {
		issues.Add("fields", "at least one field must be provided")
	}
	out.Code = optionalString(&issues, "material_code", in.Code, 50)
	out.Name = optionalString(&issues, "material_name", in.Name, 100)
	if in.Category != nil {
		oneOf(&issues, "category", *in.Category, materialCategories)
	}
	optionalPositive(&issues, "size_mm", in.SizeMM.Value)
	if in.Unit != nil {
		oneOf(&issues, "unit_of_measure", *in.Unit, unitsOfMeasure)
	}
	if in.BlendComponents.Set {
		out.BlendComponents.Value = normalizeBlend(in.BlendComponents.Value)
	}
	if err := issues.Err(); err != nil {
		return MaterialPatch{}, err
	}
	return out, nil
}

// ValidateMaterial checks the cross-field rules of a stored or merged material.
func ValidateMaterial(m Material) error {
	var issues opsledger.Issues
	check(m, materialRules, &issues)
	return issues.Err()
}

func normalizeBlend(b *BlendComponents) *BlendComponents {
	if b == nil {
		return nil
	}
	out := BlendComponents{
		BaseMaterials:  trimAll(b.BaseMaterials),
		AggregateSizes: trimAll(b.AggregateSizes),
		BlendNote:      strings.TrimSpace(b.BlendNote),
	}
	return &out
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (in NewMaterial) material() Material {
	return Material{
		Code:            in.Code,
		Name:            in.Name,
		Category:        in.Category,
		SizeMM:          in.SizeMM,
		Unit:            in.Unit,
		IsActive:        deref(in.IsActive),
		IsCustomBlend:   deref(in.IsCustomBlend),
		BlendComponents: in.BlendComponents,
	}
}

func (in NewMaterial) values() (opsledger.Values, error) {
	blend, err := blendValue(in.BlendComponents)
	if err != nil {
		return nil, err
	}
	return opsledger.Values{}.
		Set("material_code", in.Code).
		Set("material_name", in.Name).
		Set("category", string(in.Category)).
		Set("size_mm", in.SizeMM).
		Set("unit_of_measure", string(in.Unit)).
		Set("is_active", deref(in.IsActive)).
		Set("is_custom_blend", deref(in.IsCustomBlend)).
		Set("blend_components", blend), nil
}

func (p MaterialPatch) empty() bool {
	return p.Code == nil && p.Name == nil && p.Category == nil && !p.SizeMM.Set &&
		p.Unit == nil && p.IsActive == nil && p.IsCustomBlend == nil && !p.BlendComponents.Set
}

func (p MaterialPatch) apply(m Material) Material {
	if p.Code != nil {
		m.Code = *p.Code
	}
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Category != nil {
		m.Category = *p.Category
	}
	m.SizeMM = p.SizeMM.apply(m.SizeMM)
	if p.Unit != nil {
		m.Unit = *p.Unit
	}
	if p.IsActive != nil {
		m.IsActive = *p.IsActive
	}
	if p.IsCustomBlend != nil {
		m.IsCustomBlend = *p.IsCustomBlend
	}
	m.BlendComponents = p.BlendComponents.apply(m.BlendComponents)
	return m
}

func (p MaterialPatch) values() (opsledger.Values, error) {
	var blend any
	if p.BlendComponents.Set {
		var err error
		if blend, err = blendValue(p.BlendComponents.Value); err != nil {
			return nil, err
		}
	}
	return opsledger.Values{}.
		SetIf(p.Code != nil, "material_code", deref(p.Code)).
		SetIf(p.Name != nil, "material_name", deref(p.Name)).
		SetIf(p.Category != nil, "category", string(deref(p.Category))).
		SetIf(p.SizeMM.Set, "size_mm", p.SizeMM.Value).
		SetIf(p.Unit != nil, "unit_of_measure", string(deref(p.Unit))).
		SetIf(p.IsActive != nil, "is_active", deref(p.IsActive)).
		SetIf(p.IsCustomBlend != nil, "is_custom_blend", deref(p.IsCustomBlend)).
		SetIf(p.BlendComponents.Set, "blend_components", blend), nil
}

// blendValue returns the JSON text of b, or nil.
func blendValue(b *BlendComponents) (any, error) {
	if b == nil {
		return nil, nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// CreateMaterial validates and inserts a material.
func (s *Service) CreateMaterial(ctx context.Context, in NewMaterial) (*Material, error) {
	m, err := ValidateCreateMaterial(in)
	if err != nil {
		return nil, s.rejected("material", err)
	}
	values, err := m.values()
	if err != nil {
		return nil, err
	}

	return opsledger.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *opsledger.Tx) (*Material, error) {
		created, err := insertReturning[Material](ctx, tx, tableMaterials, values)
		if err != nil {
			return nil, err
		}
		if err := s.audit(ctx, tx, tableMaterials, opsledger.AuditInsert, created.ID, nil, created); err != nil {
			return nil, err
		}
		return created, nil
	})
}

// UpdateMaterial applies patch to a material. The merged row must still
// satisfy the blend rule.
func (s *Service) UpdateMaterial(ctx context.Context, id string, patch MaterialPatch) (*Material, error) {
	id, err := checkID("material_id", id)
	if err != nil {
		return nil, s.rejected("material", err)
	}
	p, err := ValidateUpdateMaterial(patch)
	if err != nil {
		return nil, s.rejected("material", err)
	}
	values, err := p.values()
	if err != nil {
		return nil, err
	}
	values = values.Set("updated_at", s.now().UTC())

	return opsledger.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *opsledger.Tx) (*Material, error) {
		current, err := lockByID[Material](ctx, tx, tableMaterials, "material_id", id)
		if err != nil {
			return nil, err
		}
		if err := ValidateMaterial(p.apply(*current)); err != nil {
			return nil, s.rejected("material", err)
		}

		updated, err := updateReturning[Material](ctx, tx, tableMaterials, "material_id", id, values)
		if err != nil {
			return nil, err
		}
		if err := s.audit(ctx, tx, tableMaterials, opsledger.AuditUpdate, id, current, updated); err != nil {
			return nil, err
		}
		return updated, nil
	})
}

// GetMaterial reads one material.
func (s *Service) GetMaterial(ctx context.Context, id string) (*Material, error) {
	id, err := checkID("material_id", id)
	if err != nil {
		return nil, err
	}
	return getByID[Material](ctx, s.db, tableMaterials, "material_id", id)
}

// ListMaterials returns one page of materials ordered by code.
func (s *Service) ListMaterials(ctx context.Context, filter MaterialFilter, page PageParams) (*opsledger.Page[Material], error) {
	f, err := ValidateMaterialFilter(filter)
	if err != nil {
		return nil, err
	}
	p, err := ValidatePageParams(page)
	if err != nil {
		return nil, err
	}
	q, err := f.pageQuery()
	if err != nil {
		return nil, err
	}
	return opsledger.PaginateInto[Material](ctx, s.db, q, p.Page, p.Limit)
}
