package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/fernandezvara/opsledger"
)

// PageParams selects one page of a listing. Zero values take the defaults.
type PageParams struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// ValidatePageParams applies defaults and checks the page bounds.
func ValidatePageParams(p PageParams) (PageParams, error) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Limit == 0 {
		p.Limit = opsledger.DefaultPageSize
	}
	if err := opsledger.ValidatePage(p.Page, p.Limit); err != nil {
		return PageParams{}, err
	}
	return p, nil
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// ValidateDateRange requires both ends and start <= end.
func ValidateDateRange(r DateRange) (DateRange, error) {
	var issues opsledger.Issues
	out := DateRange{
		StartDate: requiredDate(&issues, "start_date", r.StartDate),
		EndDate:   requiredDate(&issues, "end_date", r.EndDate),
	}
	if !r.StartDate.IsZero() && !r.EndDate.IsZero() {
		checkRange(&issues, out.StartDate, out.EndDate)
	}
	if err := issues.Err(); err != nil {
		return DateRange{}, err
	}
	return out, nil
}

func checkRange(issues *opsledger.Issues, start, end time.Time) {
	if end.Before(start) {
		issues.Add("end_date", "must be on or after start_date")
	}
}

// dateBounds validates the optional ends of a filter range.
func dateBounds(issues *opsledger.Issues, start, end *time.Time) (*time.Time, *time.Time) {
	var s, e *time.Time
	if start != nil {
		d := requiredDate(issues, "start_date", *start)
		s = &d
	}
	if end != nil {
		d := requiredDate(issues, "end_date", *end)
		e = &d
	}
	if s != nil && e != nil && !s.IsZero() && !e.IsZero() {
		checkRange(issues, *s, *e)
	}
	return s, e
}

// where accumulates AND-ed predicates numbering their placeholders in order.
type where struct {
	preds []string
	args  []any
}

// add appends a predicate; every %s in format becomes the placeholder of arg.
func (w *where) add(format string, arg any) {
	w.args = append(w.args, arg)
	ph := opsledger.Placeholder(len(w.args))
	w.preds = append(w.preds, strings.ReplaceAll(format, "%s", ph))
}

func (w *where) addIf(ok bool, format string, arg any) {
	if ok {
		w.add(format, arg)
	}
}

func (w where) String() string {
	return strings.Join(w.preds, " AND ")
}

// pageQuery builds the data and count statements of a listing.
func pageQuery(table, orderBy string, w where) (opsledger.PageQuery, error) {
	data, err := opsledger.Select(table).Where(w.String(), w.args...).OrderBy(orderBy).Build()
	if err != nil {
		return opsledger.PageQuery{}, err
	}
	count, err := opsledger.Select(table).Columns("COUNT(*) AS count").Where(w.String(), w.args...).Build()
	if err != nil {
		return opsledger.PageQuery{}, err
	}
	return opsledger.PageQuery{Query: data.Text, CountQuery: count.Text, Args: data.Args}, nil
}

// MaterialFilter narrows ListMaterials.
type MaterialFilter struct {
	Category      *MaterialCategory `json:"category"`
	IsActive      *bool             `json:"is_active"`
	IsCustomBlend *bool             `json:"is_custom_blend"`
	Search        string            `json:"search"`
}

// ValidateMaterialFilter checks a material filter.
func ValidateMaterialFilter(f MaterialFilter) (MaterialFilter, error) {
	var issues opsledger.Issues
	if f.Category != nil {
		oneOf(&issues, "category", *f.Category, materialCategories)
	}
	f.Search = strings.TrimSpace(f.Search)
	if len(f.Search) > 100 {
		issues.Add("search", "must be at most 100 characters")
	}
	if err := issues.Err(); err != nil {
		return MaterialFilter{}, err
	}
	return f, nil
}

func (f MaterialFilter) pageQuery() (opsledger.PageQuery, error) {
	var w where
	w.addIf(f.Category != nil, "category = %s", string(deref(f.Category)))
	w.addIf(f.IsActive != nil, "is_active = %s", deref(f.IsActive))
	w.addIf(f.IsCustomBlend != nil, "is_custom_blend = %s", deref(f.IsCustomBlend))
	w.addIf(f.Search != "", "(material_code ILIKE %s OR material_name ILIKE %s)", "%"+escapeLike(f.Search)+"%")
	return pageQuery(tableMaterials, "material_code", w)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ProductionFilter narrows ListProduction.
type ProductionFilter struct {
	MaterialID *string    `json:"material_id"`
	Shift      *Shift     `json:"shift"`
	StartDate  *time.Time `json:"start_date"`
	EndDate    *time.Time `json:"end_date"`
}

// ValidateProductionFilter checks a production filter.
func ValidateProductionFilter(f ProductionFilter) (ProductionFilter, error) {
	var issues opsledger.Issues
	f.MaterialID = optionalUUID(&issues, "material_id", f.MaterialID)
	if f.Shift != nil {
		oneOf(&issues, "shift", *f.Shift, shifts)
	}
	f.StartDate, f.EndDate = dateBounds(&issues, f.StartDate, f.EndDate)
	if err := issues.Err(); err != nil {
		return ProductionFilter{}, err
	}
	return f, nil
}

func (f ProductionFilter) pageQuery() (opsledger.PageQuery, error) {
	var w where
	w.addIf(f.MaterialID != nil, "material_id = %s", deref(f.MaterialID))
	w.addIf(f.Shift != nil, "shift = %s", string(deref(f.Shift)))
	w.addIf(f.StartDate != nil, "production_date >= %s", deref(f.StartDate))
	w.addIf(f.EndDate != nil, "production_date <= %s", deref(f.EndDate))
	return pageQuery(tableProduction, "production_date DESC, recorded_at DESC", w)
}

// DispatchFilter narrows ListDispatch.
type DispatchFilter struct {
	MaterialID *string    `json:"material_id"`
	StartDate  *time.Time `json:"start_date"`
	EndDate    *time.Time `json:"end_date"`
}

// ValidateDispatchFilter checks a dispatch filter.
func ValidateDispatchFilter(f DispatchFilter) (DispatchFilter, error) {
	var issues opsledger.Issues
	f.MaterialID = optionalUUID(&issues, "material_id", f.MaterialID)
	f.StartDate, f.EndDate = dateBounds(&issues, f.StartDate, f.EndDate)
	if err := issues.Err(); err != nil {
		return DispatchFilter{}, err
	}
	return f, nil
}

func (f DispatchFilter) pageQuery() (opsledger.PageQuery, error) {
	var w where
	w.addIf(f.MaterialID != nil, "material_id = %s", deref(f.MaterialID))
	w.addIf(f.StartDate != nil, "dispatch_date >= %s", deref(f.StartDate))
	w.addIf(f.EndDate != nil, "dispatch_date <= %s", deref(f.EndDate))
	return pageQuery(tableDispatch, "dispatch_date DESC, recorded_at DESC", w)
}

// InventoryFilter narrows ListInventory.
type InventoryFilter struct {
	MaterialID *string    `json:"material_id"`
	StartDate  *time.Time `json:"start_date"`
	EndDate    *time.Time `json:"end_date"`
}

// ValidateInventoryFilter checks an inventory filter.
func ValidateInventoryFilter(f InventoryFilter) (InventoryFilter, error) {
	var issues opsledger.Issues
	f.MaterialID = optionalUUID(&issues, "material_id", f.MaterialID)
	f.StartDate, f.EndDate = dateBounds(&issues, f.StartDate, f.EndDate)
	if err := issues.Err(); err != nil {
		return InventoryFilter{}, err
	}
	return f, nil
}

func (f InventoryFilter) pageQuery() (opsledger.PageQuery, error) {
	var w where
	w.addIf(f.MaterialID != nil, "material_id = %s", deref(f.MaterialID))
	w.addIf(f.StartDate != nil, "summary_date >= %s", deref(f.StartDate))
	w.addIf(f.EndDate != nil, "summary_date <= %s", deref(f.EndDate))
	return pageQuery(tableInventory, "summary_date DESC, material_id", w)
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.StartDate.Format(time.DateOnly), r.EndDate.Format(time.DateOnly))
}
