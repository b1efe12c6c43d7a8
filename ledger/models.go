package ledger

import (
	"bytes"
	"encoding/json"
	"time"
)

// Table names.
const (
	tableMaterials           = "materials"
	tableProduction          = "production_daily"
	tableDispatch            = "dispatch_transactions"
	tableInventory           = "inventory_summary"
	tableEquipment           = "equipment"
	tableEquipmentAttendance = "equipment_attendance"
	tableManpowerRoles       = "manpower_roles"
	tableManpowerAttendance  = "manpower_attendance"
)

// Defaults applied by the validators.
const (
	DefaultProductionOperationCode = "CRU-PRO"
	DefaultDispatchOperationCode   = "CRU-DIS"
	DefaultTripCount               = 1
	DefaultEquipmentLocation       = "Al-asela LD"
)

// MaterialCategory classifies a material.
type MaterialCategory string

const (
	CategoryAggregate    MaterialCategory = "AGGREGATE"
	CategoryFineMaterial MaterialCategory = "FINE_MATERIAL"
	CategoryBaseMaterial MaterialCategory = "BASE_MATERIAL"
	CategorySpecialty    MaterialCategory = "SPECIALTY"
	CategoryCustomBlend  MaterialCategory = "CUSTOM_BLEND"
)

var materialCategories = []MaterialCategory{
	CategoryAggregate, CategoryFineMaterial, CategoryBaseMaterial, CategorySpecialty, CategoryCustomBlend,
}

// UnitOfMeasure is how a material is counted.
type UnitOfMeasure string

const (
	UnitTon  UnitOfMeasure = "Ton"
	UnitLoad UnitOfMeasure = "Load"
)

var unitsOfMeasure = []UnitOfMeasure{UnitTon, UnitLoad}

// Shift is a work shift.
type Shift string

const (
	ShiftDay         Shift = "Day"
	ShiftNight       Shift = "Night"
	ShiftDayAndNight Shift = "D&N"
)

var shifts = []Shift{ShiftDay, ShiftNight, ShiftDayAndNight}

// BlendComponents describes what a custom blend is made of.
type BlendComponents struct {
	BaseMaterials  []string `json:"base_materials"`
	AggregateSizes []string `json:"aggregate_sizes"`
	BlendNote      string   `json:"blend_note"`
}

// Material is a row of materials.
type Material struct {
	ID              string           `bun:"material_id" json:"material_id"`
	Code            string           `bun:"material_code" json:"material_code"`
	Name            string           `bun:"material_name" json:"material_name"`
	Category        MaterialCategory `bun:"category" json:"category"`
	SizeMM          *float64         `bun:"size_mm" json:"size_mm"`
	Unit            UnitOfMeasure    `bun:"unit_of_measure" json:"unit_of_measure"`
	IsActive        bool             `bun:"is_active" json:"is_active"`
	IsCustomBlend   bool             `bun:"is_custom_blend" json:"is_custom_blend"`
	BlendComponents *BlendComponents `bun:"blend_components,type:jsonb" json:"blend_components"`
	CreatedAt       time.Time        `bun:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `bun:"updated_at" json:"updated_at"`
}

// ProductionDaily is a row of production_daily.
type ProductionDaily struct {
	ID             string    `bun:"production_id" json:"production_id"`
	MaterialID     string    `bun:"material_id" json:"material_id"`
	ProductionDate time.Time `bun:"production_date" json:"production_date"`
	QuantityTons   float64   `bun:"quantity_tons" json:"quantity_tons"`
	Shift          Shift     `bun:"shift" json:"shift"`
	OperationCode  string    `bun:"operation_code" json:"operation_code"`
	RecordedAt     time.Time `bun:"recorded_at" json:"recorded_at"`
	RecordedBy     *string   `bun:"recorded_by" json:"recorded_by"`
}

// DispatchTransaction is a row of dispatch_transactions.
type DispatchTransaction struct {
	ID             string    `bun:"dispatch_id" json:"dispatch_id"`
	MaterialID     string    `bun:"material_id" json:"material_id"`
	DispatchDate   time.Time `bun:"dispatch_date" json:"dispatch_date"`
	TripCount      int       `bun:"trip_count" json:"trip_count"`
	NetWeightTons  float64   `bun:"net_weight_tons" json:"net_weight_tons"`
	WeightEntrance *float64  `bun:"weight_entrance" json:"weight_entrance"`
	WeightExit     *float64  `bun:"weight_exit" json:"weight_exit"`
	OperationCode  string    `bun:"operation_code" json:"operation_code"`
	RecordedAt     time.Time `bun:"recorded_at" json:"recorded_at"`
	RecordedBy     *string   `bun:"recorded_by" json:"recorded_by"`
}

// InventorySummary is a row of inventory_summary.
type InventorySummary struct {
	ID              string    `bun:"inventory_id" json:"inventory_id"`
	MaterialID      string    `bun:"material_id" json:"material_id"`
	SummaryDate     time.Time `bun:"summary_date" json:"summary_date"`
	OpeningBalance  float64   `bun:"opening_balance" json:"opening_balance"`
	TotalProduction float64   `bun:"total_production" json:"total_production"`
	TotalDispatched float64   `bun:"total_dispatched" json:"total_dispatched"`
	ClosingBalance  float64   `bun:"closing_balance" json:"closing_balance"`
	CalculatedAt    time.Time `bun:"calculated_at" json:"calculated_at"`
}

// Equipment is a row of equipment.
type Equipment struct {
	ID        string    `bun:"equipment_id" json:"equipment_id"`
	Type      string    `bun:"equipment_type" json:"equipment_type"`
	Name      string    `bun:"equipment_name" json:"equipment_name"`
	Location  string    `bun:"location" json:"location"`
	UnitCount int       `bun:"unit_count" json:"unit_count"`
	IsActive  bool      `bun:"is_active" json:"is_active"`
	CreatedAt time.Time `bun:"created_at" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at" json:"updated_at"`
}

// EquipmentAttendance is a row of equipment_attendance.
type EquipmentAttendance struct {
	ID               string    `bun:"attendance_id" json:"attendance_id"`
	EquipmentID      string    `bun:"equipment_id" json:"equipment_id"`
	AttendanceDate   time.Time `bun:"attendance_date" json:"attendance_date"`
	UnitsOperational int       `bun:"units_operational" json:"units_operational"`
	HoursOperated    *float64  `bun:"hours_operated" json:"hours_operated"`
	Shift            *Shift    `bun:"shift" json:"shift"`
	RecordedAt       time.Time `bun:"recorded_at" json:"recorded_at"`
}

// ManpowerRole is a row of manpower_roles.
type ManpowerRole struct {
	ID          string    `bun:"role_id" json:"role_id"`
	Code        string    `bun:"role_code" json:"role_code"`
	Description string    `bun:"role_description" json:"role_description"`
	CreatedAt   time.Time `bun:"created_at" json:"created_at"`
}

// ManpowerAttendance is a row of manpower_attendance.
type ManpowerAttendance struct {
	ID             string    `bun:"attendance_id" json:"attendance_id"`
	RoleID         string    `bun:"role_id" json:"role_id"`
	AttendanceDate time.Time `bun:"attendance_date" json:"attendance_date"`
	Headcount      int       `bun:"headcount" json:"headcount"`
	Shift          Shift     `bun:"shift" json:"shift"`
	RecordedAt     time.Time `bun:"recorded_at" json:"recorded_at"`
}

// Optional is a patch field for a nullable column. Set distinguishes a field
// left out of the patch from one explicitly set to null (Value == nil).
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Some returns an Optional set to v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null returns an Optional explicitly set to null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

// UnmarshalJSON marks the field as set; a JSON null leaves Value nil.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// MarshalJSON writes the value or null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// apply returns the patched value of a nullable field.
func (o Optional[T]) apply(current *T) *T {
	if !o.Set {
		return current
	}
	return o.Value
}
