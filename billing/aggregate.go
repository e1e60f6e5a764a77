package billing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTRY AGGREGATOR
// =============================================================================
//
// Aggregate is a deterministic map-reduce over the entries of one hospital and
// one period, already joined with their act and group:
//
//   group key  = act's report group id, or UngroupedKey
//   sub key    = act id
//
// Groups and acts keep the order of first appearance (input is date
// ascending); groups are then stably sorted by sort order.
//
// Hours acts display the clock-face duration of each entry (an end earlier
// than the start crosses midnight). Units acts display the stored quantity.

const (
	DefaultUngroupedLabel     = "Sin agrupar"
	DefaultUngroupedSortOrder = 9999
)

// AggregateOptions controls how the ungrouped bucket is presented.
type AggregateOptions struct {
	UngroupedLabel     string
	UngroupedSortOrder int
}

func DefaultAggregateOptions() AggregateOptions {
	return AggregateOptions{
		UngroupedLabel:     DefaultUngroupedLabel,
		UngroupedSortOrder: DefaultUngroupedSortOrder,
	}
}

// EntryDetail is one source entry retained for drill-down.
type EntryDetail struct {
	ID              string          `json:"id"`
	Date            Date            `json:"date"`
	StartAt         *Instant        `json:"start_at,omitempty"`
	EndAt           *Instant        `json:"end_at,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	DisplayQuantity decimal.Decimal `json:"display_quantity"`
	Value           decimal.Decimal `json:"value"`
	Notes           *string         `json:"notes,omitempty"`
	PatientsCount   *int            `json:"patients_count,omitempty"`
	Role            *Role           `json:"role,omitempty"`
}

// ActTotal accumulates one act within one group. TotalPatients is nil when no
// entry of a patient-counting act carried a count.
type ActTotal struct {
	ActID           string          `json:"act_id"`
	ActName         string          `json:"act_name"`
	UnitKind        UnitKind        `json:"unit_type"`
	TotalQuantity   decimal.Decimal `json:"total_quantity"`
	DisplayQuantity decimal.Decimal `json:"display_quantity"`
	TotalValue      decimal.Decimal `json:"total_value"`
	TotalPatients   *int            `json:"total_patients"`
	Entries         []EntryDetail   `json:"entries"`
}

// GroupTotal accumulates one report group.
type GroupTotal struct {
	Key           string              `json:"key"`
	ReportGroupID *string             `json:"report_group_id"`
	Name          string              `json:"name"`
	SortOrder     int                 `json:"sort_order"`
	Acts          []ActTotal          `json:"acts"`
	TotalValue    decimal.Decimal     `json:"total_value"`
	Status        *ClosureGroupStatus `json:"status,omitempty"`
}

// Breakdown is the priced, grouped view of a period.
type Breakdown struct {
	Groups     []GroupTotal    `json:"groups"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// Aggregate groups rows by report group and act. A row without a stored total
// whose act cannot be priced aborts the aggregation.
func Aggregate(rows []EntryWithAct, groups []ReportGroup, opts AggregateOptions) (Breakdown, error) {
	if opts.UngroupedLabel == "" {
		opts.UngroupedLabel = DefaultUngroupedLabel
	}

	known := make(map[string]ReportGroup, len(groups))
	for _, g := range groups {
		known[g.ID] = g
	}

	var (
		order    []string
		byKey    = make(map[string]*GroupTotal)
		actIndex = make(map[string]map[string]int)
	)

	for _, row := range rows {
		entry, act := row.Entry, row.Act
		key := GroupKey(act.ReportGroupID)

		group, ok := byKey[key]
		if !ok {
			group = newGroupTotal(key, act.ReportGroupID, row.Group, known, opts)
			byKey[key] = group
			actIndex[key] = make(map[string]int)
			order = append(order, key)
		}

		idx, ok := actIndex[key][act.ID]
		if !ok {
			group.Acts = append(group.Acts, ActTotal{
				ActID:           act.ID,
				ActName:         act.Name,
				UnitKind:        act.UnitKind,
				TotalQuantity:   decimal.Zero,
				DisplayQuantity: decimal.Zero,
				TotalValue:      decimal.Zero,
			})
			idx = len(group.Acts) - 1
			actIndex[key][act.ID] = idx
		}
		total := &group.Acts[idx]

		value, err := EntryValue(entry, act)
		if err != nil {
			return Breakdown{}, fmt.Errorf("pricing entry %s: %w", entry.ID, err)
		}
		display, err := displayQuantity(entry, act)
		if err != nil {
			return Breakdown{}, fmt.Errorf("measuring entry %s: %w", entry.ID, err)
		}

		total.TotalQuantity = total.TotalQuantity.Add(entry.Quantity)
		total.DisplayQuantity = total.DisplayQuantity.Add(display)
		total.TotalValue = total.TotalValue.Add(value)
		if act.RequiresPatients && entry.PatientsCount != nil {
			if total.TotalPatients == nil {
				total.TotalPatients = new(int)
			}
			*total.TotalPatients += *entry.PatientsCount
		}
		total.Entries = append(total.Entries, EntryDetail{
			ID:              entry.ID,
			Date:            entry.Date,
			StartAt:         entry.StartAt,
			EndAt:           entry.EndAt,
			Quantity:        entry.Quantity,
			DisplayQuantity: display,
			Value:           value,
			Notes:           entry.Notes,
			PatientsCount:   entry.PatientsCount,
			Role:            entry.Role,
		})

		group.TotalValue = group.TotalValue.Add(value)
	}

	out := Breakdown{Groups: make([]GroupTotal, 0, len(order)), TotalValue: decimal.Zero}
	for _, key := range order {
		g := byKey[key]
		out.Groups = append(out.Groups, *g)
		out.TotalValue = out.TotalValue.Add(g.TotalValue)
	}
	sort.SliceStable(out.Groups, func(i, j int) bool {
		return out.Groups[i].SortOrder < out.Groups[j].SortOrder
	})
	return out, nil
}

// newGroupTotal resolves a group's name and sort order from the joined group,
// then the hospital's active groups, then the ungrouped defaults.
func newGroupTotal(key string, groupID *string, joined *ReportGroup, known map[string]ReportGroup, opts AggregateOptions) *GroupTotal {
	g := &GroupTotal{
		Key:        key,
		Name:       opts.UngroupedLabel,
		SortOrder:  opts.UngroupedSortOrder,
		TotalValue: decimal.Zero,
	}
	if key == UngroupedKey {
		return g
	}
	id := *groupID
	g.ReportGroupID = &id
	switch {
	case joined != nil:
		g.Name, g.SortOrder = joined.Name, joined.SortOrder
	default:
		if rg, ok := known[id]; ok {
			g.Name, g.SortOrder = rg.Name, rg.SortOrder
		}
	}
	return g
}

func displayQuantity(entry Entry, act MedicalAct) (decimal.Decimal, error) {
	if act.UnitKind != UnitHours || entry.StartAt == nil || entry.EndAt == nil {
		return entry.Quantity, nil
	}
	return DurationHours(*entry.StartAt, *entry.EndAt, WrapAtMidnight)
}

// AttachStatuses binds consolidation status rows to the breakdown's groups by
// group key. Groups without a row keep a nil Status.
func (b *Breakdown) AttachStatuses(statuses []ClosureGroupStatus) {
	byKey := make(map[string]ClosureGroupStatus, len(statuses))
	for _, s := range statuses {
		byKey[s.GroupKey()] = s
	}
	for i := range b.Groups {
		if s, ok := byKey[b.Groups[i].Key]; ok {
			s := s
			b.Groups[i].Status = &s
		}
	}
}

// Group returns the group with the given key.
func (b Breakdown) Group(key string) (GroupTotal, bool) {
	for _, g := range b.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return GroupTotal{}, false
}
