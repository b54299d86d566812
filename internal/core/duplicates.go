package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// rowAction is what the duplicate resolver did with a row.
type rowAction int

const (
	actionCreated rowAction = iota
	actionUpdated
	actionSkipped
	actionRejected
)

type rowOutcome struct {
	action rowAction
	diags  []Diagnostic
}

// duplicateResolver persists one row's PLC record, applying the configured
// strategy when the tag ID or IP address already belongs to a stored record.
type duplicateResolver struct {
	tx       Tx
	strategy DuplicateStrategy
	userID   string
}

func newDuplicateResolver(tx Tx, strategy DuplicateStrategy, userID string) *duplicateResolver {
	return &duplicateResolver{tx: tx, strategy: strategy, userID: userID}
}

// plcFromRow builds the candidate record. Enum values are stored in their
// canonical upper-case spelling and IPs in normalised form.
func plcFromRow(row RawRow, equipmentID string) *PLC {
	eqType, _ := canonicalEnum(row.Get(ColEquipmentType), EquipmentTypes)
	return &PLC{
		EquipmentID:     equipmentID,
		TagID:           row.Get(ColTagID),
		Description:     row.Get(ColDescription),
		Make:            row.Get(ColMake),
		Model:           row.Get(ColModel),
		IPAddress:       canonicalIP(row.Get(ColIPAddress)),
		FirmwareVersion: row.Get(ColFirmwareVersion),
		EquipmentType:   eqType,
		Tags:            splitTags(row.Get(ColTags)),
	}
}

// Apply resolves collisions for row and writes the result. A returned error
// is a persistence fault; rule outcomes are carried in rowOutcome.
func (d *duplicateResolver) Apply(ctx context.Context, row RawRow, equipmentID string) (rowOutcome, error) {
	cand := plcFromRow(row, equipmentID)

	byTag, err := d.tx.FindPLCByTag(ctx, cand.TagID)
	if err != nil {
		return rowOutcome{}, fmt.Errorf("find plc by tag %q: %w", cand.TagID, err)
	}
	var byIP *PLC
	if cand.IPAddress != "" {
		byIP, err = d.tx.FindPLCByIP(ctx, cand.IPAddress)
		if err != nil {
			return rowOutcome{}, fmt.Errorf("find plc by ip %q: %w", cand.IPAddress, err)
		}
	}

	if d.strategy == DuplicateSkip {
		var warnings []Diagnostic
		if byTag != nil {
			warnings = append(warnings, warningDiag(row.Line, ColTagID, cand.TagID,
				fmt.Sprintf("Duplicate tag ID %s found, skipping", cand.TagID)))
		}
		if byIP != nil {
			warnings = append(warnings, warningDiag(row.Line, ColIPAddress, cand.IPAddress,
				fmt.Sprintf("Duplicate IP address %s found, skipping", cand.IPAddress)))
		}
		if len(warnings) > 0 {
			return rowOutcome{action: actionSkipped, diags: warnings}, nil
		}
		return d.create(ctx, cand)
	}

	target := byTag
	switch {
	case byIP == nil:
	case target == nil:
		target = byIP
	case byIP.ID != target.ID:
		return rowOutcome{action: actionRejected, diags: []Diagnostic{
			errorDiag(row.Line, ColIPAddress, cand.IPAddress,
				fmt.Sprintf("IP address %s is already assigned to tag %s", cand.IPAddress, byIP.TagID)),
		}}, nil
	}

	if target == nil {
		return d.create(ctx, cand)
	}

	if d.strategy == DuplicateMerge {
		mergeInto(target, cand)
	} else {
		overwriteInto(target, cand)
	}
	target.UpdatedBy = d.userID
	if err := d.tx.UpdatePLC(ctx, target); err != nil {
		return rowOutcome{}, fmt.Errorf("update plc %q: %w", target.TagID, err)
	}
	return rowOutcome{action: actionUpdated}, nil
}

func (d *duplicateResolver) create(ctx context.Context, plc *PLC) (rowOutcome, error) {
	plc.CreatedBy = d.userID
	plc.UpdatedBy = d.userID
	if err := d.tx.CreatePLC(ctx, plc); err != nil {
		return rowOutcome{}, fmt.Errorf("create plc %q: %w", plc.TagID, err)
	}
	return rowOutcome{action: actionCreated}, nil
}

// overwriteInto replaces every mutable field of dst with src, clearing
// optional fields the row left blank.
func overwriteInto(dst, src *PLC) {
	dst.EquipmentID = src.EquipmentID
	dst.TagID = src.TagID
	dst.Description = src.Description
	dst.Make = src.Make
	dst.Model = src.Model
	dst.IPAddress = src.IPAddress
	dst.FirmwareVersion = src.FirmwareVersion
	dst.EquipmentType = src.EquipmentType
	dst.Tags = src.Tags
}

// mergeInto copies only the non-empty fields of src onto dst. Tags are
// unioned rather than replaced.
func mergeInto(dst, src *PLC) {
	dst.EquipmentID = src.EquipmentID
	setIfPresent(&dst.TagID, src.TagID)
	setIfPresent(&dst.Description, src.Description)
	setIfPresent(&dst.Make, src.Make)
	setIfPresent(&dst.Model, src.Model)
	setIfPresent(&dst.IPAddress, src.IPAddress)
	setIfPresent(&dst.FirmwareVersion, src.FirmwareVersion)
	setIfPresent(&dst.EquipmentType, src.EquipmentType)
	for _, t := range src.Tags {
		if !slices.Contains(dst.Tags, t) {
			dst.Tags = append(dst.Tags, t)
		}
	}
}

func setIfPresent(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}
