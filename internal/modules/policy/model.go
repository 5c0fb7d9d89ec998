// README: Policy aggregate; one prioritized rule document per behavioral type.
package policy

import (
	"encoding/json"
	"fmt"

	"gatehouse/internal/types"
)

type Type string

const (
	TypeFee        Type = "FEE"
	TypeDiscount   Type = "DISCOUNT"
	TypeMembership Type = "MEMBERSHIP"
	TypeBlacklist  Type = "BLACKLIST"
)

type MatchType string

const (
	MatchAnd MatchType = "AND"
	MatchOr  MatchType = "OR"
)

type DiscountType string

const (
	DiscountPercent     DiscountType = "PERCENT"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
	DiscountFreeTime    DiscountType = "FREE_TIME"
)

type ApplyMethod string

const (
	ApplyAuto   ApplyMethod = "AUTO"
	ApplyManual ApplyMethod = "MANUAL"
)

type BlacklistAction string

const (
	ActionBlockEntry BlacklistAction = "BLOCK_ENTRY"
	ActionWarnAdmin  BlacklistAction = "WARN_ADMIN"
)

type TimeRange struct {
	Start string `json:"start"` // "HH:MM"
	End   string `json:"end"`
}

// Condition gates when a policy is active. Absent fields are never
// evaluated; they are vacuously true for that field.
type Condition struct {
	Days        []string   `json:"days,omitempty"` // "SUN".."SAT"
	TimeRange   *TimeRange `json:"time_range,omitempty"`
	IsHoliday   *bool      `json:"is_holiday,omitempty"`
	TargetDates []string   `json:"target_dates,omitempty"` // "2006-01-02"
	MatchType   MatchType  `json:"match_type,omitempty"`   // unset -> AND
}

type FeeRule struct {
	BaseTimeMinutes  int    `json:"base_time_minutes"`
	BaseFee          int64  `json:"base_fee"`
	UnitTimeMinutes  int    `json:"unit_time_minutes"`
	UnitFee          int64  `json:"unit_fee"`
	GraceTimeMinutes int    `json:"grace_time_minutes"`
	DailyMaxFee      *int64 `json:"daily_max_fee,omitempty"`
}

type DiscountRule struct {
	DiscountType DiscountType `json:"discount_type"`
	Value        int64        `json:"value"`
	MaxAmount    *int64       `json:"max_amount,omitempty"`
	ApplyMethod  ApplyMethod  `json:"apply_method"`
	TargetGroup  string       `json:"target_group,omitempty"`
}

type MembershipRule struct {
	PeriodDays     int   `json:"period_days"`
	Price          int64 `json:"price"`
	AllowExtension bool  `json:"allow_extension"`
}

type BlacklistRule struct {
	ActionType BlacklistAction `json:"action_type"`
	Message    string          `json:"message"`
	CarNumbers []string        `json:"car_numbers"`
}

// Policy is decoded once at the store boundary; exactly one rule pointer is
// set, matching Type.
type Policy struct {
	ID        types.ID
	SiteID    *types.ID // nil applies to all sites
	Type      Type
	Priority  int
	IsActive  bool
	Condition Condition

	Fee        *FeeRule
	Discount   *DiscountRule
	Membership *MembershipRule
	Blacklist  *BlacklistRule
}

type configDoc struct {
	Condition  Condition       `json:"condition"`
	Fee        *FeeRule        `json:"fee_rule,omitempty"`
	Discount   *DiscountRule   `json:"discount_rule,omitempty"`
	Membership *MembershipRule `json:"membership_rule,omitempty"`
	Blacklist  *BlacklistRule  `json:"blacklist_rule,omitempty"`
}

// DecodeConfig parses the JSON config column into the typed rule union.
func (p *Policy) DecodeConfig(raw []byte) error {
	var doc configDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("policy %s: decode config: %w", p.ID, err)
	}
	p.Condition = doc.Condition
	p.Fee, p.Discount, p.Membership, p.Blacklist = nil, nil, nil, nil

	switch p.Type {
	case TypeFee:
		p.Fee = doc.Fee
	case TypeDiscount:
		p.Discount = doc.Discount
	case TypeMembership:
		p.Membership = doc.Membership
	case TypeBlacklist:
		p.Blacklist = doc.Blacklist
	default:
		return fmt.Errorf("policy %s: unknown type %q", p.ID, p.Type)
	}
	if p.Fee == nil && p.Discount == nil && p.Membership == nil && p.Blacklist == nil {
		return fmt.Errorf("policy %s: config missing rule for type %s", p.ID, p.Type)
	}
	return nil
}

// EncodeConfig is the inverse of DecodeConfig, used when persisting policies.
func (p *Policy) EncodeConfig() ([]byte, error) {
	doc := configDoc{
		Condition:  p.Condition,
		Fee:        p.Fee,
		Discount:   p.Discount,
		Membership: p.Membership,
		Blacklist:  p.Blacklist,
	}
	return json.Marshal(doc)
}
