package statement

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TxType is the closed set of transaction types the engine understands.
type TxType string

const (
	TypePurchase    TxType = "purchase"
	TypeSIP         TxType = "sip"
	TypeSwitchIn    TxType = "switch_in"
	TypeSTPIn       TxType = "stp_in"
	TypeTransferIn  TxType = "transfer_in"
	TypeBonus       TxType = "bonus"
	TypeDivReinvest TxType = "dividend_reinvestment"
	TypeRedemption  TxType = "redemption"
	TypeSwitchOut   TxType = "switch_out"
	TypeSTPOut      TxType = "stp_out"
	TypeTransferOut TxType = "transfer_out"
	TypeSTT         TxType = "stt"
	TypeStampDuty   TxType = "stamp_duty"
	TypeCharges     TxType = "charges"
	TypeMisc        TxType = "misc"
	TypeSegregated  TxType = "segregated_portfolio"
	TypeUnknown     TxType = "unknown"
)

var txTypes = map[TxType]struct{}{
	TypePurchase: {}, TypeSIP: {}, TypeSwitchIn: {}, TypeSTPIn: {},
	TypeTransferIn: {}, TypeBonus: {}, TypeDivReinvest: {},
	TypeRedemption: {}, TypeSwitchOut: {}, TypeSTPOut: {}, TypeTransferOut: {},
	TypeSTT: {}, TypeStampDuty: {}, TypeCharges: {}, TypeMisc: {},
	TypeSegregated: {}, TypeUnknown: {},
}

// ParseTxType maps an extraction type tag to a TxType, defaulting to unknown.
func ParseTxType(s string) TxType {
	t := TxType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := txTypes[t]; ok {
		return t
	}
	return TypeUnknown
}

// IsBuy reports whether the type creates units (acquisition-like).
func (t TxType) IsBuy() bool {
	switch t {
	case TypePurchase, TypeSIP, TypeSwitchIn, TypeSTPIn, TypeTransferIn, TypeBonus, TypeDivReinvest:
		return true
	}
	return false
}

// IsSell reports whether the type removes units through an actual sale.
func (t TxType) IsSell() bool {
	switch t {
	case TypeRedemption, TypeSwitchOut, TypeSTPOut, TypeTransferOut:
		return true
	}
	return false
}

// IsAdmin reports whether the type is an administrative charge with no
// meaningful amount/units/NAV relationship to validate.
func (t TxType) IsAdmin() bool {
	switch t {
	case TypeSTT, TypeStampDuty, TypeCharges, TypeMisc, TypeSegregated:
		return true
	}
	return false
}

// TxStatus is the lifecycle state of a persisted transaction.
type TxStatus string

const (
	StatusActive    TxStatus = "active"
	StatusPending   TxStatus = "pending"
	StatusDiscarded TxStatus = "discarded"
	StatusReversed  TxStatus = "reversed"
)

// Valid reports whether s is a known lifecycle state.
func (s TxStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPending, StatusDiscarded, StatusReversed:
		return true
	}
	return false
}

// Date is a calendar day. It unmarshals both "2006-01-02" and RFC 3339
// strings, which is what the extraction collaborator emits.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(time.DateOnly) + `"`), nil
}

// NewDate builds a Date from a calendar day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

var isinPattern = regexp.MustCompile(`^INF[A-Z0-9]{9}$`)

// ValidISIN reports whether s looks like a mutual fund ISIN.
func ValidISIN(s string) bool { return isinPattern.MatchString(s) }

// RawRecord is one machine-extracted transaction row. Numeric fields are
// mutable during repair; the record is discarded after conversion.
type RawRecord struct {
	Folio       string  `json:"folio"`
	ISIN        string  `json:"isin"`
	SchemeName  string  `json:"scheme_name"`
	AMC         string  `json:"amc"`
	Date        Date    `json:"date"`
	Type        TxType  `json:"type"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Units       float64 `json:"units"`
	NAV         float64 `json:"nav"`
	Balance     float64 `json:"balance_units"`
}

// DateKey returns the record date in the canonical form used for hashing,
// grouping and same-day comparisons.
func (r *RawRecord) DateKey() string { return r.Date.Format(time.DateOnly) }

// HoldingRecord is the statement's holdings-section snapshot for one folio.
type HoldingRecord struct {
	Folio        string  `json:"folio"`
	ISIN         string  `json:"isin"`
	SchemeName   string  `json:"scheme_name"`
	AMC          string  `json:"amc"`
	Units        float64 `json:"units"`
	NAV          float64 `json:"nav"`
	NAVDate      Date    `json:"nav_date"`
	CurrentValue float64 `json:"current_value"`
}

// Statement is the extraction collaborator's output for one account statement.
type Statement struct {
	SourceFile   string          `json:"source_file,omitempty"`
	Holdings     []HoldingRecord `json:"holdings"`
	Transactions []RawRecord     `json:"transactions"`
}

// Validate fails fast on missing required fields so malformed extraction
// output never reaches the repair pipeline.
func (s *Statement) Validate() error {
	for i := range s.Transactions {
		r := &s.Transactions[i]
		if r.Folio == "" {
			return fmt.Errorf("transaction %d: missing folio", i)
		}
		if r.Date.IsZero() {
			return fmt.Errorf("transaction %d (folio %s): missing date", i, r.Folio)
		}
	}
	for i := range s.Holdings {
		h := &s.Holdings[i]
		if h.Folio == "" || h.ISIN == "" {
			return fmt.Errorf("holding %d: missing folio or isin", i)
		}
	}
	return nil
}

// GroupKey identifies one (folio, isin) balance track.
type GroupKey struct {
	Folio string
	ISIN  string
}

// Key returns the record's group key.
func (r *RawRecord) Key() GroupKey { return GroupKey{Folio: r.Folio, ISIN: r.ISIN} }
