package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type DetailsKind string

const (
	DetailsTrade  DetailsKind = "trade"
	DetailsBank   DetailsKind = "bank"
	DetailsCrypto DetailsKind = "crypto"
	DetailsProof  DetailsKind = "proof"
	DetailsNote   DetailsKind = "note"
)

// TxDetails is the per-type payload of a ledger entry. Implementations are
// closed to this package.
type TxDetails interface {
	DetailsKind() DetailsKind
	isTxDetails()
}

type TradeDetails struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type BankDetails struct {
	BankName     string `json:"bank_name,omitempty"`
	AccountLast4 string `json:"account_last4,omitempty"`
	Reference    string `json:"reference,omitempty"`
}

type CryptoDetails struct {
	Network string `json:"network,omitempty"`
	Address string `json:"address,omitempty"`
	TxHash  string `json:"tx_hash"`
}

type ProofDetails struct {
	ProofURL string `json:"proof_url"`
	Note     string `json:"note,omitempty"`
}

type NoteDetails struct {
	Note string `json:"note"`
}

func (TradeDetails) DetailsKind() DetailsKind  { return DetailsTrade }
func (BankDetails) DetailsKind() DetailsKind   { return DetailsBank }
func (CryptoDetails) DetailsKind() DetailsKind { return DetailsCrypto }
func (ProofDetails) DetailsKind() DetailsKind  { return DetailsProof }
func (NoteDetails) DetailsKind() DetailsKind   { return DetailsNote }

func (TradeDetails) isTxDetails()  {}
func (BankDetails) isTxDetails()   {}
func (CryptoDetails) isTxDetails() {}
func (ProofDetails) isTxDetails()  {}
func (NoteDetails) isTxDetails()   {}

// ValidateDetails checks that d is acceptable for an entry of type t.
// Investment entries must carry a complete TradeDetails.
func ValidateDetails(t TxType, d TxDetails) error {
	switch t {
	case TxInvestmentBuy, TxInvestmentSell:
		trade, ok := d.(TradeDetails)
		if !ok {
			return ErrDetailsMismatch
		}
		if trade.Symbol == "" || !trade.Quantity.IsPositive() || !trade.Price.IsPositive() {
			return ErrDetailsMismatch
		}
		return nil
	}

	switch v := d.(type) {
	case nil:
		return nil
	case CryptoDetails:
		if v.TxHash == "" {
			return ErrDetailsMismatch
		}
	case ProofDetails:
		if v.ProofURL == "" {
			return ErrDetailsMismatch
		}
	}
	return nil
}

type detailsEnvelope struct {
	Kind DetailsKind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalDetails encodes d with its kind tag; nil encodes as nil.
func MarshalDetails(d TxDetails) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal %s details: %w", d.DetailsKind(), err)
	}
	return json.Marshal(detailsEnvelope{Kind: d.DetailsKind(), Data: data})
}

// UnmarshalDetails decodes the output of MarshalDetails.
func UnmarshalDetails(raw []byte) (TxDetails, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env detailsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal details envelope: %w", err)
	}

	var (
		d   TxDetails
		err error
	)
	switch env.Kind {
	case DetailsTrade:
		var v TradeDetails
		err = json.Unmarshal(env.Data, &v)
		d = v
	case DetailsBank:
		var v BankDetails
		err = json.Unmarshal(env.Data, &v)
		d = v
	case DetailsCrypto:
		var v CryptoDetails
		err = json.Unmarshal(env.Data, &v)
		d = v
	case DetailsProof:
		var v ProofDetails
		err = json.Unmarshal(env.Data, &v)
		d = v
	case DetailsNote:
		var v NoteDetails
		err = json.Unmarshal(env.Data, &v)
		d = v
	default:
		return nil, fmt.Errorf("unknown details kind %q", env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s details: %w", env.Kind, err)
	}
	return d, nil
}
