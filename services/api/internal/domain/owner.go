package domain

import "strings"

// GuestPrefix marks owner ids minted for checkouts without an authenticated account.
const GuestPrefix = "guest_"

type OwnerKind uint8

const (
	OwnerUnknown OwnerKind = iota
	OwnerGuest
	OwnerAccount
)

// Owner identifies who an order belongs to: either a guest token or an account id.
// The zero value is not a valid owner.
type Owner struct {
	kind  OwnerKind
	value string
}

func GuestOwner(token string) Owner {
	return Owner{kind: OwnerGuest, value: token}
}

func AccountOwner(id string) Owner {
	return Owner{kind: OwnerAccount, value: id}
}

// ParseOwner decodes the persisted form produced by Owner.String.
func ParseOwner(raw string) (Owner, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Owner{}, ErrOwnerRequired
	}
	if strings.HasPrefix(raw, GuestPrefix) {
		return ParseGuest(raw)
	}
	return ParseAccount(raw)
}

// ParseGuest accepts only guest ids ("guest_<token>").
func ParseGuest(raw string) (Owner, error) {
	token, ok := strings.CutPrefix(strings.TrimSpace(raw), GuestPrefix)
	if !ok || token == "" || strings.ContainsAny(token, " \t\n") {
		return Owner{}, ErrInvalidGuestID
	}
	return GuestOwner(token), nil
}

// ParseAccount accepts only authenticated account ids; guest ids are rejected.
func ParseAccount(raw string) (Owner, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, GuestPrefix) || strings.ContainsAny(raw, " \t\n") {
		return Owner{}, ErrInvalidAccountID
	}
	return AccountOwner(raw), nil
}

func (o Owner) Kind() OwnerKind { return o.kind }

func (o Owner) IsGuest() bool { return o.kind == OwnerGuest }

func (o Owner) IsZero() bool { return o.kind == OwnerUnknown }

// Token returns the guest token or the account id, without any prefix.
func (o Owner) Token() string { return o.value }

// String returns the persisted owner id.
func (o Owner) String() string {
	switch o.kind {
	case OwnerGuest:
		return GuestPrefix + o.value
	case OwnerAccount:
		return o.value
	default:
		return ""
	}
}
