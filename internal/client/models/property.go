package models

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrIncorrectChange = errors.New("change must be name=value")

// Property is a managed building.
type Property struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	UnitCount int    `json:"unitCount,omitempty"`
}

// Unit is a rentable unit inside a property.
type Unit struct {
	ID         string `json:"id"`
	PropertyID string `json:"propertyId"`
	Number     string `json:"number"`
	Rent       string `json:"rent,omitempty"`
	Status     string `json:"status,omitempty"`
	Tenant     string `json:"tenant,omitempty"`
}

// Payment is a rent payment recorded against a unit. Amount is a decimal
// string as sent by the API.
type Payment struct {
	ID     string    `json:"id"`
	UnitID string    `json:"unitId"`
	Amount string    `json:"amount"`
	PaidAt time.Time `json:"paidAt"`
	Method string    `json:"method,omitempty"`
}

// PaymentInput is the body of a new payment.
type PaymentInput struct {
	Amount string    `json:"amount"`
	PaidAt time.Time `json:"paidAt"`
	Method string    `json:"method,omitempty"`
}

// Subscription is an organization's billing plan.
type Subscription struct {
	OrganizationID string    `json:"organizationId"`
	Plan           string    `json:"plan"`
	Status         string    `json:"status"`
	RenewsAt       time.Time `json:"renewsAt,omitempty"`
}

// ChangesFromStrings parses name=value pairs into a partial-update body.
// Values that parse as integers, floats or booleans keep that type.
func ChangesFromStrings(s []string) (map[string]any, error) {
	changes := make(map[string]any, len(s))
	for _, item := range s {
		name, value, ok := strings.Cut(item, "=")
		if !ok || name == "" {
			return nil, ErrIncorrectChange
		}
		changes[name] = parseValue(value)
	}
	return changes, nil
}

func parseValue(v string) any {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}
