package modal

import "time"

type VerificationState string

const (
	ProviderUnverified VerificationState = "unverified"
	ProviderPending    VerificationState = "pending"
	ProviderVerified   VerificationState = "verified"
	ProviderRejected   VerificationState = "rejected"
)

// Provider is a healthcare entity extracted from a case conversation.
type Provider struct {
	ID           string            `json:"id"`
	CaseID       string            `json:"caseId"`
	Name         string            `json:"name"`
	Organization string            `json:"organization,omitempty"`
	Specialty    string            `json:"specialty,omitempty"`
	City         string            `json:"city,omitempty"`
	State        string            `json:"state,omitempty"`
	NPI          string            `json:"npi,omitempty"`
	Contact      ContactInfo       `json:"contact"`
	Verification VerificationState `json:"verification"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// ContactInfo holds the channels a provider can be reached on.
type ContactInfo struct {
	Fax   string `json:"fax,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (c ContactInfo) Empty() bool {
	return c.Fax == "" && c.Email == "" && c.Phone == ""
}

// Merge returns c with blank fields filled from other.
func (c ContactInfo) Merge(other ContactInfo) ContactInfo {
	if c.Fax == "" {
		c.Fax = other.Fax
	}
	if c.Email == "" {
		c.Email = other.Email
	}
	if c.Phone == "" {
		c.Phone = other.Phone
	}
	return c
}

// ExtractedProvider is one provider mention pulled out of a transcript.
type ExtractedProvider struct {
	Name         string `json:"name"`
	Organization string `json:"organization"`
	Specialty    string `json:"specialty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Phone        string `json:"phone"`
	Fax          string `json:"fax"`
	Email        string `json:"email"`
}

// RegistryMatch is the provider registry's answer for one lookup.
type RegistryMatch struct {
	BestMatch  *RegistryCandidate  `json:"bestMatch,omitempty"`
	Candidates []RegistryCandidate `json:"candidates"`
}

type RegistryCandidate struct {
	NPI          string      `json:"npi"`
	Name         string      `json:"name"`
	Organization string      `json:"organization,omitempty"`
	Specialty    string      `json:"specialty,omitempty"`
	City         string      `json:"city,omitempty"`
	State        string      `json:"state,omitempty"`
	Contact      ContactInfo `json:"contact"`
}

// RegistryCriteria narrows a registry lookup.
type RegistryCriteria struct {
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
}
