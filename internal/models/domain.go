package models

import "strings"

// BusinessDomain is one of the industry or functional categories a query can be mapped onto.
type BusinessDomain string

const (
	DomainTechnology      BusinessDomain = "technology"
	DomainMarketing       BusinessDomain = "marketing"
	DomainSales           BusinessDomain = "sales"
	DomainFinance         BusinessDomain = "finance"
	DomainHealthcare      BusinessDomain = "healthcare"
	DomainEducation       BusinessDomain = "education"
	DomainRetail          BusinessDomain = "retail"
	DomainECommerce       BusinessDomain = "ecommerce"
	DomainManufacturing   BusinessDomain = "manufacturing"
	DomainRealEstate      BusinessDomain = "real_estate"
	DomainLegal           BusinessDomain = "legal"
	DomainHumanResources  BusinessDomain = "human_resources"
	DomainOperations      BusinessDomain = "operations"
	DomainSupplyChain     BusinessDomain = "supply_chain"
	DomainCustomerService BusinessDomain = "customer_service"
	DomainEnergy          BusinessDomain = "energy"
	DomainMedia           BusinessDomain = "media"
	DomainHospitality     BusinessDomain = "hospitality"
	// DomainGeneral is the fallback when no other domain qualifies.
	DomainGeneral BusinessDomain = "general"
)

// BusinessDomains lists all 19 domains, General last.
var BusinessDomains = []BusinessDomain{
	DomainTechnology,
	DomainMarketing,
	DomainSales,
	DomainFinance,
	DomainHealthcare,
	DomainEducation,
	DomainRetail,
	DomainECommerce,
	DomainManufacturing,
	DomainRealEstate,
	DomainLegal,
	DomainHumanResources,
	DomainOperations,
	DomainSupplyChain,
	DomainCustomerService,
	DomainEnergy,
	DomainMedia,
	DomainHospitality,
	DomainGeneral,
}

// DisplayName returns the human form used in expanded query text, e.g. "real estate".
func (d BusinessDomain) DisplayName() string {
	switch d {
	case DomainECommerce:
		return "e-commerce"
	default:
		return strings.ReplaceAll(string(d), "_", " ")
	}
}

// Known reports whether d is one of the enumerated domains other than General.
func (d BusinessDomain) Known() bool {
	if d == DomainGeneral || d == "" {
		return false
	}
	for _, known := range BusinessDomains {
		if d == known {
			return true
		}
	}
	return false
}

// ParseDomain maps a name (e.g. "Real Estate", "real_estate", "e-commerce") to a domain.
// Unrecognized names return General and false.
func ParseDomain(s string) (BusinessDomain, bool) {
	n := strings.ToLower(strings.TrimSpace(s))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	if n == "e_commerce" {
		n = string(DomainECommerce)
	}
	d := BusinessDomain(n)
	if d == DomainGeneral {
		return d, true
	}
	if d.Known() {
		return d, true
	}
	return DomainGeneral, false
}
