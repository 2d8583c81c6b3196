package expansion

import (
	"github.com/hyperjump/shitsumon/internal/models"
)

// DomainProfile describes how a business domain is recognized and expanded.
type DomainProfile struct {
	Domain   models.BusinessDomain
	Keywords []string
	// Concepts are multi-word phrases scored by partial word overlap.
	Concepts []string
	Related  []models.BusinessDomain
	// Terminology maps a domain term to synonyms used for terminology injection.
	Terminology map[string][]string
}

// DefaultDomains returns the built-in profiles for all 19 domains.
func DefaultDomains() []DomainProfile {
	return []DomainProfile{
		{
			Domain:   models.DomainTechnology,
			Keywords: []string{"software", "technology", "cloud", "api", "saas", "platform", "data", "ai", "machine learning", "cybersecurity", "infrastructure", "devops", "app", "react", "vue", "database"},
			Concepts: []string{"digital transformation", "system architecture", "tech stack selection", "software development lifecycle", "data security"},
			Related:  []models.BusinessDomain{models.DomainOperations, models.DomainECommerce, models.DomainMedia},
			Terminology: map[string][]string{
				"framework":   {"library", "toolkit"},
				"scalability": {"horizontal scaling", "load balancing"},
				"deployment":  {"ci/cd", "release pipeline"},
				"integration": {"api integration", "middleware"},
			},
		},
		{
			Domain:   models.DomainMarketing,
			Keywords: []string{"marketing", "campaign", "brand", "branding", "advertising", "seo", "content", "social media", "audience", "pricing", "promotion", "engagement", "leads"},
			Concepts: []string{"customer acquisition", "brand awareness", "pricing strategy", "content strategy", "market segmentation", "go to market"},
			Related:  []models.BusinessDomain{models.DomainSales, models.DomainMedia, models.DomainECommerce},
			Terminology: map[string][]string{
				"conversion": {"conversion rate", "funnel optimization"},
				"audience":   {"target segment", "persona"},
				"campaign":   {"channel mix", "attribution"},
				"pricing":    {"price positioning", "value proposition"},
			},
		},
		{
			Domain:   models.DomainSales,
			Keywords: []string{"sales", "selling", "pipeline", "quota", "deal", "prospect", "crm", "revenue", "upsell", "account", "territory"},
			Concepts: []string{"sales pipeline management", "deal closing", "lead qualification", "account based selling", "sales forecasting"},
			Related:  []models.BusinessDomain{models.DomainMarketing, models.DomainCustomerService, models.DomainFinance},
			Terminology: map[string][]string{
				"pipeline": {"deal stages", "win rate"},
				"quota":    {"attainment", "sales target"},
				"prospect": {"qualified lead", "opportunity"},
			},
		},
		{
			Domain:   models.DomainFinance,
			Keywords: []string{"finance", "financial", "budget", "pricing", "profit", "cost", "costs", "investment", "cash flow", "accounting", "tax", "margin", "valuation", "roi"},
			Concepts: []string{"financial planning", "pricing strategy", "cost reduction", "capital allocation", "risk management", "profitability analysis"},
			Related:  []models.BusinessDomain{models.DomainSales, models.DomainOperations, models.DomainLegal},
			Terminology: map[string][]string{
				"profit":  {"gross margin", "ebitda"},
				"cost":    {"unit economics", "cost of goods sold"},
				"pricing": {"price elasticity", "margin analysis"},
				"budget":  {"forecast variance", "opex"},
			},
		},
		{
			Domain:   models.DomainHealthcare,
			Keywords: []string{"healthcare", "health", "patient", "patients", "hospital", "clinical", "medical", "doctor", "treatment", "pharma", "telehealth"},
			Concepts: []string{"patient outcomes", "care delivery", "clinical trials", "health records", "regulatory compliance"},
			Related:  []models.BusinessDomain{models.DomainTechnology, models.DomainLegal, models.DomainOperations},
			Terminology: map[string][]string{
				"patient":   {"patient experience", "care pathway"},
				"treatment": {"clinical protocol", "therapy"},
				"records":   {"ehr", "hipaa"},
			},
		},
		{
			Domain:   models.DomainEducation,
			Keywords: []string{"education", "school", "student", "students", "teacher", "learning", "course", "curriculum", "university", "training", "edtech"},
			Concepts: []string{"learning outcomes", "student engagement", "online learning", "curriculum design", "skills training"},
			Related:  []models.BusinessDomain{models.DomainTechnology, models.DomainHumanResources, models.DomainMedia},
			Terminology: map[string][]string{
				"course":     {"learning module", "syllabus"},
				"student":    {"learner", "enrollment"},
				"assessment": {"rubric", "learning objectives"},
			},
		},
		{
			Domain:   models.DomainRetail,
			Keywords: []string{"retail", "store", "stores", "shopper", "merchandise", "inventory", "footfall", "pos", "shelf", "assortment"},
			Concepts: []string{"store operations", "customer loyalty", "merchandise planning", "omnichannel retail", "inventory turnover"},
			Related:  []models.BusinessDomain{models.DomainECommerce, models.DomainSupplyChain, models.DomainMarketing},
			Terminology: map[string][]string{
				"inventory": {"stock keeping unit", "shrinkage"},
				"store":     {"same store sales", "foot traffic"},
				"loyalty":   {"loyalty program", "repeat purchase"},
			},
		},
		{
			Domain:   models.DomainECommerce,
			Keywords: []string{"ecommerce", "e-commerce", "online store", "checkout", "cart", "shopify", "marketplace", "orders", "shipping", "conversion"},
			Concepts: []string{"cart abandonment", "online conversion", "checkout optimization", "product listing", "marketplace strategy"},
			Related:  []models.BusinessDomain{models.DomainRetail, models.DomainMarketing, models.DomainTechnology},
			Terminology: map[string][]string{
				"checkout":   {"payment gateway", "one click checkout"},
				"cart":       {"average order value", "basket size"},
				"conversion": {"add to cart rate", "landing page"},
			},
		},
		{
			Domain:   models.DomainManufacturing,
			Keywords: []string{"manufacturing", "factory", "production", "plant", "assembly", "machinery", "quality control", "defects", "throughput", "lean"},
			Concepts: []string{"production efficiency", "lean manufacturing", "quality assurance", "equipment maintenance", "capacity planning"},
			Related:  []models.BusinessDomain{models.DomainSupplyChain, models.DomainOperations, models.DomainEnergy},
			Terminology: map[string][]string{
				"production":  {"yield", "cycle time"},
				"defects":     {"six sigma", "defect rate"},
				"maintenance": {"predictive maintenance", "oee"},
			},
		},
		{
			Domain:   models.DomainRealEstate,
			Keywords: []string{"real estate", "property", "properties", "rental", "mortgage", "tenant", "lease", "housing", "commercial property", "realtor"},
			Concepts: []string{"property valuation", "rental yield", "property management", "market appraisal", "lease negotiation"},
			Related:  []models.BusinessDomain{models.DomainFinance, models.DomainLegal, models.DomainHospitality},
			Terminology: map[string][]string{
				"property": {"cap rate", "net operating income"},
				"rental":   {"occupancy rate", "rent roll"},
				"mortgage": {"loan to value", "amortization"},
			},
		},
		{
			Domain:   models.DomainLegal,
			Keywords: []string{"legal", "law", "contract", "contracts", "compliance", "regulation", "regulatory", "liability", "lawsuit", "gdpr", "intellectual property", "privacy"},
			Concepts: []string{"contract review", "regulatory compliance", "risk mitigation", "data privacy law", "dispute resolution"},
			Related:  []models.BusinessDomain{models.DomainFinance, models.DomainHumanResources, models.DomainHealthcare},
			Terminology: map[string][]string{
				"contract":   {"indemnification", "terms and conditions"},
				"compliance": {"audit trail", "due diligence"},
				"privacy":    {"data protection", "consent management"},
			},
		},
		{
			Domain:   models.DomainHumanResources,
			Keywords: []string{"hr", "human resources", "hiring", "recruiting", "recruitment", "employee", "employees", "talent", "payroll", "onboarding", "retention", "workforce", "culture"},
			Concepts: []string{"employee engagement", "talent acquisition", "performance management", "employee retention", "compensation planning"},
			Related:  []models.BusinessDomain{models.DomainOperations, models.DomainLegal, models.DomainEducation},
			Terminology: map[string][]string{
				"hiring":    {"time to hire", "candidate pipeline"},
				"employee":  {"employee net promoter score", "attrition"},
				"retention": {"turnover rate", "stay interviews"},
			},
		},
		{
			Domain:   models.DomainOperations,
			Keywords: []string{"operations", "operational", "efficiency", "process", "workflow", "automation", "kpi", "productivity", "scheduling", "outsourcing"},
			Concepts: []string{"process improvement", "operational efficiency", "resource allocation", "workflow automation", "business continuity"},
			Related:  []models.BusinessDomain{models.DomainSupplyChain, models.DomainManufacturing, models.DomainTechnology},
			Terminology: map[string][]string{
				"efficiency": {"throughput", "bottleneck analysis"},
				"process":    {"standard operating procedure", "process mapping"},
				"automation": {"robotic process automation", "orchestration"},
			},
		},
		{
			Domain:   models.DomainSupplyChain,
			Keywords: []string{"supply chain", "logistics", "supplier", "suppliers", "procurement", "warehouse", "distribution", "freight", "sourcing", "fulfillment", "shipping"},
			Concepts: []string{"supplier management", "demand planning", "inventory optimization", "logistics network", "supply risk"},
			Related:  []models.BusinessDomain{models.DomainManufacturing, models.DomainRetail, models.DomainOperations},
			Terminology: map[string][]string{
				"supplier":  {"vendor scorecard", "lead time"},
				"warehouse": {"pick rate", "slotting"},
				"logistics": {"last mile delivery", "freight cost"},
			},
		},
		{
			Domain:   models.DomainCustomerService,
			Keywords: []string{"customer service", "support", "helpdesk", "ticket", "tickets", "complaint", "complaints", "satisfaction", "churn", "call center", "csat", "nps"},
			Concepts: []string{"customer satisfaction", "support ticket resolution", "customer retention", "service level agreement", "customer experience"},
			Related:  []models.BusinessDomain{models.DomainSales, models.DomainOperations, models.DomainHospitality},
			Terminology: map[string][]string{
				"ticket":       {"first response time", "resolution time"},
				"satisfaction": {"csat", "net promoter score"},
				"churn":        {"customer lifetime value", "retention rate"},
			},
		},
		{
			Domain:   models.DomainEnergy,
			Keywords: []string{"energy", "electricity", "power", "solar", "wind", "renewable", "renewables", "utility", "utilities", "grid", "emissions", "oil", "gas"},
			Concepts: []string{"renewable energy", "energy efficiency", "carbon emissions", "grid reliability", "energy transition"},
			Related:  []models.BusinessDomain{models.DomainManufacturing, models.DomainOperations, models.DomainLegal},
			Terminology: map[string][]string{
				"emissions": {"carbon footprint", "scope 3"},
				"grid":      {"load balancing", "peak demand"},
				"solar":     {"photovoltaic", "levelized cost of energy"},
			},
		},
		{
			Domain:   models.DomainMedia,
			Keywords: []string{"media", "publishing", "video", "podcast", "streaming", "news", "journalism", "audience", "subscribers", "broadcast", "entertainment"},
			Concepts: []string{"content distribution", "audience growth", "subscription model", "editorial strategy", "media monetization"},
			Related:  []models.BusinessDomain{models.DomainMarketing, models.DomainTechnology, models.DomainEducation},
			Terminology: map[string][]string{
				"subscribers": {"subscriber churn", "paywall"},
				"video":       {"watch time", "view through rate"},
				"content":     {"editorial calendar", "syndication"},
			},
		},
		{
			Domain:   models.DomainHospitality,
			Keywords: []string{"hospitality", "hotel", "hotels", "restaurant", "restaurants", "guest", "guests", "booking", "tourism", "travel", "occupancy"},
			Concepts: []string{"guest experience", "revenue management", "booking conversion", "food service", "hotel operations"},
			Related:  []models.BusinessDomain{models.DomainCustomerService, models.DomainRealEstate, models.DomainMarketing},
			Terminology: map[string][]string{
				"booking":   {"direct booking", "booking window"},
				"guest":     {"guest satisfaction", "online reviews"},
				"occupancy": {"revpar", "average daily rate"},
			},
		},
		{
			Domain: models.DomainGeneral,
		},
	}
}

// Relation is a weighted edge between two domains.
type Relation struct {
	A, B     models.BusinessDomain
	Strength float64
	Insight  string
}

// DefaultRelations returns the built-in domain relationship graph.
func DefaultRelations() []Relation {
	return []Relation{
		{models.DomainMarketing, models.DomainSales, 0.9, "align campaign targeting with pipeline stages so marketing-qualified leads convert"},
		{models.DomainFinance, models.DomainMarketing, 0.8, "tie pricing and campaign spend to margin and customer acquisition cost"},
		{models.DomainFinance, models.DomainSales, 0.75, "connect revenue forecasts to deal velocity and discounting policy"},
		{models.DomainRetail, models.DomainECommerce, 0.9, "unify inventory and loyalty data across store and online channels"},
		{models.DomainSupplyChain, models.DomainManufacturing, 0.85, "synchronise production schedules with supplier lead times"},
		{models.DomainSupplyChain, models.DomainRetail, 0.75, "use demand signals from stores to drive replenishment"},
		{models.DomainOperations, models.DomainSupplyChain, 0.8, "map end-to-end process bottlenecks across logistics"},
		{models.DomainOperations, models.DomainTechnology, 0.7, "automate recurring workflows with integrated tooling"},
		{models.DomainTechnology, models.DomainECommerce, 0.75, "platform performance directly shapes online conversion"},
		{models.DomainHealthcare, models.DomainTechnology, 0.7, "digital health records and telehealth change care delivery"},
		{models.DomainHealthcare, models.DomainLegal, 0.75, "clinical data handling is bound by privacy regulation"},
		{models.DomainLegal, models.DomainFinance, 0.6, "compliance exposure should be priced into financial risk"},
		{models.DomainLegal, models.DomainHumanResources, 0.65, "employment law constrains hiring and termination policy"},
		{models.DomainHumanResources, models.DomainOperations, 0.6, "staffing levels determine operational capacity"},
		{models.DomainHumanResources, models.DomainEducation, 0.6, "training programs feed internal talent pipelines"},
		{models.DomainCustomerService, models.DomainSales, 0.7, "support interactions surface upsell and renewal signals"},
		{models.DomainCustomerService, models.DomainHospitality, 0.8, "guest satisfaction depends on service recovery"},
		{models.DomainCustomerService, models.DomainECommerce, 0.65, "post-purchase support drives repeat orders"},
		{models.DomainRealEstate, models.DomainFinance, 0.8, "property decisions hinge on financing cost and yield"},
		{models.DomainRealEstate, models.DomainHospitality, 0.55, "location and occupancy economics shape hotel returns"},
		{models.DomainEnergy, models.DomainManufacturing, 0.7, "energy cost is a major input to production margins"},
		{models.DomainEnergy, models.DomainLegal, 0.5, "emissions rules shape energy investment choices"},
		{models.DomainMedia, models.DomainMarketing, 0.8, "content reach and audience data inform brand campaigns"},
		{models.DomainMedia, models.DomainTechnology, 0.6, "streaming infrastructure limits distribution options"},
		{models.DomainEducation, models.DomainTechnology, 0.65, "learning platforms determine engagement and outcomes"},
		{models.DomainEducation, models.DomainMedia, 0.45, "educational content competes for the same audience attention"},
		{models.DomainMarketing, models.DomainECommerce, 0.8, "attribution across channels explains online sales"},
		{models.DomainManufacturing, models.DomainOperations, 0.75, "plant efficiency programs are operations programs"},
		{models.DomainHospitality, models.DomainMarketing, 0.6, "seasonal demand drives promotional calendars"},
		{models.DomainRetail, models.DomainMarketing, 0.7, "in-store promotions and brand campaigns share a budget"},
	}
}
