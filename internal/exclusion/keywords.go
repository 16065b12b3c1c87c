package exclusion

// Keyword tables for institutional payee detection. Each table is sorted and
// duplicate-free; Keywords() merges them into a single sorted list.

// governmentKeywords match federal, state, and municipal entities. Multi-word
// entries match as substrings, single words as whole tokens.
var governmentKeywords = []string{
	"ADMINISTRATION",
	"AGENCY",
	"AUTHORITY",
	"BOARD OF",
	"BUREAU",
	"CITY OF",
	"COMMISSION",
	"COMPTROLLER",
	"COUNTY",
	"COURT",
	"DEPARTMENT",
	"DEPT",
	"DISTRICT",
	"DIVISION OF",
	"FEDERAL",
	"GOVERNMENT",
	"INTERNAL REVENUE",
	"IRS",
	"MUNICIPAL",
	"OFFICE OF",
	"SHERIFF",
	"STATE OF",
	"TAX COLLECTOR",
	"TOWN OF",
	"TOWNSHIP",
	"TREASURER",
	"TREASURY",
	"UNITED STATES",
	"US POSTAL",
	"VILLAGE OF",
}

// businessKeywords match commercial and financial institutions.
var businessKeywords = []string{
	"ASSOCIATES",
	"ASSOCIATION",
	"BANK",
	"CAPITAL",
	"CONSULTING",
	"COOPERATIVE",
	"CREDIT UNION",
	"ENTERPRISES",
	"FINANCIAL",
	"FOUNDATION",
	"GROUP",
	"HOLDINGS",
	"INDUSTRIES",
	"INSURANCE",
	"INVESTMENTS",
	"MORTGAGE",
	"PARTNERS",
	"PROPERTIES",
	"REALTY",
	"SAVINGS",
	"SERVICES",
	"SOLUTIONS",
	"SYSTEMS",
	"TECHNOLOGIES",
	"TRUST",
	"VENTURES",
}

// industryKeywords match trade and sector identifiers common in vendor files.
var industryKeywords = []string{
	"AUTOMOTIVE",
	"BUILDERS",
	"CLINIC",
	"CONSTRUCTION",
	"CONTRACTORS",
	"DISTRIBUTORS",
	"ELECTRIC",
	"EQUIPMENT",
	"HARDWARE",
	"HOSPITAL",
	"LANDSCAPING",
	"LOGISTICS",
	"MANUFACTURING",
	"PHARMACY",
	"PLUMBING",
	"RENTALS",
	"RESTAURANT",
	"ROOFING",
	"SUPPLIES",
	"SUPPLY",
	"TRANSPORT",
	"TRUCKING",
	"UTILITIES",
	"WHOLESALE",
}

// titleKeywords match professional designations that indicate an
// institutional practice rather than a private individual.
var titleKeywords = []string{
	"ATTORNEY",
	"ATTORNEYS AT LAW",
	"CHIROPRACTIC",
	"CPA",
	"DDS",
	"DENTAL",
	"DVM",
	"LAW FIRM",
	"LAW OFFICE",
	"LAW OFFICES",
	"MD PA",
	"ORTHODONTICS",
	"PEDIATRICS",
	"VETERINARY",
}
