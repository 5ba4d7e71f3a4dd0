package citation

// courtMapping maps Australian court abbreviations to the jurisdiction
// directory used in AustLII direct URLs:
// /au/cases/<jurisdiction>/<COURT>/<year>/<number>.html
var courtMapping = map[string]string{
	// Commonwealth
	"HCA":        "cth",
	"FCA":        "cth",
	"FCAFC":      "cth",
	"FamCA":      "cth",
	"FamCAFC":    "cth",
	"FCCA":       "cth",
	"FedCFamC1A": "cth",
	"FedCFamC1F": "cth",
	"FedCFamC2F": "cth",
	"AATA":       "cth",
	"ARTA":       "cth",

	// New South Wales
	"NSWSC":  "nsw",
	"NSWCA":  "nsw",
	"NSWCCA": "nsw",
	"NSWDC":  "nsw",
	"NSWLEC": "nsw",
	"NSWCAT": "nsw",

	// Victoria
	"VSC":   "vic",
	"VSCA":  "vic",
	"VCC":   "vic",
	"VCAT":  "vic",
	"VMC":   "vic",

	// Queensland
	"QSC":  "qld",
	"QCA":  "qld",
	"QDC":  "qld",
	"QCAT": "qld",

	// Western Australia
	"WASC":  "wa",
	"WASCA": "wa",
	"WADC":  "wa",

	// South Australia
	"SASC":   "sa",
	"SASCA":  "sa",
	"SASCFC": "sa",
	"SADC":   "sa",

	// Tasmania
	"TASSC":  "tas",
	"TASCCA": "tas",
	"TASFC":  "tas",

	// Australian Capital Territory
	"ACTSC": "act",
	"ACTCA": "act",
	"ACAT":  "act",

	// Northern Territory
	"NTSC": "nt",
	"NTCA": "nt",
	"NTMC": "nt",
}

// ukInternationalCourts maps foreign court and report-series abbreviations
// to human-readable names. A hit means the citation is valid but not
// verifiable in Australian databases.
var ukInternationalCourts = map[string]string{
	"AC":    "Appeal Cases (House of Lords/Privy Council)",
	"UKSC":  "United Kingdom Supreme Court",
	"UKHL":  "United Kingdom House of Lords",
	"UKPC":  "United Kingdom Privy Council",
	"EWCA":  "England and Wales Court of Appeal",
	"EWHC":  "England and Wales High Court",
	"WLR":   "Weekly Law Reports",
	"QB":    "Queen's Bench Reports",
	"KB":    "King's Bench Reports",
	"Ch":    "Chancery Reports",
	"Fam":   "Family Division Reports",
	"ER":    "English Reports",
	"NZLR":  "New Zealand Law Reports",
	"NZCA":  "New Zealand Court of Appeal",
	"NZSC":  "New Zealand Supreme Court",
	"SCR":   "Supreme Court Reports (Canada)",
	"DLR":   "Dominion Law Reports (Canada)",
	"HKCFA": "Hong Kong Court of Final Appeal",
	"HKLRD": "Hong Kong Law Reports and Digest",
	"SLR":   "Singapore Law Reports",
	"SGCA":  "Singapore Court of Appeal",
}

// foiaLocalDocuments short-circuits verification for freedom-of-information
// statutes that ship alongside the tool as local reference text.
var foiaLocalDocuments = map[string]string{
	"Freedom of Information Act 1982 (Cth)":                  "sources/freedom_of_information_act_1982_cth.txt",
	"Freedom of Information Act 1989 (ACT)":                  "sources/freedom_of_information_act_1989_act.txt",
	"Freedom of Information Act 1992 (WA)":                   "sources/freedom_of_information_act_1992_wa.txt",
	"Government Information (Public Access) Act 2009 (NSW)":  "sources/gipa_act_2009_nsw.txt",
	"Right to Information Act 2009 (Qld)":                    "sources/right_to_information_act_2009_qld.txt",
}

// hardcodedActURLs overrides context-fetch source selection for statutes
// whose portal URLs are stable and known-good. Keys omit the jurisdiction
// suffix.
var hardcodedActURLs = map[string]string{
	"Family Law Act 1975":                "https://www.legislation.gov.au/C2004A00275/latest/text",
	"Evidence Act 1995":                  "https://www.legislation.gov.au/C2004A04858/latest/text",
	"Corporations Act 2001":              "https://www.legislation.gov.au/C2004A00818/latest/text",
	"Competition and Consumer Act 2010":  "https://www.legislation.gov.au/C2004A03609/latest/text",
	"Fair Work Act 2009":                 "https://www.legislation.gov.au/C2009A00028/latest/text",
	"Freedom of Information Act 1982":    "https://www.legislation.gov.au/C2004A02562/latest/text",
	"Migration Act 1958":                 "https://www.legislation.gov.au/C1958A00062/latest/text",
	"Judiciary Act 1903":                 "https://www.legislation.gov.au/C1903A00006/latest/text",
}

// usReporters names the American report series recognised by the extraction
// patterns.
var usReporters = map[string]string{
	"U.S.":   "United States Reports",
	"F.2d":   "Federal Reporter, Second Series",
	"F.3d":   "Federal Reporter, Third Series",
	"F.4th":  "Federal Reporter, Fourth Series",
	"S. Ct.": "Supreme Court Reporter",
}

// australianJurisdictions is the accepted set of statute jurisdiction
// suffixes.
var australianJurisdictions = map[string]bool{
	"Cth": true, "NSW": true, "Vic": true, "Qld": true,
	"WA": true, "SA": true, "Tas": true, "ACT": true, "NT": true,
}
