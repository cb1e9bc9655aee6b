package core

import "slices"

// Towns lists the HDB towns offered by the dashboard.
var Towns = []string{
	"ANG MO KIO",
	"BEDOK",
	"BISHAN",
	"BUKIT BATOK",
	"BUKIT MERAH",
	"BUKIT PANJANG",
	"BUKIT TIMAH",
	"CENTRAL AREA",
	"CHOA CHU KANG",
	"CLEMENTI",
	"GEYLANG",
	"HOUGANG",
	"JURONG EAST",
	"JURONG WEST",
	"KALLANG/WHAMPOA",
	"MARINE PARADE",
	"PASIR RIS",
	"PUNGGOL",
	"QUEENSTOWN",
	"SEMBAWANG",
	"SENGKANG",
	"SERANGOON",
	"TAMPINES",
	"TOA PAYOH",
	"WOODLANDS",
	"YISHUN",
}

// FlatTypes lists the flat types offered by the dashboard.
var FlatTypes = []string{
	"1 ROOM",
	"2 ROOM",
	"3 ROOM",
	"4 ROOM",
	"5 ROOM",
	"EXECUTIVE",
	"MULTI-GENERATION",
}

func IsTown(s string) bool {
	return slices.Contains(Towns, s)
}

func IsFlatType(s string) bool {
	return slices.Contains(FlatTypes, s)
}
