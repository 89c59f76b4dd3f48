package domain

import (
	"fmt"
	"strings"
)

// ObservationsPackage is the BC Data Catalogue package holding fish observation points.
const ObservationsPackage = "known-bc-fish-observations-and-bc-fish-distributions"

// TargetSchema is where reference tables are loaded.
const TargetSchema = "whse_fish"

// ObjectName identifies a catalogue layer as a Postgres schema and table.
type ObjectName struct {
	Schema string
	Table  string
}

// ParseObjectName splits a catalogue object name such as
// "WHSE_FISH.FISS_FISH_OBSRVTN_PNT_SP" into lower-cased schema and table.
func ParseObjectName(s string) (ObjectName, error) {
	schema, table, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || schema == "" || table == "" || strings.Contains(table, ".") {
		return ObjectName{}, fmt.Errorf("invalid object name %q: want SCHEMA.TABLE", s)
	}
	return ObjectName{Schema: strings.ToLower(schema), Table: strings.ToLower(table)}, nil
}

func (o ObjectName) String() string {
	return o.Schema + "." + o.Table
}

// Upper returns the object name in the catalogue's upper-case form.
func (o ObjectName) Upper() string {
	return strings.ToUpper(o.String())
}

// Archive is a zipped CSV published at a fixed URL and loaded as one layer.
type Archive struct {
	URL    string
	File   string // local name of the downloaded zip
	Member string // extracted CSV to load
	Layer  string // destination table in TargetSchema
}

// ReferenceArchives lists the zipped CSV tables loaded alongside the observations.
var ReferenceArchives = []Archive{
	{
		URL:    "https://hillcrestgeo.ca/outgoing/whse_fish/whse_fish.wdic_waterbodies.csv.zip",
		File:   "wdic_waterbodies.csv.zip",
		Member: "whse_fish.wdic_waterbodies.csv",
		Layer:  "wdic_waterbodies_load",
	},
	{
		URL:    "https://hillcrestgeo.ca/outgoing/whse_fish/species_cd.csv.zip",
		File:   "species_cd.csv.zip",
		Member: "species_cd.csv",
		Layer:  "species_cd",
	},
}

// Layer describes one file to load into a Postgres table.
type Layer struct {
	Source string // path of the file or directory to read
	Schema string
	Table  string
	// GeometryName names the geometry column of spatial sources. Leave
	// empty for CSV tables without geometry.
	GeometryName string
}
