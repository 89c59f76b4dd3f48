// Package domain models the British Columbia fish observation datasets and
// the processing plan that references them to the Freshwater Atlas (FWA).
//
// # Data Sources
//
// Fish observations come from the BC Data Catalogue package
// "known-bc-fish-observations-and-bc-fish-distributions". The catalogue
// describes the package as a database layer identified by an object name:
//
//	WHSE_FISH.FISS_FISH_OBSRVTN_PNT_SP  →  schema whse_fish, table fiss_fish_obsrvtn_pnt_sp
//
// The layer is obtained by placing a distribution order against the
// catalogue with a contact email, then downloading the order archive once it
// is ready. See [ParseObjectName].
//
// Two reference tables are published as zipped CSV files at fixed URLs and
// loaded next to the observations in schema whse_fish:
//
//	wdic_waterbodies  waterbody dictionary, used to match observations coded
//	                  to a lake or wetland to the FWA waterbody polygons
//	species_cd        species code lookup
//
// # Processing
//
// The process command runs SQL scripts in a fixed order (see [DefaultPlan]):
// clean the inputs, snap each distinct observation location to a stream
// (inside a waterbody first, then within 100m matching the watershed code,
// then the closest stream within 100m, then within 500m matching the
// watershed code), write the events table and a view over it, and finally
// tag maximal events once per species code.
//
// A maximal event is an observation event with no other observation of the
// same species upstream of it on the stream network. Upstream is decided by
// the FWA watershed code and local code hierarchy plus the route measure
// along a blue line.
//
// # Match Report
//
// The last step summarises how observations were matched, one row per match
// type, printed as fixed-width columns. See [FormatMatchReport].
package domain
