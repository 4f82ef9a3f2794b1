package recon

// enrich folds matched authoritative attributes into the canonical
// record.
//
// The authoritative timestamp is adopted verbatim. Coordinates and
// municipality fill gaps the capture left: the raw payload's own values
// win when present, because validators must judge what the device
// actually claimed, not a backfilled view of it.
//
// Unmatched records are never enriched; they keep a nil
// ResolvedTimestamp rather than inferring one from the raw payload
// (CP-2).
func enrich(rec *CanonicalRecord, auth AuthoritativeRecord) {
	rec.MatchedAuthoritativeID = auth.AuthoritativeID

	ts := auth.TransactionTimestamp
	rec.ResolvedTimestamp = &ts

	if rec.PayloadDigest.Latitude == nil {
		rec.PayloadDigest.Latitude = auth.Latitude
	}
	if rec.PayloadDigest.Longitude == nil {
		rec.PayloadDigest.Longitude = auth.Longitude
	}
	if rec.PayloadDigest.Municipality == "" {
		rec.PayloadDigest.Municipality = auth.Municipality
	}
	rec.PayloadDigest.QualityFlag = auth.QualityFlag
}
