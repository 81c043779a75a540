package normalize

// deriveCELE computes the CoT ce/le pair from optional NACp/NACv values,
// matching the ADS-B/UAT derivation in spec §4.1. Absent both, it returns
// the spec's defaults (35.0, 999999.0).
func deriveCELE(nacp, nacv *float64, onGround bool) (ce, le float64) {
	if nacp == nil && nacv == nil {
		return 35.0, 999999.0
	}
	if nacp != nil {
		if onGround {
			ce = *nacp + 51.56
		} else {
			ce = *nacp + 56.57
		}
	}
	if nacv != nil {
		le = *nacv + 12.5
	}
	return ce, le
}
