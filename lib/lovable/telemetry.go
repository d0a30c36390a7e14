package lovable

import "remixctl/lib/restyutil"

var restyInstrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput enables full request/response dumps on every
// client built afterwards.
func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}
