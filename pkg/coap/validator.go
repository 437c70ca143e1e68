// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

// CheckCritical walks every option in pdu (via the checked,
// fence-post-skipping walker) and flags any critical option (odd number)
// not present in known. Flags accumulate into filter; ok is false iff at
// least one such option was found. An option number outside the filter's
// addressable range aborts the walk early and returns false, since the
// filter cannot represent it and the PDU must be treated as rejected.
func CheckCritical(known *KnownOptionsBitmap, pdu *PDU, filter *UnknownOptionsFilter) bool {
	ok := true
	pdu.WalkChecked(func(opt Option) bool {
		if !isCritical(opt.Number) {
			return true
		}
		if !known.InRange(opt.Number) {
			ok = false
			return false
		}
		if !known.IsSet(opt.Number) {
			filter.Set(opt.Number)
			ok = false
		}
		return true
	})
	return ok
}
