package matching

// Confidence weights per match type. The reference score is recorded as
// evidence but carries no weight; reference equality already constrains
// candidate discovery.
const (
	weight3WayVendor       = 0.25
	weight3WayAmount       = 0.35
	weight3WayDate         = 0.15
	weight3WayReceiptLogic = 0.25

	weight2WayVendor = 0.30
	weight2WayAmount = 0.40
	weight2WayDate   = 0.30
)

// Aggregate3Way combines field scores for a PO + receipt + invoice match
func Aggregate3Way(vendor, amount, date, receiptLogic float64) float64 {
	return clampConfidence(
		weight3WayVendor*vendor +
			weight3WayAmount*amount +
			weight3WayDate*date +
			weight3WayReceiptLogic*receiptLogic)
}

// Aggregate2Way combines field scores for a PO + invoice match
func Aggregate2Way(vendor, amount, date float64) float64 {
	return clampConfidence(
		weight2WayVendor*vendor +
			weight2WayAmount*amount +
			weight2WayDate*date)
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
